package statsd

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  audioscribe  ": "audioscribe",
		"..scribe..":      "scribe",
		".":               "",
		"":                "",
	}

	for input, want := range tests {
		assert.Equal(t, want, sanitizePrefix(input), "sanitizePrefix(%q)", input)
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/completed ":  "job_completed",
		"sweep..recovery":  "sweep.recovery",
		"two  spaces":      "two__spaces",
		"engine/run/total": "engine_run_total",
	}

	for input, want := range tests {
		assert.Equal(t, want, normalizeMetricName(input), "normalizeMetricName(%q)", input)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		// Padded key and value exercise the trimming path.
		//nolint:gocritic // whitespace is part of the test case
		" service ": " transcriber ",
	}
	local := map[string]string{
		"state": " completed ",
		"":      "ignored",
		"env":   "stage",
	}

	// Local tags win over global ones, keys sort, whitespace trims.
	got := formatTags(global, local)
	assert.Equal(t, "|#env:stage,service:transcriber,state:completed", got)
}

func TestFormatTagsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, formatTags(nil, nil))
}

func TestCloneTagsReturnsCopy(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env": "prod",
		"":    "ignored",
	}

	cloned := cloneTags(original)
	require.NotNil(t, cloned)

	cloned["env"] = "stage"
	assert.Equal(t, "prod", original["env"], "mutating the clone must not touch the original")
	assert.NotContains(t, cloned, "")
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	assert.True(t, client.Enabled())
	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())

	// Close is idempotent.
	require.NoError(t, client.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	require.NoError(t, err)
	assert.False(t, client.Enabled(), "blank address means metrics stay off")
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
