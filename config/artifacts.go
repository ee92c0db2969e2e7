package config

import "strings"

// Artifact store backends selectable via ARTIFACTS_BACKEND.
const (
	ArtifactBackendFS = "fs"
	ArtifactBackendS3 = "s3"
)

// ArtifactConfig contains media and transcript blob storage configuration.
type ArtifactConfig struct {
	// Backend selects the store: fs (local directory) or s3.
	Backend string `env:"ARTIFACTS_BACKEND" envDefault:"fs"`

	// FSRoot is the root directory for the fs backend.
	FSRoot string `env:"ARTIFACTS_FS_ROOT" envDefault:"./artifacts"`

	// S3 backend settings. Endpoint is optional and overrides the AWS
	// default, which makes MinIO and R2 style deployments work.
	S3Endpoint        string `env:"ARTIFACTS_S3_ENDPOINT"          envDefault:""`
	S3Region          string `env:"ARTIFACTS_S3_REGION"            envDefault:"us-east-1"`
	S3Bucket          string `env:"ARTIFACTS_S3_BUCKET"            envDefault:""`
	S3AccessKeyID     string `env:"ARTIFACTS_S3_ACCESS_KEY_ID"     envDefault:""`
	S3SecretAccessKey string `env:"ARTIFACTS_S3_SECRET_ACCESS_KEY" envDefault:""`
	S3ForcePathStyle  bool   `env:"ARTIFACTS_S3_FORCE_PATH_STYLE"  envDefault:"false"`
}

// Sanitize applies guardrails to artifact configuration values.
func (a *ArtifactConfig) Sanitize() {
	a.Backend = strings.ToLower(strings.TrimSpace(a.Backend))
	if a.Backend == "" {
		a.Backend = ArtifactBackendFS
	}
	if strings.TrimSpace(a.FSRoot) == "" {
		a.FSRoot = "./artifacts"
	}
}
