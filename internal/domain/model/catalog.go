package model

import "sort"

// knownModels is the set of transcription models the engines can load.
var knownModels = map[string]struct{}{
	"tiny":     {},
	"base":     {},
	"small":    {},
	"medium":   {},
	"large-v2": {},
	"large-v3": {},
}

// knownDiarizers is the set of speaker-diarization backends.
var knownDiarizers = map[string]struct{}{
	"none":     {},
	"silence":  {},
	"pyannote": {},
}

// KnownModel reports whether name is a model the system can run.
func KnownModel(name string) bool {
	_, ok := knownModels[name]
	return ok
}

// KnownDiarizer reports whether name is a supported diarization backend.
func KnownDiarizer(name string) bool {
	_, ok := knownDiarizers[name]
	return ok
}

// KnownModels returns the supported model names in sorted order.
func KnownModels() []string {
	return sortedKeys(knownModels)
}

// KnownDiarizers returns the supported diarizer names in sorted order.
func KnownDiarizers() []string {
	return sortedKeys(knownDiarizers)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
