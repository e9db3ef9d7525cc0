package stt

import (
	"fmt"
	"sort"
	"strings"
)

const DefaultModel = "whisper-1"

// maxUploadBytes is the request size limit of the hosted transcription endpoint.
const maxUploadBytes = 25 << 20

type Model struct {
	Name           string
	MaxUploadBytes int64
	IsCustom       bool
}

var registry = map[string]Model{
	"whisper-1": {
		Name:           "whisper-1",
		MaxUploadBytes: maxUploadBytes,
	},
	"gpt-4o-transcribe": {
		Name:           "gpt-4o-transcribe",
		MaxUploadBytes: maxUploadBytes,
	},
	"gpt-4o-mini-transcribe": {
		Name:           "gpt-4o-mini-transcribe",
		MaxUploadBytes: maxUploadBytes,
	},
}

func ModelNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupModel(name string) (Model, bool) {
	model, ok := registry[name]
	return model, ok
}

// ResolveModel maps a model reference to a known model. Unknown names are
// accepted only when allowCustom is set, which is the case for
// self-hosted OpenAI-compatible endpoints that serve their own models.
func ResolveModel(ref string, allowCustom bool) (Model, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultModel
	}

	if model, ok := LookupModel(ref); ok {
		return model, nil
	}

	if !allowCustom {
		return Model{}, fmt.Errorf("unknown transcription model %q (known models: %s)", ref, strings.Join(ModelNames(), ", "))
	}

	return Model{Name: ref, IsCustom: true}, nil
}
