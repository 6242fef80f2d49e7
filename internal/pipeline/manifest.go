package pipeline

import (
	"os"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	jsonpool "github.com/ajitpratap0/sweepline/pkg/json"
	"github.com/ajitpratap0/sweepline/pkg/observability"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// ManifestSuffix is appended to a data file's path to name its manifest
const ManifestSuffix = ".manifest.json"

// Manifest records how a data file was produced
type Manifest struct {
	Summary
	Version string             `json:"version"`
	Data    string             `json:"data"`
	Fields  []string           `json:"fields"`
	Space   sweep.Space        `json:"space"`
	Argv    []string           `json:"argv,omitempty"`
	Host    observability.Host `json:"host"`
	// Config is the effective configuration of the run
	Config interface{} `json:"config,omitempty"`
}

// ManifestPath returns the manifest path for a data file
func ManifestPath(data string) string {
	return data + ManifestSuffix
}

// WriteManifest writes m next to its data file
func WriteManifest(m *Manifest) (string, error) {
	path := ManifestPath(m.Data)
	data, err := jsonpool.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode manifest")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write manifest").
			WithDetail("file", path)
	}
	return path, nil
}

// ReadManifest loads the manifest of a data file
func ReadManifest(data string) (*Manifest, error) {
	path := ManifestPath(data)
	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read manifest").
			WithDetail("file", path)
	}
	m := &Manifest{}
	if err := jsonpool.Unmarshal(raw, m); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid manifest").
			WithDetail("file", path)
	}
	return m, nil
}
