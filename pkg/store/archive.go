package store

import (
	"os"
	"path/filepath"

	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
)

// Archive writes a compressed copy of the data file at path next to it and
// returns the archive path. The original is left in place. The archive is
// written to a temporary file first so a partial archive is never visible.
func Archive(path string, alg compression.Algorithm, level compression.Level) (string, error) {
	if alg == compression.None {
		return "", errors.New(errors.ErrorTypeConfig, "archive needs a compression algorithm").
			WithDetail("file", path)
	}
	dest := path + alg.Extension()

	src, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open data file").WithDetail("file", path)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create archive").WithDetail("file", dest)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := compression.CompressStream(tmp, src, alg, level); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to compress data file").
			WithDetail("file", path).
			WithDetail("compression", string(alg))
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write archive").WithDetail("file", dest)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to move archive into place").WithDetail("file", dest)
	}
	return dest, nil
}
