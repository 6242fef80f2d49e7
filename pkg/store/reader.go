package store

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/models"
)

const maxLine = 1 << 20

// Read loads every record of a data file. Files with a compression
// extension are decompressed transparently. An empty file has no records.
func Read(path string) ([]*models.Record, error) {
	r, closeFn, err := open(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return ReadFrom(r, path)
}

// ReadHeader returns the field names of a data file's header, or nil when
// the file is empty.
func ReadHeader(path string) ([]string, error) {
	r, closeFn, err := open(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if skippable(line) {
			continue
		}
		fields, _ := parseHeader(line)
		return fields, nil
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read data file").WithDetail("file", path)
	}
	return nil, nil
}

func open(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open data file").
			WithDetail("file", path)
	}
	alg := compression.FromPath(path)
	dec, err := compression.NewReader(f, alg)
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open compressed data file").
			WithDetail("file", path).
			WithDetail("compression", string(alg))
	}
	return dec, func() {
		_ = dec.Close()
		_ = f.Close()
	}, nil
}

// ReadFrom parses records from r. name identifies the source in errors.
func ReadFrom(r io.Reader, name string) ([]*models.Record, error) {
	sc := newScanner(r)

	var (
		header []string
		comma  bool
		out    []*models.Record
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if skippable(line) {
			continue
		}

		if header == nil {
			header, comma = parseHeader(line)
			if _, err := models.NewRecord(header...); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeIntegrity, "invalid header").
					WithDetail("file", name).
					WithDetail("line", lineNo)
			}
			continue
		}

		tokens := split(line, comma)
		if isHeaderLine(tokens) {
			again, _ := parseHeader(line)
			if !equalFields(again, header) {
				return nil, errors.New(errors.ErrorTypeIntegrity, "header differs from the first header").
					WithDetail("file", name).
					WithDetail("line", lineNo)
			}
			continue
		}
		if len(tokens) != len(header) {
			return nil, errors.New(errors.ErrorTypeIntegrity, "row arity does not match header").
				WithDetail("file", name).
				WithDetail("line", lineNo).
				WithDetail("expected", len(header)).
				WithDetail("actual", len(tokens))
		}

		rec := models.MustRecord(header...)
		for i, tok := range tokens {
			// header names are unique, so Set cannot fail
			_ = rec.Set(header[i], models.Coerce(tok))
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read data file").
			WithDetail("file", name).
			WithDetail("line", lineNo)
	}
	return out, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return sc
}

// skippable reports blank lines and gnuplot-style comments
func skippable(line string) bool {
	return line == "" || strings.HasPrefix(line, "#")
}

// parseHeader strips the position prefix from each token. It also reports
// whether the header is comma delimited.
func parseHeader(line string) ([]string, bool) {
	comma := strings.Contains(line, ",")
	tokens := split(line, comma)
	fields := make([]string, len(tokens))
	for i, tok := range tokens {
		fields[i] = stripPosition(tok)
	}
	return fields, comma
}

func split(line string, comma bool) []string {
	if !comma {
		return strings.Fields(line)
	}
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func stripPosition(tok string) string {
	pos, name, ok := strings.Cut(tok, ":")
	if !ok || pos == "" {
		return tok
	}
	for _, c := range pos {
		if c < '0' || c > '9' {
			return tok
		}
	}
	return name
}

// isHeaderLine reports whether the tokens carry the position prefixes
// 1:, 2:, 3: ... in order. String values may contain ':' so a single
// prefixed token is not enough.
func isHeaderLine(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for i, tok := range tokens {
		pos, _, ok := strings.Cut(tok, ":")
		if !ok || pos != strconv.Itoa(i+1) {
			return false
		}
	}
	return true
}
