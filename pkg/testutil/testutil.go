// Package testutil provides helpers shared by sweepline tests
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/store"
)

// TestLogger creates a logger that writes to the test output
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext returns a context that is canceled after 30 seconds or when
// the test ends, whichever comes first
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventually fails the test unless condition becomes true within
// timeout. It polls every 10ms.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// WriteFile writes content to name inside a fresh temporary directory and
// returns the path
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// DataFile builds the text of a data file from its field names and rows of
// space separated values
func DataFile(fields []string, rows ...string) string {
	var b strings.Builder
	b.WriteString(store.Header(fields, store.DefaultOptions()))
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}

// Records parses data file text
func Records(t *testing.T, text string) []*models.Record {
	t.Helper()
	records, err := store.ReadFrom(strings.NewReader(text), "test")
	require.NoError(t, err)
	return records
}
