package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetLogger() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestDebugSuppressedByDefault(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("hidden %s", "message")
	assert.Empty(t, buf.String())
}

func TestDebugEmittedWhenVerbose(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("indexing %d documents", 3)
	assert.Contains(t, buf.String(), "[DEBUG] indexing 3 documents")
}

func TestWarnAlwaysEmitted(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)

	Warn("source %s marked stale", "feed-1")
	assert.Contains(t, buf.String(), "[WARN] source feed-1 marked stale")
}

func TestSectionHeader(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Section("Query Execution")
	assert.Contains(t, buf.String(), "=== Query Execution ===")
}
