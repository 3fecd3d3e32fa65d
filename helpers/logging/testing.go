package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
)

// LogCapture captures log output for testing and validation
type LogCapture struct {
	buffer bytes.Buffer
	mu     sync.Mutex
}

// Write implements io.Writer.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buffer.Write(p)
}

// NewTestLogger returns a redacting debug-level logger for component whose
// output is captured instead of written to stderr.
func NewTestLogger(t testing.TB, component string) (hclog.Logger, *LogCapture) {
	t.Helper()

	capture := &LogCapture{}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   RootName,
		Level:  hclog.Debug,
		Output: capture,
	})
	if component != "" {
		logger = logger.Named(component)
	}
	return Redacting(logger), capture
}

// Output returns the captured log output
func (lc *LogCapture) Output() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buffer.String()
}

// Lines returns the captured output split into non-empty lines.
func (lc *LogCapture) Lines() []string {
	var lines []string
	for _, line := range strings.Split(lc.Output(), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// AssertContains checks that the log output contains the expected message
func (lc *LogCapture) AssertContains(t testing.TB, expected string) {
	t.Helper()
	if output := lc.Output(); !strings.Contains(output, expected) {
		t.Errorf("Expected log output to contain %q, but got:\n%s", expected, output)
	}
}

// AssertNotContains checks that the log output does not contain the message
func (lc *LogCapture) AssertNotContains(t testing.TB, unexpected string) {
	t.Helper()
	if output := lc.Output(); strings.Contains(output, unexpected) {
		t.Errorf("Expected log output to NOT contain %q, but got:\n%s", unexpected, output)
	}
}

// Clear clears the captured log output
func (lc *LogCapture) Clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buffer.Reset()
}
