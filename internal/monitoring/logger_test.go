package monitoring

import (
	"fmt"
	"testing"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)

	Logf("hello %d", 1)
	if len(*lines) != 1 || (*lines)[0] != "hello 1" {
		t.Errorf("custom logger got %v", *lines)
	}

	SetLogger(nil)
	// Must not panic and must not reach the previous logger.
	Logf("dropped")
	if len(*lines) != 1 {
		t.Errorf("no-op logger forwarded a message: %v", *lines)
	}
}

func TestWarnf(t *testing.T) {
	lines := captureLogs(t)

	Warnf("Timeout while waiting TF %s -> %s", "laser", "base_footprint")
	want := "[warn] Timeout while waiting TF laser -> base_footprint"
	if len(*lines) != 1 || (*lines)[0] != want {
		t.Errorf("Warnf got %v, want [%q]", *lines, want)
	}
}

func TestDebugf(t *testing.T) {
	lines := captureLogs(t)
	defer func(v bool) { Verbose = v }(Verbose)

	Verbose = false
	Debugf("hidden")
	if len(*lines) != 0 {
		t.Errorf("Debugf logged while not verbose: %v", *lines)
	}

	Verbose = true
	Debugf("shown %s", "now")
	if len(*lines) != 1 || (*lines)[0] != "[debug] shown now" {
		t.Errorf("Debugf got %v", *lines)
	}
}
