package applog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestForPrefixesComponentName(t *testing.T) {
	sink := NewSink(Options{})
	logger := sink.For("backup")
	if logger.Prefix() != "[backup] " {
		t.Fatalf("got prefix %q", logger.Prefix())
	}
}

func TestNewSinkWritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "devenv.log")

	sink := NewSink(Options{LogFile: logFile})
	sink.For("restore").Println("hello from test")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain output")
	}
}

func TestNonZero(t *testing.T) {
	if got := nonZero(0, 7); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
	if got := nonZero(-1, 7); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
	if got := nonZero(3, 7); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}
