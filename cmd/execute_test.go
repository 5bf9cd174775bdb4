package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything fn printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	r.Close()
	return buf.String()
}

func TestPrintVersionInfo(t *testing.T) {
	originalAppVersion := AppVersion
	originalBuildTime := BuildTime
	originalGitCommit := GitCommit
	defer func() {
		AppVersion = originalAppVersion
		BuildTime = originalBuildTime
		GitCommit = originalGitCommit
	}()

	AppVersion = "1.2.3"
	BuildTime = "2026-01-01T00:00:00Z"
	GitCommit = "abc123"

	output := captureStdout(t, printVersionInfo)

	for _, expected := range []string{
		"MedChat v1.2.3",
		"Build: 2026-01-01T00:00:00Z",
		"Commit: abc123",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected output to contain %q\nGot: %s", expected, output)
		}
	}
}

func TestPrintHelp(t *testing.T) {
	output := captureStdout(t, printHelp)

	for _, expected := range []string{
		"medchat serve",
		"medchat migrate",
		"medchat version",
		"MEDCHAT_PROVIDER",
		"DATABASE_URL",
		"GEMINI_API_KEY",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected help to contain %q", expected)
		}
	}
}

func TestExecute_Version(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()
	os.Args = []string{"medchat", "version"}

	output := captureStdout(t, func() {
		if err := Execute(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	if !strings.Contains(output, "MedChat v") {
		t.Errorf("expected version output, got: %s", output)
	}
}

func TestInitLogger(t *testing.T) {
	t.Setenv("DEBUG", "")
	logger := initLogger()
	if logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("expected debug disabled by default")
	}

	t.Setenv("DEBUG", "1")
	logger = initLogger()
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("expected debug enabled with DEBUG set")
	}
}
