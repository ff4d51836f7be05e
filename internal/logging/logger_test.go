package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"marklift/internal/logging"
)

func TestConsoleHandlerFoldsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logging.WithComponent(logger, "tracker").Info("job complete", "job_id", "j-1")

	line := buf.String()
	if !strings.Contains(line, "tracker: job complete") {
		t.Fatalf("component prefix missing: %q", line)
	}
	if !strings.Contains(line, "job_id=j-1") {
		t.Fatalf("attribute missing: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be folded into prefix: %q", line)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("should be dropped")
	logger.Warn("should appear")

	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("info leaked through warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("warn missing: %q", buf.String())
	}
}

func TestJSONHandlerKeyRemapping(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello", "job_id", "j-2")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %q in %v", key, decoded)
		}
	}
	if decoded["level"] != "info" {
		t.Fatalf("level not lowercased: %v", decoded["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
