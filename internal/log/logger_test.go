package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJSONLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewWithWriter(&buf, "warn", "json"), "hub")

	logger.Info().Msg("hidden")
	logger.Warn().Int64("user_id", 7).Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["component"] != "hub" || entry["user_id"] != float64(7) {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
