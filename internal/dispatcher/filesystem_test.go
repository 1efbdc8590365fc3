package dispatcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"mfaengine/internal/models"
)

func newTestFilesystemSender(t *testing.T) (*FilesystemSender, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "outbox")
	return NewFilesystemSender(models.FilesystemDispatchConfiguration{Directory: dir}, "mfaengine"), dir
}

func TestFilesystemSend_WritesFile(t *testing.T) {
	s, dir := newTestFilesystemSender(t)

	result, err := s.Send(context.Background(), "+14155550100", "123456", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !result.Delivered || result.ProviderRef == "" {
		t.Fatalf("expected delivered result with provider ref, got %+v", result)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read directory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}

	var message map[string]any
	if err = json.Unmarshal(content, &message); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}

	if message["to"] != "+14155550100" {
		t.Errorf("expected to=+14155550100, got %v", message["to"])
	}
	if message["channel"] != "sms" {
		t.Errorf("expected channel=sms, got %v", message["channel"])
	}
	if message["code"] != "123456" {
		t.Errorf("expected code=123456, got %v", message["code"])
	}
	if message["id"] != result.ProviderRef {
		t.Errorf("expected id=%s, got %v", result.ProviderRef, message["id"])
	}
}

func TestFilesystemSend_MultipleMessages(t *testing.T) {
	s, dir := newTestFilesystemSender(t)

	for i := range 3 {
		if _, err := s.Send(context.Background(), "a@b.io", "654321", models.ChannelEmail); err != nil {
			t.Fatalf("Send call %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read directory: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 files, got %d", len(entries))
	}
}
