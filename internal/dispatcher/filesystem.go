package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mfaengine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FilesystemSender writes each message to a JSON file, for local development and tests.
type FilesystemSender struct {
	directory string
	issuer    string
}

func NewFilesystemSender(config models.FilesystemDispatchConfiguration, issuer string) *FilesystemSender {
	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		zap.L().Fatal("Failed to create outbox directory", zap.Error(err))
	}
	return &FilesystemSender{directory: config.Directory, issuer: issuer}
}

func (f *FilesystemSender) Send(_ context.Context, target string, code string, channel models.Channel) (models.DispatchResult, error) {
	ref := uuid.NewString()
	entry := map[string]any{
		"id":        ref,
		"to":        target,
		"channel":   channel,
		"code":      code,
		"body":      codeMessage(f.issuer, code),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	content, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return models.DispatchResult{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	path := filepath.Join(f.directory, fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), ref))
	if err = os.WriteFile(path, content, 0600); err != nil {
		return models.DispatchResult{}, fmt.Errorf("failed to write message file: %w", err)
	}

	zap.L().Info("Message written to filesystem",
		zap.String("path", path),
		zap.String("channel", string(channel)),
	)

	return models.DispatchResult{Delivered: true, ProviderRef: ref}, nil
}
