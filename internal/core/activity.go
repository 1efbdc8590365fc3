package core

import (
	"mfaengine/internal/activity"
	"mfaengine/internal/models"
)

func NewActivityLogger(config models.ActivityConfiguration) activity.IActivityLogger {
	switch config.Type {
	case "filesystem":
		return activity.NewFilesystemClient(config)
	default:
		return nil
	}
}
