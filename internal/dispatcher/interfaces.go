package dispatcher

import (
	"context"

	"mfaengine/internal/models"
)

// IDispatcher delivers a one-time code. Delivery means accepted by the transport,
// never confirmed by the end user.
type IDispatcher interface {
	Send(ctx context.Context, target string, code string, channel models.Channel) (models.DispatchResult, error)
}
