package dispatcher

import (
	"context"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"
)

// Router picks the sender configured for each channel.
type Router struct {
	routes map[models.Channel]IDispatcher
}

func NewRouter(routes map[models.Channel]IDispatcher) *Router {
	return &Router{routes: routes}
}

func (r *Router) Send(ctx context.Context, target string, code string, channel models.Channel) (models.DispatchResult, error) {
	route, ok := r.routes[channel]
	if !ok {
		return models.DispatchResult{}, apierrors.NewAPIError(503, apierrors.ErrChannelUnavailable)
	}
	return route.Send(ctx, target, code, channel)
}
