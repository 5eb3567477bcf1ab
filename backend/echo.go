package backend

import (
	"context"
	"strings"
	"time"
)

// Echo streams the request content back word by word. It needs no network
// and is used for offline runs.
type Echo struct {
	Delay time.Duration
}

func (e *Echo) Chat(ctx context.Context, req Request, events chan<- Event) error {
	ctx, handle, release := Abortable(ctx)
	defer release()

	events <- ControllerReady{Handle: handle}

	var sb strings.Builder
	for i, word := range strings.Fields(req.Content) {
		if e.Delay > 0 {
			select {
			case <-ctx.Done():
				events <- Failed{Err: Cause(ctx)}
				return nil
			case <-time.After(e.Delay):
			}
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(word)
		events <- Update{Content: sb.String()}
	}

	if ctx.Err() != nil {
		events <- Failed{Err: Cause(ctx)}
		return nil
	}

	events <- Reply(req, sb.String())
	return nil
}
