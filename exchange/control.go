package exchange

import (
	"context"
	"errors"
	"strings"

	"github.com/tailored-agentic-units/exchange/backend"
	"github.com/tailored-agentic-units/exchange/core/protocol"
	"github.com/tailored-agentic-units/exchange/extract"
	"github.com/tailored-agentic-units/exchange/message"
	"github.com/tailored-agentic-units/exchange/observability"
	"github.com/tailored-agentic-units/exchange/session"
)

// Stop aborts the pending exchange whose assistant placeholder has the given
// id. It reports false when nothing is pending under that key.
func (o *Orchestrator) Stop(ctx context.Context, sessionID, messageID string) bool {
	stopped := o.registry.Stop(sessionID, messageID)
	if stopped {
		o.emit(ctx, EventStop, observability.LevelInfo, map[string]any{
			"session": sessionID,
			"message": messageID,
		})
	}
	return stopped
}

// StopAll aborts every pending exchange of a session and returns how many
// were stopped.
func (o *Orchestrator) StopAll(ctx context.Context, sessionID string) int {
	n := o.registry.StopAll(sessionID)
	if n > 0 {
		o.emit(ctx, EventStop, observability.LevelInfo, map[string]any{
			"session": sessionID,
			"count":   n,
		})
	}
	return n
}

// Retry runs the user turn behind messageID again. messageID may name the
// assistant reply or the user message itself. A pending exchange for the
// reply is stopped first. The old pair stays in the session and the new
// exchange is appended with fresh ids.
//
// URL turns are fetched again from their stored source. Uploads are not
// stored, so a file must be passed again to be re-extracted; without it Retry
// fails with ErrUploadRequired.
func (o *Orchestrator) Retry(ctx context.Context, sess session.Session, messageID string, onUpdate UpdateFunc, upload *extract.Upload) (*protocol.Message, error) {
	if sess == nil {
		return nil, ErrNilSession
	}

	msg, ok := sess.Message(messageID)
	if !ok {
		return nil, ErrMessageNotFound
	}

	user := msg
	if msg.Role != protocol.RoleUser {
		if user, ok = sess.Message(msg.ReplyTo); !ok {
			return nil, ErrMessageNotFound
		}
	}

	input, err := retryInput(user, upload)
	if err != nil {
		return nil, err
	}

	if msg.ID != user.ID {
		o.registry.Stop(sess.ID(), msg.ID)
	}

	o.emit(ctx, EventRetry, observability.LevelInfo, map[string]any{
		"session": sess.ID(),
		"message": messageID,
	})

	return o.Run(ctx, sess, input, onUpdate, upload)
}

func retryInput(user protocol.Message, upload *extract.Upload) (string, error) {
	if user.URLDetail == nil || upload != nil {
		return user.Content, nil
	}
	if extract.IsURL(user.URLDetail.URL) {
		return user.URLDetail.URL, nil
	}
	return "", ErrUploadRequired
}

// IsAbort reports whether err ended an exchange because it was stopped
// rather than because it failed. Aborted exchanges do not flag their
// messages as errors.
func IsAbort(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, backend.ErrAborted) || errors.Is(err, context.Canceled) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "aborted")
}

func prettyError(err error) string {
	return "```json\n" + message.FormatError(err) + "\n```"
}
