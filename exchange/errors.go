package exchange

import "errors"

var (
	// ErrNilSession is returned by Run and Retry when no session is given.
	ErrNilSession = errors.New("session is nil")

	// ErrNoTerminalEvent is the failure recorded when a backend returns
	// without sending Finished or Failed.
	ErrNoTerminalEvent = errors.New("backend returned without a terminal event")

	// ErrMessageNotFound is returned by Retry when the message or the user
	// turn it replies to is not in the session.
	ErrMessageNotFound = errors.New("message not found")

	// ErrUploadRequired is returned by Retry when the user turn came from a
	// file upload and no upload was passed to extract again.
	ErrUploadRequired = errors.New("retry of an uploaded file requires the upload")
)
