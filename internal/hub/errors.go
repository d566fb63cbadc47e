package hub

import "errors"

var (
	// ErrUnknownChannel is returned for a channel name the hub was not
	// configured with.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrClientExists is returned when Connect is called with a
	// duplicate client id.
	ErrClientExists = errors.New("client id already connected")

	// ErrClientNotFound is returned for operations on an unknown client.
	ErrClientNotFound = errors.New("client id not found")

	// ErrHubClosed is returned when operations are attempted on a
	// closed hub.
	ErrHubClosed = errors.New("hub is closed")

	// ErrAlertTimeout is returned when the alerts queue stays full for
	// longer than the publish deadline. Alerts are never silently
	// dropped, so the caller must hear about it.
	ErrAlertTimeout = errors.New("alert publish timed out")
)
