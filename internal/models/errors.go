package models

import "errors"

// Domain errors surfaced by the directory, log, and relay. Validation
// errors reach the caller of a send; transport failures never do.
var (
	ErrChatNotFound     = errors.New("ChatNotFound")
	ErrNotParticipant   = errors.New("NotParticipant")
	ErrUserNotFound     = errors.New("UserNotFound")
	ErrTransportFailure = errors.New("TransportFailure")
)
