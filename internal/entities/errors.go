package entities

import "errors"

var (
	ErrInvalidPhone          = errors.New("invalid phone")
	ErrTenantNotFound        = errors.New("association not found")
	ErrTenantInactive        = errors.New("association inactive")
	ErrDirectoryNotFound     = errors.New("directory: contact not found")
	ErrDirectoryUnavailable  = errors.New("directory unavailable")
	ErrDirectoryUnauthorized = errors.New("directory unauthorized")
	ErrNeedsLeadCapture      = errors.New("needs lead capture")
	ErrInvalidTransition     = errors.New("invalid conversation transition")
	ErrDuplicateConversation = errors.New("duplicate open conversation")
	ErrDeliveryFailed        = errors.New("delivery failed")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrPatientNotFound       = errors.New("patient not found")
	ErrUnauthorized          = errors.New("unauthorized")

	// ErrStaleState is returned by stores when a compare-and-set on conversation status loses a race.
	ErrStaleState = errors.New("conversation state changed concurrently")
)
