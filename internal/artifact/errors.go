package artifact

import "errors"

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID is returned when an artifact identity is empty, too
	// long, or contains control characters.
	ErrInvalidID = errors.New("invalid artifact id")

	// ErrNilPayload is returned when a completed upsert carries no
	// renderable payload. Payload is non-nil iff status is completed.
	ErrNilPayload = errors.New("completed artifact requires a payload")
)

// ValidateID checks if the identity is safe for use as a store key.
// Returns ErrInvalidID if validation fails.
//
// Validation rules:
//   - Must not be empty
//   - Must not exceed 128 characters
//   - Must not contain control characters or null bytes
//
// IDs arrive from three places (tool-call ids, server-issued chart ids,
// freshly minted UUIDs); all three satisfy these rules, anything else is a
// malformed wire value.
func ValidateID(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if len(id) > 128 {
		return ErrInvalidID
	}
	for _, c := range id {
		if c < 0x20 || c == 0x7f {
			return ErrInvalidID
		}
	}
	return nil
}
