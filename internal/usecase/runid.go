package usecase

import "github.com/google/uuid"

// newRunID returns a time-ordered id for log correlation.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
