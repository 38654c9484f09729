// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrSendConfigNotFound struct {
	ConfigID int
}

func (e *ErrSendConfigNotFound) Error() string {
	return fmt.Sprintf("send configuration with ID %d not found", e.ConfigID)
}

func NewSendConfigNotFound(id int) error {
	return &ErrSendConfigNotFound{ConfigID: id}
}

// ValidationError carries a user-facing reason why a campaign cannot start.
// It propagates to the caller as a structured result, never as a crash.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrInvalidTransition reports a campaign lifecycle move outside the state
// machine.
type ErrInvalidTransition struct {
	From, To string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition campaign from %s to %s", e.From, e.To)
}

func NewInvalidTransition(from, to string) error {
	return &ErrInvalidTransition{From: from, To: to}
}
