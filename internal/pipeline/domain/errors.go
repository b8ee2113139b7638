package domain

import "errors"

var (
	ErrInvalidOwner       = errors.New("invalid_owner")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidPosition    = errors.New("invalid_position")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrInvariantViolation = errors.New("invariant_violation")
	ErrBusy               = errors.New("pipeline_busy")
	ErrNotFound           = errors.New("not_found")
)
