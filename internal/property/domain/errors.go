package domain

import "errors"

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidAddress   = errors.New("invalid_address")
	ErrInvalidCity      = errors.New("invalid_city")
	ErrInvalidState     = errors.New("invalid_state")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidValuation = errors.New("invalid_valuation")
	ErrInvalidSort      = errors.New("invalid_sort")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("not_found")
)
