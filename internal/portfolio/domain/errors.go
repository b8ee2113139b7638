package domain

import "errors"

var (
	ErrInvalidOwner         = errors.New("invalid_owner")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidPurchasePrice = errors.New("invalid_purchase_price")
	ErrInvalidPurchaseDate  = errors.New("invalid_purchase_date")
	ErrInvalidAddress       = errors.New("invalid_address")
	ErrInvalidLoan          = errors.New("invalid_loan_terms")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidValuation     = errors.New("invalid_valuation")
	ErrInvalidReference     = errors.New("invalid_reference")
	ErrNotFound             = errors.New("not_found")
)
