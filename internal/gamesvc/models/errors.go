package models

import "errors"

var (
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrIllegalMove         = errors.New("illegal move")
	ErrNotFound            = errors.New("not found")
	ErrNotJoinable         = errors.New("tournament not joinable")
	ErrCapacityExceeded    = errors.New("tournament capacity exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDownstream          = errors.New("downstream failure")
)
