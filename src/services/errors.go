package services

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidParam       = errors.New("invalid parameter")
	ErrInvalidEntity      = errors.New("invalid entity type")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired invitation token")
	ErrConflict           = errors.New("ambiguous record identifier")
	ErrUnavailable        = errors.New("service temporarily unavailable")
)
