package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrAuth                = errors.New("invalid credentials")
	ErrUnverified          = errors.New("email is not verified")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidSignature    = errors.New("invalid payment signature")
	ErrInvalidCategory     = errors.New("invalid generator type")
	ErrGenerationFailed    = errors.New("failed to generate prompt")
	ErrGateway             = errors.New("payment gateway unavailable")
	ErrExportDisabled      = errors.New("history export is not configured")
	ErrStorage             = errors.New("storage unavailable")
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
