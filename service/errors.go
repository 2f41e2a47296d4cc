package service

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFile      = errors.New("missing file")
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrInvalidImage     = errors.New("invalid image content")
)

// ClientError is a rejection caused by the uploaded input. It maps to 400.
type ClientError struct {
	Kind    error
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ClientError) Is(target error) bool {
	return target == e.Kind
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ProcessingError is any failure after the input was accepted. It maps to 500.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

func clientError(kind error, msg string, cause error) error {
	return &ClientError{Kind: kind, Message: msg, Err: cause}
}

func processingError(stage string, err error) error {
	return &ProcessingError{Stage: stage, Err: err}
}
