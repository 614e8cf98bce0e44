package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// BusinessError is a validation/state failure the caller can act on
// (bad input, wrong lifecycle status, empty eligibility). The HTTP layer
// maps these to 400; anything else is a 500.
type BusinessError struct {
	Reason string
}

func (e *BusinessError) Error() string {
	return e.Reason
}

func NewBusinessError(reason string) error {
	return &BusinessError{Reason: reason}
}

func IsBusinessError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}
