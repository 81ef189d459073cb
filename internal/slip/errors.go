package slip

import "errors"

// ErrValidation is matched by every reason the assembler refuses to build.
var ErrValidation = errors.New("slip: invalid")

var (
	ErrMissingPatient = invalid("patient first and last name are required")
	ErrMissingDoctor  = invalid("doctor is required")
	ErrMissingLab     = invalid("lab is required")
	ErrNoProducts     = invalid("product list is empty, reload the products and try again")
)

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }

func invalid(msg string) error { return &validationError{msg: msg} }
