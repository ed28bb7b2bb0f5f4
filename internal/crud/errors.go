package crud

import (
	"errors"
	"fmt"

	"modelql/internal/authz"
	"modelql/internal/validate"
)

// NotFoundError reports that a uniquely-filtered target does not exist. It is
// surfaced as-is and never retried.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// IsNotFound reports whether err is a missing-target failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDenied reports whether err is an authorization denial.
func IsDenied(err error) bool {
	var denied *authz.DeniedError
	return errors.As(err, &denied)
}

// IsValidation reports whether err is a payload or filter violation.
func IsValidation(err error) bool {
	var ve *validate.Error
	return errors.As(err, &ve)
}

// IsConfig reports whether err is a fatal rule-authoring defect.
func IsConfig(err error) bool {
	var ce *authz.ConfigError
	return errors.As(err, &ce)
}
