package security

import "errors"

// ErrForbidden marks an authorization failure.
var ErrForbidden = errors.New("access denied")
