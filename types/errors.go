package types

import "errors"

// Sentinel errors returned by the validated constructors in this package.
// These are deliberately local (not part of ulperrors) so that types stays
// leaf-level and importable from ulperrors without a cycle; callers that
// want the richer taxonomy wrap these with ulperrors.NewInvalidArgumentError.
var (
	ErrInvalidAET = errors.New("invalid AE title")
	ErrInvalidUID = errors.New("invalid UID")
)
