package domain

import "errors"

var (
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrDuplicateReceipt     = errors.New("duplicate receipt")
	ErrNoAnchorForOperation = errors.New("no anchor for operation")
	ErrPolicyNotFound       = errors.New("policy not found")
	ErrRevokedArtifact      = errors.New("revoked artifact")
	ErrVerificationMismatch = errors.New("verification mismatch")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
)
