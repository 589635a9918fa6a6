package service

import "errors"

// FailureKind classifies user-facing auth failures. Callers branch on the
// kind; the message is the only detail ever surfaced.
type FailureKind string

const (
	FailureInvalidCredentials FailureKind = "INVALID_CREDENTIALS"
	FailureInvalidToken       FailureKind = "INVALID_OR_EXPIRED_TOKEN"
	FailureTenantAccessDenied FailureKind = "TENANT_ACCESS_DENIED"
	FailureNotFound           FailureKind = "NOT_FOUND"
)

// Failure is a typed, value-carrying auth error. Primary-path failures are
// returned as Failures; infrastructure errors pass through untyped.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string { return f.Message }

func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// Uniform user-facing messages. Credential and token failures never reveal
// which check rejected the request.
var (
	errBadCredentials = NewFailure(FailureInvalidCredentials, "invalid email or password")
	errBadToken       = NewFailure(FailureInvalidToken, "invalid or expired token")
	errOperatorDenied = NewFailure(FailureTenantAccessDenied, "operator accounts must sign in through the operations portal")
)

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind FailureKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
