package auth

import "fmt"

// Kind classifies authentication failures. The HTTP layer maps each kind to a status code.
type Kind int

const (
	KindInvalidOrExpiredState Kind = iota + 1
	KindUpstreamTokenExchangeFailed
	KindNoRefreshToken
	KindUpstreamProfileFetchFailed
	KindMissingCredential
	KindRefreshFailed
	KindRateLimited
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindInvalidOrExpiredState:
		return "invalid or expired state"
	case KindUpstreamTokenExchangeFailed:
		return "token exchange failed"
	case KindNoRefreshToken:
		return "no refresh token issued"
	case KindUpstreamProfileFetchFailed:
		return "profile fetch failed"
	case KindMissingCredential:
		return "missing credential"
	case KindRefreshFailed:
		return "token refresh failed"
	case KindRateLimited:
		return "rate limited"
	case KindUnauthenticated:
		return "not authenticated"
	default:
		return fmt.Sprintf("auth error %d", int(k))
	}
}

// Error is a classified authentication failure wrapping its cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrRefreshFailed) works on wrapped errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidOrExpiredState       = &Error{Kind: KindInvalidOrExpiredState}
	ErrUpstreamTokenExchangeFailed = &Error{Kind: KindUpstreamTokenExchangeFailed}
	ErrNoRefreshToken              = &Error{Kind: KindNoRefreshToken}
	ErrUpstreamProfileFetchFailed  = &Error{Kind: KindUpstreamProfileFetchFailed}
	ErrMissingCredential           = &Error{Kind: KindMissingCredential}
	ErrRefreshFailed               = &Error{Kind: KindRefreshFailed}
	ErrRateLimited                 = &Error{Kind: KindRateLimited}
	ErrUnauthenticated             = &Error{Kind: KindUnauthenticated}
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
