package identity

import "errors"

// ErrorKind is the coarse reason an identity operation failed.
type ErrorKind string

const (
	EmailInUse         ErrorKind = "email_in_use"
	WeakPassword       ErrorKind = "weak_password"
	InvalidCredentials ErrorKind = "invalid_credentials"
	Other              ErrorKind = "other"
)

// AuthError is returned by sign-up and sign-in. Msg is safe to show users.
type AuthError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

var (
	ErrSessionInvalid  = errors.New("identity: session invalid")
	ErrUnknownProvider = errors.New("identity: unknown federated provider")
)

func authErr(kind ErrorKind, msg string, err error) error {
	return &AuthError{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of an AuthError in err's chain, or Other.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Other
}
