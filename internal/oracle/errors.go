package oracle

import (
	"errors"
	"fmt"
)

var (
	ErrOracle          = errors.New("oracle failure")
	ErrNoJSON          = errors.New("no JSON object in response")
	ErrEmptyResponse   = errors.New("empty response from model")
	ErrUnknownProvider = errors.New("unknown oracle provider")
	ErrMissingAPIKey   = errors.New("oracle api key is required")
)

// Kind classifies oracle failures.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindMalformed Kind = "malformed"
)

// OracleError is any failed generation: a timeout, a transport failure or
// a reply that does not match the response contract.
type OracleError struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s (%s): %v", e.Kind, e.Provider, e.Err)
}

// Unwrap exposes both ErrOracle and the underlying cause to errors.Is.
func (e *OracleError) Unwrap() []error {
	return []error{ErrOracle, e.Err}
}

func malformed(provider string, err error) *OracleError {
	return &OracleError{Kind: KindMalformed, Provider: provider, Err: err}
}

// PermanentError marks a backend failure that retrying cannot fix, such
// as an authentication error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
