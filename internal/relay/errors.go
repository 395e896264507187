package relay

import (
	"errors"
	"fmt"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var (
	// ErrMissingAuthorization is returned when a route needs the caller's
	// bearer credential and none was sent.
	ErrMissingAuthorization = errors.New("authorization header required")

	// ErrMalformedJSON is returned when a 2xx upstream body is not valid JSON.
	ErrMalformedJSON = errors.New("upstream returned malformed JSON")

	// ErrResponseTooLarge is returned when the upstream body exceeds
	// upstream.max_response_bytes.
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// StatusError reports a non-2xx upstream response whose body was not JSON.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// ParamError reports a missing or malformed query parameter.
type ParamError struct {
	Field   string
	Missing bool
	Err     error
}

func (e *ParamError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing required parameter %q", e.Field)
	}
	return fmt.Sprintf("invalid parameter %q: %v", e.Field, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// dotSegment rejects owner and repository names that would climb out of the
// route's path template once the upstream URL is resolved.
var dotSegment = validation.NotIn(".", "..").Error("must not be a dot path segment")

// paramRules holds format rules applied to a parameter whenever it is present.
var paramRules = map[string][]validation.Rule{
	"number":   {is.Digit},
	"page":     {is.Digit},
	"username": {dotSegment},
	"repo":     {dotSegment},
}

// Validate checks the call against the route's parameter and credential
// requirements without touching the network.
func Validate(route *Route, call *Call) error {
	params := call.Params
	if params == nil {
		params = url.Values{}
	}

	for _, name := range route.Required {
		if err := validation.Validate(params.Get(name), validation.Required); err != nil {
			return &ParamError{Field: name, Missing: true, Err: err}
		}
	}

	for _, group := range [][]string{route.Required, route.Optional} {
		for _, name := range group {
			rules, ok := paramRules[name]
			if !ok {
				continue
			}
			if err := validation.Validate(params.Get(name), rules...); err != nil {
				return &ParamError{Field: name, Err: err}
			}
		}
	}

	if route.RequireAuth && call.Authorization == "" {
		return ErrMissingAuthorization
	}
	return nil
}
