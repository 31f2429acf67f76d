package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Error taxonomy shared by the socket and HTTP surfaces. NotFound is also
// returned for cross-tenant access so existence is never leaked.
var (
	ErrUnauthorized = NewCodeError(401, "unauthorized")
	ErrBadRequest   = NewCodeError(400, "bad request")
	ErrNotFound     = NewCodeError(404, "not found")
	ErrInternal     = NewCodeError(500, "internal error")
)

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// WithDetail returns a copy carrying extra context; the receiver is shared
// sentinel state and must not be mutated.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Code extracts the taxonomy code from err, defaulting to 500 for anything
// that is not a CodeError.
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 500
}

// IsNotFound reports whether err carries the NotFound code.
func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound.Code
}
