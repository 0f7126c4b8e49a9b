package chainrpc

import (
	"errors"
	"fmt"
)

// Error is the ProviderRpcError shape. Values are produced by FromError and
// FromRaw; everything downstream of a transport sees only this type.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error %d: %s", int(e.Code), e.Code)
	}
	return fmt.Sprintf("rpc error %d: %s", int(e.Code), e.Message)
}

// ErrorCode and ErrorData let go-ethereum's rpc server forward the error
// unchanged to a client.
func (e *Error) ErrorCode() int { return int(e.Code) }

func (e *Error) ErrorData() any { return e.Data }

// UserRejected reports whether the user declined a wallet prompt.
func (e *Error) UserRejected() bool {
	return e != nil && e.Code == CodeUserRejected
}

// Internal builds an internal error carrying detail in Data.
func Internal(message string, data any) *Error {
	return &Error{Code: CodeInternal, Message: message, Data: data}
}

// ProtocolViolation reports a response whose shape does not match the method.
func ProtocolViolation(method string, raw []byte) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: "unexpected response shape for " + method,
		Data:    string(raw),
	}
}

// IsUserRejected reports whether err is, or wraps, a 4001 error.
func IsUserRejected(err error) bool {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.UserRejected()
	}
	return false
}
