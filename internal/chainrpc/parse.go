package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/rpc"
)

// RawCarrier is implemented by transport errors that hold an undecoded
// JSON-RPC error object.
type RawCarrier interface {
	error
	RawError() json.RawMessage
}

// FromError converts whatever a transport returned into an *Error. It is the
// only place raw transport failures are inspected.
//
// Errors carrying a recognised code keep code, message and data. Anything
// else becomes an internal error with the original detail preserved in Data.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Internal("request aborted", err.Error())
	}

	var carrier RawCarrier
	if errors.As(err, &carrier) {
		return FromRaw(carrier.RawError())
	}

	var coded rpc.Error
	if errors.As(err, &coded) {
		code := Code(coded.ErrorCode())
		var data any
		var withData rpc.DataError
		if errors.As(err, &withData) {
			data = withData.ErrorData()
		}
		if !code.Known() {
			return Internal(coded.Error(), map[string]any{
				"code":    coded.ErrorCode(),
				"message": coded.Error(),
				"data":    data,
			})
		}
		return &Error{Code: code, Message: coded.Error(), Data: data}
	}

	return Internal(err.Error(), err.Error())
}

type rawError struct {
	Code    *int            `json:"code"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// FromRaw validates a JSON error object received over the wire against the
// {code, message, data?} schema.
func FromRaw(raw json.RawMessage) *Error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var re rawError
	if err := dec.Decode(&re); err != nil || re.Code == nil || re.Message == nil {
		return Internal("malformed error object", string(raw))
	}

	code := Code(*re.Code)
	var data any
	if len(re.Data) > 0 && !bytes.Equal(re.Data, []byte("null")) {
		if err := json.Unmarshal(re.Data, &data); err != nil {
			data = string(re.Data)
		}
	}
	if !code.Known() {
		return Internal(*re.Message, map[string]any{
			"code":    *re.Code,
			"message": *re.Message,
			"data":    data,
		})
	}
	return &Error{Code: code, Message: *re.Message, Data: data}
}
