package chainrpc

// Result is the outcome of an I/O boundary call: a value or an *Error,
// never both.
type Result[V any] struct {
	value V
	err   *Error
}

func Ok[V any](v V) Result[V] {
	return Result[V]{value: v}
}

// Fail wraps err. A nil err is itself a bug in the caller and is reported as
// an internal error rather than a success.
func Fail[V any](err *Error) Result[V] {
	if err == nil {
		err = Internal("failure without error", nil)
	}
	return Result[V]{err: err}
}

func (r Result[V]) IsOk() bool { return r.err == nil }

// Value returns the value and whether the call succeeded.
func (r Result[V]) Value() (V, bool) {
	return r.value, r.err == nil
}

func (r Result[V]) Err() *Error { return r.err }

// Unwrap converts to the usual Go pair. The returned error is a nil
// interface on success.
func (r Result[V]) Unwrap() (V, error) {
	if r.err != nil {
		return r.value, r.err
	}
	return r.value, nil
}

// Map applies f to a successful value.
func Map[V, W any](r Result[V], f func(V) W) Result[W] {
	if r.err != nil {
		return Result[W]{err: r.err}
	}
	return Ok(f(r.value))
}

// Then chains a second fallible step.
func Then[V, W any](r Result[V], f func(V) Result[W]) Result[W] {
	if r.err != nil {
		return Result[W]{err: r.err}
	}
	return f(r.value)
}
