package secret

import "errors"

var (
	// ErrNullInput reports a missing payload, store, secret or callback.
	ErrNullInput = errors.New("secret: nil input")
	// ErrSizeExceeded reports a payload over MaxBytes or MaxTextUnits, or a
	// binary length that does not match an adopted store.
	ErrSizeExceeded = errors.New("secret: size exceeded")
	// ErrUseAfterDispose reports a use of a disposed secret.
	ErrUseAfterDispose = errors.New("secret: use after dispose")
	// ErrInvalidText reports text input that is not valid UTF-8.
	ErrInvalidText = errors.New("secret: text is not valid UTF-8")
)
