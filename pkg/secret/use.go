package secret

import (
	"context"
	"errors"
	"fmt"

	"example.com/cryptkeeper/pkg/atrest"
	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/pool"
	"example.com/cryptkeeper/pkg/util/securemem"
)

// plaintext is the window of a slot that holds the unprotected value.
type plaintext struct {
	slot   *pool.Slot
	offset int
	n      int
}

func (p plaintext) bytes() []byte {
	if p.n == 0 {
		return []byte{}
	}
	return p.slot.Bytes()[p.offset : p.offset+p.n]
}

func (p plaintext) text() string {
	if p.n == 0 {
		return ""
	}
	return p.slot.String(p.offset, p.n)
}

// use runs fn over the plaintext held in a slot from p. The slot is wiped and
// released by a deferred call installed right after acquisition, so no exit
// from fn (error, panic, runtime.Goexit) skips it. Errors from fn are
// returned as they are.
func (s *Secret) use(ctx context.Context, p func(*resources) *pool.Pool, fn func(plaintext) error) error {
	if s == nil {
		return ErrNullInput
	}
	if s.disposed.Load() {
		return ErrUseAfterDispose
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.units == 0 {
		return fn(plaintext{})
	}

	slot := p(s.res).Acquire()
	defer slot.Release()

	pt, err := s.unprotect(slot)
	if err != nil {
		if errors.Is(err, atrest.ErrDisposed) {
			return ErrUseAfterDispose
		}
		s.logger.Debug("unprotect failed", "error", err)
		return fmt.Errorf("secret: unprotect: %w", err)
	}
	return fn(pt)
}

// unprotect asks the store for the units and converts them to the plaintext
// form inside the slot.
func (s *Secret) unprotect(slot *pool.Slot) (plaintext, error) {
	buf := slot.Bytes()
	unitBytes := buf[:2*s.units]
	units := codec.Units(unitBytes)
	if err := s.res.store.UnprotectInto(units); err != nil {
		return plaintext{}, err
	}
	if s.kind == kindBinary {
		codec.UnpackInPlace(buf, s.size)
		return plaintext{slot: slot, n: s.size}, nil
	}
	n := codec.DecodeUTF16(buf[len(unitBytes):], units)
	securemem.Wipe(unitBytes)
	return plaintext{slot: slot, offset: len(unitBytes), n: n}, nil
}

func bytesPool(r *resources) *pool.Pool { return r.bytesPool }

func textPool(r *resources) *pool.Pool { return r.textPool }

// UseBytes calls fn with the plaintext as bytes. A text secret is presented
// as its UTF-8 encoding. The slice is wiped when fn returns and must not be
// retained.
func (s *Secret) UseBytes(fn func(plaintext []byte) error) error {
	if fn == nil {
		return ErrNullInput
	}
	return s.use(context.Background(), bytesPool, func(p plaintext) error {
		return fn(p.bytes())
	})
}

// UseBytesContext is UseBytes with a context. A context that is already done
// fails the use before any plaintext is produced; fn receives ctx and should
// return promptly once it is cancelled.
func (s *Secret) UseBytesContext(ctx context.Context, fn func(ctx context.Context, plaintext []byte) error) error {
	if fn == nil || ctx == nil {
		return ErrNullInput
	}
	return s.use(ctx, bytesPool, func(p plaintext) error {
		return fn(ctx, p.bytes())
	})
}

// UseText calls fn with the plaintext as a string. The string aliases the
// slot memory: it reads as NUL bytes once fn returns and must not be
// retained. A binary secret is presented as its raw bytes.
func (s *Secret) UseText(fn func(plaintext string) error) error {
	if fn == nil {
		return ErrNullInput
	}
	return s.use(context.Background(), textPool, func(p plaintext) error {
		return fn(p.text())
	})
}

// UseTextContext is UseText with a context; see UseBytesContext.
func (s *Secret) UseTextContext(ctx context.Context, fn func(ctx context.Context, plaintext string) error) error {
	if fn == nil || ctx == nil {
		return ErrNullInput
	}
	return s.use(ctx, textPool, func(p plaintext) error {
		return fn(ctx, p.text())
	})
}

// UseBytesWith passes state through to fn, so hot paths can avoid a closure.
func UseBytesWith[T any](s *Secret, state T, fn func(state T, plaintext []byte) error) error {
	if fn == nil {
		return ErrNullInput
	}
	return s.use(context.Background(), bytesPool, func(p plaintext) error {
		return fn(state, p.bytes())
	})
}

// UseBytesFunc returns the result of fn. The result must not alias the
// plaintext.
func UseBytesFunc[R any](s *Secret, fn func(plaintext []byte) (R, error)) (R, error) {
	var r R
	if fn == nil {
		return r, ErrNullInput
	}
	err := s.use(context.Background(), bytesPool, func(p plaintext) (err error) {
		r, err = fn(p.bytes())
		return err
	})
	return r, err
}

// UseBytesWithFunc is UseBytesFunc with a caller state passed through to fn.
func UseBytesWithFunc[T, R any](s *Secret, state T, fn func(state T, plaintext []byte) (R, error)) (R, error) {
	var r R
	if fn == nil {
		return r, ErrNullInput
	}
	err := s.use(context.Background(), bytesPool, func(p plaintext) (err error) {
		r, err = fn(state, p.bytes())
		return err
	})
	return r, err
}

// UseTextWith passes state through to fn.
func UseTextWith[T any](s *Secret, state T, fn func(state T, plaintext string) error) error {
	if fn == nil {
		return ErrNullInput
	}
	return s.use(context.Background(), textPool, func(p plaintext) error {
		return fn(state, p.text())
	})
}

// UseTextFunc returns the result of fn. The result must not alias the
// plaintext; substrings of it do.
func UseTextFunc[R any](s *Secret, fn func(plaintext string) (R, error)) (R, error) {
	var r R
	if fn == nil {
		return r, ErrNullInput
	}
	err := s.use(context.Background(), textPool, func(p plaintext) (err error) {
		r, err = fn(p.text())
		return err
	})
	return r, err
}

// UseTextWithFunc is UseTextFunc with a caller state passed through to fn.
func UseTextWithFunc[T, R any](s *Secret, state T, fn func(state T, plaintext string) (R, error)) (R, error) {
	var r R
	if fn == nil {
		return r, ErrNullInput
	}
	err := s.use(context.Background(), textPool, func(p plaintext) (err error) {
		r, err = fn(state, p.text())
		return err
	})
	return r, err
}
