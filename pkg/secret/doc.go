// Package secret keeps short sensitive values (keys, tokens, passwords) out
// of readable memory except inside a bounded use scope.
//
// A Secret is built from bytes, from UTF-8 text, or by adopting a store that
// is already protected. Constructors consume their plaintext input: the
// caller's buffer is zeroed before the constructor returns, on success and on
// failure.
//
// Plaintext is only materialized by the Use functions. Each use takes a slot
// of locked memory from one of the secret's pools, unprotects the value into
// it, runs the callback with a view of that memory, and then wipes the slot.
// The wipe is deferred, so it runs when the callback returns, returns an
// error, panics, calls runtime.Goexit, or gives up on a cancelled context.
// Callback errors and panics reach the caller unchanged after the wipe.
//
// Views never outlive the callback. A []byte view reads as zeros afterwards;
// a string view aliases the same memory and reads as NUL bytes. Copy what
// must be kept, and keep as little as possible.
//
//	s, err := secret.FromBytes(key, secret.WithPoolSize(4))
//	if err != nil {
//		return err
//	}
//	defer s.Dispose()
//
//	sig, err := secret.UseBytesFunc(s, func(k []byte) ([]byte, error) {
//		return ed25519.Sign(k, msg), nil
//	})
//
// A Secret is safe for concurrent use. Pools never block: when every pooled
// slot is busy, a use falls back to a transient slot that is destroyed after
// the callback.
package secret
