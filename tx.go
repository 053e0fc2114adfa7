package merkledb

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Read runs f over a fresh Snapshot that is released when f returns. Panics
// raised by index handles inside f are returned as errors.
func (db *DB) Read(f func(s *Snapshot) error) error {
	s, err := db.Snapshot()
	if err != nil {
		return err
	}
	defer s.Release()
	return safelyCall(func() error {
		return f(s)
	})
}

// Write runs f over a fresh Fork and merges the result. If f fails (returns
// an error or panics), the fork is discarded and nothing is merged.
func (db *DB) Write(f func(fk *Fork) error) error {
	fk, err := db.Fork()
	if err != nil {
		return err
	}
	defer fk.Discard()

	err = safelyCall(func() error {
		return f(fk)
	})
	if err != nil {
		return err
	}
	p, err := fk.IntoPatch()
	if err != nil {
		return err
	}
	return db.Merge(p)
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func (p panicked) Unwrap() error {
	if err, ok := p.reason.(error); ok {
		return err
	}
	return nil
}

// safelyCall turns a panic in fn into an error. Typed errors panicked by
// index handles are returned as is; anything else keeps its stack.
func safelyCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok && isHandleError(e) {
				err = e
				return
			}
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn()
}

func isHandleError(err error) bool {
	var (
		decodeErr *DecodeError
		indexErr  *IndexError
		typeErr   *TypeMismatchError
		accessErr *AccessDeniedError
		mutErr    *ConcurrentMutationError
	)
	return errors.As(err, &decodeErr) ||
		errors.As(err, &indexErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &accessErr) ||
		errors.As(err, &mutErr) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrForkClosed) ||
		errors.Is(err, ErrClosed)
}
