// Package binder provides the reversible method-replacement lifecycle
// shared by all interceptor variants. Replacing a method slot on a live
// store is the one risky operation in this library, so the save/restore
// bookkeeping lives here, in a single place, instead of being repeated
// per variant.
package binder

import (
	"fmt"
	"sync"

	"github.com/statetap/statetap/core"
)

// InstallFunc performs the actual method replacement on a target. It
// returns a restore function that writes the saved original back and an
// optional unsubscribe handle for the target's change notifications.
// Install runs under the binding's lock and must not call back into the
// binding.
type InstallFunc func() (restore func(), unsubscribe func(), err error)

// Binding tracks one reversible method replacement. The zero value is
// unbound and ready to use. A Binding rejects a second Engage while
// bound: overwriting the saved original would leak the first one and
// make a faithful restore impossible.
type Binding struct {
	mu          sync.Mutex
	bound       bool
	restore     func()
	unsubscribe func()
}

// Engage runs install and records its restore and unsubscribe handles.
// Returns core.ErrAlreadyBound when a target is already bound, and any
// error the install func reports (in which case nothing was recorded).
func (b *Binding) Engage(install InstallFunc) error {
	if install == nil {
		return fmt.Errorf("binder.Engage: %w", core.ErrInvalidTarget)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound {
		return fmt.Errorf("binder.Engage: %w", core.ErrAlreadyBound)
	}

	restore, unsubscribe, err := install()
	if err != nil {
		return err
	}

	b.bound = true
	b.restore = restore
	b.unsubscribe = unsubscribe
	return nil
}

// Unwind restores the saved original method, invokes the saved
// unsubscribe handle, and returns the binding to its initial state.
// Safe to call when never bound, and safe to call repeatedly. After
// Unwind a fresh Engage behaves exactly as on a new Binding.
func (b *Binding) Unwind() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.bound {
		return
	}

	if b.restore != nil {
		b.restore()
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}

	b.bound = false
	b.restore = nil
	b.unsubscribe = nil
}

// Bound reports whether a target is currently bound
func (b *Binding) Bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound
}
