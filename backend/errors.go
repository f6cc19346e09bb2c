// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrFaultInjected is the deliberate transient bus failure raised by the
	// fault injection overlay. Drivers under test are expected to surface it
	// through their I/O error path and may retry; the harness raises it at
	// most once per unique transaction-content digest.
	ErrFaultInjected = errors.New("fault injected")

	// ErrModelLoaded indicates a load was attempted on a bus that already
	// has a model. The previous model must be unloaded first.
	ErrModelLoaded = errors.New("model already loaded")
)

// ModelNotLoadedError indicates a bus operation was issued while no model
// was loaded on that bus.
type ModelNotLoadedError struct {
	Bus string
}

func (e ModelNotLoadedError) Error() string {
	return fmt.Sprintf("no model loaded on %s bus", e.Bus)
}

// UnknownModelError indicates a load named a model missing from the
// registry.
type UnknownModelError struct {
	Name string
}

func (e UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Name)
}

// UnknownRegisterError indicates a register access outside the model's
// fixed register map. It signals a mismatch between the model and the test,
// not a transient condition.
type UnknownRegisterError struct {
	Addr int
}

func (e UnknownRegisterError) Error() string {
	return fmt.Sprintf("unknown register %#02x", e.Addr)
}

// MalformedWriteError indicates a register write payload whose length is not
// a multiple of the register width. The payload is never truncated or
// padded.
type MalformedWriteError struct {
	Len      int
	RegBytes int
}

func (e MalformedWriteError) Error() string {
	return fmt.Sprintf("write payload of %d bytes is not a multiple of the %d-byte register width",
		e.Len, e.RegBytes)
}

// AccessSizeError indicates a platform bus access with a width the model
// does not support.
type AccessSizeError struct {
	Size int
}

func (e AccessSizeError) Error() string {
	return fmt.Sprintf("unsupported access size %d", e.Size)
}

// UnknownCommandError indicates a control command that neither the bus nor
// the loaded model handles.
type UnknownCommandError struct {
	Target string
	Method string
}

func (e UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %s.%s", e.Target, e.Method)
}
