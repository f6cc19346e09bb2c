// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import "github.com/roadtest/go-roadtest/control"

// MockTarget is the target of every operation record. The test side folds
// these records into its call recorder for assertions.
const MockTarget = "mock"

// Mock is the backend's assertion tap: models report observed operations
// through it and each becomes one record on the operations log.
type Mock struct {
	w *control.OpsWriter
}

// NewMock returns a mock emitting to w.
func NewMock(w *control.OpsWriter) *Mock {
	return &Mock{w: w}
}

// Call records an arbitrary observed operation.
func (m *Mock) Call(method string, args ...control.Value) error {
	return m.w.WriteCall(control.NewCall(MockTarget, method, args...))
}

// RegWrite records an observed register write.
func (m *Mock) RegWrite(addr, val int) error {
	return m.Call("reg_write", control.Int(int64(addr)), control.Int(int64(val)))
}

// RegWriteBytes records an observed write of a byte payload to a register,
// for chips whose registers are byte streams rather than words.
func (m *Mock) RegWriteBytes(addr int, data []byte) error {
	return m.Call("reg_write", control.Int(int64(addr)), control.Bytes(data))
}

// Xfer records an observed SPI transfer payload.
func (m *Mock) Xfer(data []byte) error {
	return m.Call("xfer", control.Bytes(data))
}

// Recv records data received by a chip from the driver.
func (m *Mock) Recv(data []byte) error {
	return m.Call("recv", control.Bytes(data))
}

// GpioSetValue records a driver-side GPIO output write.
func (m *Mock) GpioSetValue(pin, value int) error {
	return m.Call("gpio_set_value", control.Int(int64(pin)), control.Int(int64(value)))
}

// FaultInjected bumps the test-visible injected-fault counter.
func (m *Mock) FaultInjected(n int) error {
	return m.Call("fault_injected", control.Int(int64(n)))
}
