// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package roadtest

import (
	"github.com/stretchr/testify/assert"

	"github.com/roadtest/go-roadtest/control"
)

// Recorder accumulates the operations the backend observed, in log order,
// and answers the questions driver tests ask of them.
type Recorder struct {
	calls []control.Call
}

func (r *Recorder) add(c control.Call) {
	r.calls = append(r.calls, c)
}

// Calls returns every recorded operation.
func (r *Recorder) Calls() []control.Call {
	return r.calls
}

// CallsTo returns the recorded operations with the given method.
func (r *Recorder) CallsTo(method string) []control.Call {
	var out []control.Call
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset discards all recorded operations.
func (r *Recorder) Reset() {
	r.calls = nil
}

// RegWrites returns the values written to reg, in order.
func (r *Recorder) RegWrites(reg int) []int {
	var out []int
	for _, c := range r.CallsTo("reg_write") {
		addr, err := c.Args.Int(0)
		if err != nil || int(addr) != reg {
			continue
		}
		val, err := c.Args.Int(1)
		if err != nil {
			continue
		}
		out = append(out, int(val))
	}
	return out
}

// LastRegWrite returns the value of the most recent write to reg, if any.
func (r *Recorder) LastRegWrite(reg int) (int, bool) {
	writes := r.RegWrites(reg)
	if len(writes) == 0 {
		return 0, false
	}
	return writes[len(writes)-1], true
}

// FaultCount returns the number of faults injected so far.
func (r *Recorder) FaultCount() int {
	count := 0
	for _, c := range r.CallsTo("fault_injected") {
		n, err := c.Args.Int(0)
		if err != nil {
			continue
		}
		count += int(n)
	}
	return count
}

// AssertRegWriteOnce asserts that reg was written exactly once, with value.
func (r *Recorder) AssertRegWriteOnce(t assert.TestingT, reg, value int) bool {
	return assert.Equal(t, []int{value}, r.RegWrites(reg),
		"register %#02x writes", reg)
}

// AssertLastRegWrite asserts that the most recent write to reg was value.
func (r *Recorder) AssertLastRegWrite(t assert.TestingT, reg, value int) bool {
	writes := r.RegWrites(reg)
	if len(writes) == 0 {
		return assert.Fail(t, "no writes to register", "register %#02x", reg)
	}
	return assert.Equal(t, value, writes[len(writes)-1],
		"last write to register %#02x", reg)
}
