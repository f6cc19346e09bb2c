// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import "fmt"

// IrqMode is a line's interrupt trigger configuration, using the kernel's
// IRQ trigger encoding.
type IrqMode int

const (
	// IrqNone disables interrupt generation on the line.
	IrqNone IrqMode = 0x00

	// IrqEdgeRising triggers on low to high transitions.
	IrqEdgeRising IrqMode = 0x01

	// IrqEdgeFalling triggers on high to low transitions.
	IrqEdgeFalling IrqMode = 0x02

	// IrqEdgeBoth triggers on any transition.
	IrqEdgeBoth IrqMode = 0x03

	// IrqLevelHigh triggers while the line is high.
	IrqLevelHigh IrqMode = 0x04

	// IrqLevelLow triggers while the line is low.
	IrqLevelLow IrqMode = 0x08
)

func (m IrqMode) String() string {
	switch m {
	case IrqNone:
		return "none"
	case IrqEdgeRising:
		return "edge-rising"
	case IrqEdgeFalling:
		return "edge-falling"
	case IrqEdgeBoth:
		return "edge-both"
	case IrqLevelHigh:
		return "level-high"
	case IrqLevelLow:
		return "level-low"
	}
	return fmt.Sprintf("IrqMode(%#02x)", int(m))
}

// BadIrqModeError indicates a trigger configuration outside the supported
// encodings.
type BadIrqModeError struct {
	Mode int
}

func (e BadIrqModeError) Error() string {
	return fmt.Sprintf("bad irq mode %#02x", e.Mode)
}

// TriggerFunc delivers an interrupt for a line into the emulated
// environment. It is called synchronously at fire time, after the line has
// been masked and its edge latch cleared, so a handler that re-reads the
// line observes post-fire state.
type TriggerFunc func(pin int)

// Line is one emulated digital I/O line with interrupt semantics.
//
// A line starts low and masked. An interrupt fires only while the trigger
// mode is configured, the line is unmasked, and either the level condition
// is currently true or an edge was latched. Firing masks the line and clears
// the latch; the driver must unmask to receive the next interrupt, the same
// re-arm contract as real hardware.
type Line struct {
	pin     int
	trigger TriggerFunc

	state   bool
	mode    IrqMode
	masked  bool
	latched bool
}

func newLine(pin int, trigger TriggerFunc) Line {
	return Line{pin: pin, trigger: trigger, masked: true}
}

func (l *Line) levelActive() bool {
	switch l.mode {
	case IrqLevelHigh:
		return l.state
	case IrqLevelLow:
		return !l.state
	}
	return false
}

func (l *Line) latchesEdge(old, new bool) bool {
	switch l.mode {
	case IrqEdgeRising:
		return !old && new
	case IrqEdgeFalling:
		return old && !new
	case IrqEdgeBoth:
		return old != new
	}
	return false
}

func (l *Line) checkIrq() {
	if l.mode == IrqNone || l.masked {
		return
	}
	if !l.latched && !l.levelActive() {
		return
	}

	l.masked = true
	l.latched = false

	debugf("gpio %d: trigger irq", l.pin)
	l.trigger(l.pin)
}

// SetIrqType reconfigures the line's trigger mode.
//
// IrqNone forces the line masked. Any latched edge is discarded.
func (l *Line) SetIrqType(mode IrqMode) error {
	switch mode {
	case IrqNone, IrqEdgeRising, IrqEdgeFalling, IrqEdgeBoth, IrqLevelHigh, IrqLevelLow:
	default:
		return BadIrqModeError{Mode: int(mode)}
	}
	debugf("gpio %d: set_irq_type %s", l.pin, mode)
	if mode == IrqNone {
		l.masked = true
	}
	l.mode = mode
	l.latched = false
	l.checkIrq()
	return nil
}

// Unmask re-enables interrupt delivery on the line. A pending condition
// fires immediately.
func (l *Line) Unmask() {
	debugf("gpio %d: unmask", l.pin)
	l.masked = false
	l.checkIrq()
}

// Set drives the line level. A qualifying transition latches an edge even
// while masked; the latch is a single bit, not a counter.
func (l *Line) Set(value bool) {
	old := l.state
	if old != value {
		debugf("gpio %d: type=%s set %t -> %t", l.pin, l.mode, old, value)
	}
	l.state = value
	if l.latchesEdge(old, value) {
		debugf("gpio %d: latching edge", l.pin)
		l.latched = true
	}
	l.checkIrq()
}

// Value returns the current line level.
func (l *Line) Value() bool {
	return l.state
}

// NumLines is the size of the emulated GPIO bank.
const NumLines = 64

// NoPin marks a model's optional interrupt line as unconnected. Bank
// operations on NoPin are no-ops.
const NoPin = -1

// Bank is the fixed-size bank of emulated GPIO lines. All lines exist for
// the whole session.
type Bank struct {
	lines [NumLines]Line
	mock  *Mock
}

// NewBank creates a bank whose interrupts are delivered through trigger.
func NewBank(trigger TriggerFunc, mock *Mock) *Bank {
	b := Bank{mock: mock}
	for pin := range b.lines {
		b.lines[pin] = newLine(pin, trigger)
	}
	return &b
}

// Line returns the line at pin.
func (b *Bank) Line(pin int) (*Line, error) {
	if pin < 0 || pin >= NumLines {
		return nil, BadPinError{Pin: pin}
	}
	return &b.lines[pin], nil
}

// Set drives the level of the line at pin. Setting NoPin is a no-op, so
// models with an unconnected interrupt line need not special-case it.
func (b *Bank) Set(pin int, value bool) error {
	if pin == NoPin {
		return nil
	}
	l, err := b.Line(pin)
	if err != nil {
		return err
	}
	l.Set(value)
	return nil
}

// SetIrqType reconfigures the trigger mode of the line at pin.
func (b *Bank) SetIrqType(pin int, mode IrqMode) error {
	l, err := b.Line(pin)
	if err != nil {
		return err
	}
	return l.SetIrqType(mode)
}

// Unmask re-enables interrupt delivery on the line at pin.
func (b *Bank) Unmask(pin int) error {
	l, err := b.Line(pin)
	if err != nil {
		return err
	}
	l.Unmask()
	return nil
}

// SetValue records a driver-side write of a GPIO output to the operations
// log, where the test can assert on it.
func (b *Bank) SetValue(pin, value int) error {
	return b.mock.GpioSetValue(pin, value)
}

// BadPinError indicates a line index outside the bank.
type BadPinError struct {
	Pin int
}

func (e BadPinError) Error() string {
	return fmt.Sprintf("gpio pin %d out of range", e.Pin)
}
