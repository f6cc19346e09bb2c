// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// Package backend implements the driver-side half of the harness: the
// emulated GPIO bank and bus models, fault injection, and the dispatch of
// control-channel commands onto them.
//
// The backend polls the control channel for commands from the test process
// and reports observed hardware operations back through the operations log.
// The emulated environment performs bus I/O directly through the exported
// bus methods.
package backend

import (
	"strings"

	"github.com/roadtest/go-roadtest/control"
)

// Backend is the process-wide registry of emulated hardware: one GPIO bank
// plus one model slot per bus.
type Backend struct {
	// GPIO is the global bank of emulated lines.
	GPIO *Bank

	// I2C is the byte-stream bus slot.
	I2C *I2CBus

	// Platform is the memory-mapped bus slot.
	Platform *PlatformBus

	// Mock taps observed operations into the operations log.
	Mock *Mock

	reader *control.Reader
	ops    *control.OpsWriter
}

// Option configures a Backend.
type Option interface {
	applyOption(*options)
}

type options struct {
	trigger TriggerFunc
}

// TriggerOption sets the interrupt delivery callback.
type TriggerOption struct {
	trigger TriggerFunc
}

func (o TriggerOption) applyOption(opts *options) {
	opts.trigger = o.trigger
}

// WithTrigger provides the callback that delivers GPIO interrupts into the
// emulated environment.
func WithTrigger(trigger TriggerFunc) TriggerOption {
	return TriggerOption{trigger: trigger}
}

// New creates a backend bound to the log channels in workDir.
//
// Both channel files are recreated, so the session starts clean.
func New(workDir string, opts ...Option) (*Backend, error) {
	o := options{
		trigger: func(pin int) {
			debugf("gpio %d: irq delivered with no trigger wired", pin)
		},
	}
	for _, opt := range opts {
		opt.applyOption(&o)
	}

	reader, err := control.NewReader(workDir)
	if err != nil {
		return nil, err
	}
	ops, err := control.NewOpsWriter(workDir)
	if err != nil {
		reader.Close()
		return nil, err
	}

	b := Backend{
		Mock:   NewMock(ops),
		reader: reader,
		ops:    ops,
	}
	b.GPIO = NewBank(o.trigger, b.Mock)
	b.I2C = newI2CBus(&b)
	b.Platform = newPlatformBus(&b)
	return &b, nil
}

// ProcessControl applies all pending control-channel commands in append
// order. It returns immediately when no commands are waiting.
func (b *Backend) ProcessControl() error {
	return b.reader.Process(b.HandleCall)
}

// Close releases the channel files.
func (b *Backend) Close() error {
	err := b.reader.Close()
	if cerr := b.ops.Close(); err == nil {
		err = cerr
	}
	return err
}

// HandleCall routes one control command to its bus handler.
//
// Commands the bus itself does not define are forwarded to the loaded
// model, so chips can expose their own controls.
func (b *Backend) HandleCall(c control.Call) error {
	debugf("control: %s", c)
	switch strings.TrimPrefix(c.Target, "backend.") {
	case "gpio":
		return b.handleGpio(c)
	case "i2c":
		return b.handleI2C(c)
	case "platform":
		return b.handlePlatform(c)
	}
	return UnknownCommandError{Target: c.Target, Method: c.Method}
}

func (b *Backend) handleGpio(c control.Call) error {
	pin, err := c.Args.Int(0)
	if err != nil {
		return err
	}
	switch c.Method {
	case "set":
		val, err := argBool(c.Args, 1)
		if err != nil {
			return err
		}
		return b.GPIO.Set(int(pin), val)
	case "set_irq_type":
		mode, err := c.Args.Int(1)
		if err != nil {
			return err
		}
		return b.GPIO.SetIrqType(int(pin), IrqMode(mode))
	case "unmask":
		return b.GPIO.Unmask(int(pin))
	case "set_value":
		val, err := c.Args.Int(1)
		if err != nil {
			return err
		}
		return b.GPIO.SetValue(int(pin), int(val))
	}
	return UnknownCommandError{Target: "gpio", Method: c.Method}
}

func (b *Backend) handleI2C(c control.Call) error {
	switch c.Method {
	case "load_model":
		name, err := c.Args.Str(0)
		if err != nil {
			return err
		}
		return b.I2C.LoadModel(name, c.Args[1:], c.Kwargs)
	case "unload_model":
		return b.I2C.UnloadModel()
	case "fail_next":
		n, err := c.Args.Int(0)
		if err != nil {
			return err
		}
		return b.I2C.FailNext(int(n))
	case "reset":
		return b.I2C.ResetFaults()
	case "read":
		addr, err := c.Args.Int(0)
		if err != nil {
			return err
		}
		length, err := c.Args.Int(1)
		if err != nil {
			return err
		}
		// the control channel has no response path; the read still
		// mutates model and fault state
		_, err = b.I2C.Read(int(addr), int(length))
		return err
	case "write":
		addr, err := c.Args.Int(0)
		if err != nil {
			return err
		}
		data, err := c.Args.Bytes(1)
		if err != nil {
			return err
		}
		return b.I2C.Write(int(addr), data)
	}
	return b.I2C.Command(c.Method, c.Args, c.Kwargs)
}

func (b *Backend) handlePlatform(c control.Call) error {
	switch c.Method {
	case "load_model":
		name, err := c.Args.Str(0)
		if err != nil {
			return err
		}
		return b.Platform.LoadModel(name, c.Args[1:], c.Kwargs)
	case "unload_model":
		return b.Platform.UnloadModel()
	case "read":
		addr, err := c.Args.Int(0)
		if err != nil {
			return err
		}
		size, err := c.Args.Int(1)
		if err != nil {
			return err
		}
		_, err = b.Platform.Read(int(addr), int(size))
		return err
	case "write":
		addr, err := c.Args.Int(0)
		if err != nil {
			return err
		}
		size, err := c.Args.Int(1)
		if err != nil {
			return err
		}
		value, err := c.Args.Int(2)
		if err != nil {
			return err
		}
		return b.Platform.Write(int(addr), int(size), uint32(value))
	}
	return b.Platform.Command(c.Method, c.Args, c.Kwargs)
}

// argBool reads a boolean argument, accepting the integer levels the
// kernel-side glue sends.
func argBool(args control.Args, i int) (bool, error) {
	if v, err := args.Bool(i); err == nil {
		return v, nil
	}
	n, err := args.Int(i)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}
