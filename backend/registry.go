// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import (
	"encoding/binary"
	"fmt"

	"github.com/roadtest/go-roadtest/control"
)

// ModelEnv is what a model receives at construction: the backend it is
// bound to and, for I2C models, the fault injection state of its bus slot.
type ModelEnv struct {
	Backend *Backend
	Fault   *Injector
}

// Factory constructs a byte-stream chip model from control-channel
// arguments.
type Factory func(env ModelEnv, args control.Args, kwargs control.Kwargs) (Chip, error)

// PlatformFactory constructs a platform device model from control-channel
// arguments.
type PlatformFactory func(env ModelEnv, args control.Args, kwargs control.Kwargs) (PlatformChip, error)

var (
	models         = map[string]Factory{}
	platformModels = map[string]PlatformFactory{}
)

// RegisterModel publishes a byte-stream model under a stable identifier for
// load_model to resolve. Registration normally happens from init functions;
// duplicate names panic.
func RegisterModel(name string, f Factory) {
	if _, ok := models[name]; ok {
		panic(fmt.Sprintf("model %q registered twice", name))
	}
	models[name] = f
}

// RegisterPlatformModel publishes a platform model under a stable
// identifier.
func RegisterPlatformModel(name string, f PlatformFactory) {
	if _, ok := platformModels[name]; ok {
		panic(fmt.Sprintf("platform model %q registered twice", name))
	}
	platformModels[name] = f
}

func newModel(env ModelEnv, name string, args control.Args, kwargs control.Kwargs) (Chip, error) {
	f, ok := models[name]
	if !ok {
		return nil, UnknownModelError{Name: name}
	}
	return f(env, args, kwargs)
}

func newPlatformModel(env ModelEnv, name string, args control.Args, kwargs control.Kwargs) (PlatformChip, error) {
	f, ok := platformModels[name]
	if !ok {
		return nil, UnknownModelError{Name: name}
	}
	return f(env, args, kwargs)
}

// ByteOrder maps a wire byte-order name onto its binary order.
func ByteOrder(name string) (binary.ByteOrder, error) {
	switch name {
	case "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", name)
}

// ParseRegs decodes a register map sent as a list of [addr, value] pairs.
func ParseRegs(v control.Value) (map[int]int, error) {
	pairs, err := v.AsList()
	if err != nil {
		return nil, fmt.Errorf("regs: %w", err)
	}
	regs := make(map[int]int, len(pairs))
	for _, p := range pairs {
		pair, err := p.AsList()
		if err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("regs: want [addr, value] pairs, got %s", p)
		}
		addr, err := pair[0].AsInt()
		if err != nil {
			return nil, fmt.Errorf("regs: %w", err)
		}
		val, err := pair[1].AsInt()
		if err != nil {
			return nil, fmt.Errorf("regs: %w", err)
		}
		regs[int(addr)] = int(val)
	}
	return regs, nil
}

// RegsValue encodes a register map as the list-of-pairs wire form ParseRegs
// accepts.
func RegsValue(regs map[int]int) control.Value {
	pairs := make([]control.Value, 0, len(regs))
	for addr, val := range regs {
		pairs = append(pairs, control.List(control.Int(int64(addr)), control.Int(int64(val))))
	}
	return control.List(pairs...)
}

func init() {
	RegisterModel("simple-smbus", func(env ModelEnv, args control.Args, kwargs control.Kwargs) (Chip, error) {
		rv, ok := kwargs.Get("regs")
		if !ok {
			return nil, fmt.Errorf("simple-smbus: missing regs")
		}
		regs, err := ParseRegs(rv)
		if err != nil {
			return nil, err
		}
		regBytes, err := kwargs.Int("regbytes", 1)
		if err != nil {
			return nil, err
		}
		orderName, err := kwargs.Str("byteorder", "little")
		if err != nil {
			return nil, err
		}
		order, err := ByteOrder(orderName)
		if err != nil {
			return nil, err
		}
		return NewSimpleSMBus(env, regs, int(regBytes), order)
	})

	RegisterModel("uart-bridge", func(env ModelEnv, args control.Args, kwargs control.Kwargs) (Chip, error) {
		pin, ok := kwargs.Get("irq_pin")
		if !ok {
			return nil, fmt.Errorf("uart-bridge: missing irq_pin")
		}
		irqPin, err := pin.AsInt()
		if err != nil {
			return nil, err
		}
		return NewUARTBridge(env, int(irqPin))
	})
}
