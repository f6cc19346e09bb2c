// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import "github.com/roadtest/go-roadtest/control"

// PlatformChip is the capability of a memory-mapped platform device model.
type PlatformChip interface {
	Read(addr, size int) (uint32, error)
	Write(addr, size int, value uint32) error
}

// Bus scan constants for the fixed enumeration window below the first core.
// See bcma_bus_scan() / bcma_get_next_core().
const (
	scanERValid  = 1
	scanERTagEnd = 0xE
	coreSize     = 0x1000
)

// PlatformBus is the backend's memory-mapped platform bus slot.
//
// Reads within the first core window are answered by a fixed scan stub that
// terminates bus enumeration, so a probing driver settles without a model;
// everything beyond requires one.
type PlatformBus struct {
	backend *Backend
	model   PlatformChip
}

func newPlatformBus(b *Backend) *PlatformBus {
	return &PlatformBus{backend: b}
}

// LoadModel constructs the named platform model and binds it to the bus.
func (s *PlatformBus) LoadModel(name string, args control.Args, kwargs control.Kwargs) error {
	if s.model != nil {
		return ErrModelLoaded
	}
	model, err := newPlatformModel(ModelEnv{Backend: s.backend}, name, args, kwargs)
	if err != nil {
		return err
	}
	s.model = model
	return nil
}

// UnloadModel clears the bus slot.
func (s *PlatformBus) UnloadModel() error {
	s.model = nil
	return nil
}

// Read performs a sized read at addr.
func (s *PlatformBus) Read(addr, size int) (uint32, error) {
	if addr == 0 {
		return scanERTagEnd | scanERValid, nil
	}
	if addr < coreSize {
		return 0, nil
	}
	if s.model == nil {
		return 0, ModelNotLoadedError{Bus: "platform"}
	}
	return s.model.Read(addr, size)
}

// Write performs a sized write of value at addr.
func (s *PlatformBus) Write(addr, size int, value uint32) error {
	if s.model == nil {
		return ModelNotLoadedError{Bus: "platform"}
	}
	return s.model.Write(addr, size, value)
}

// Command forwards a custom control command to the loaded model.
func (s *PlatformBus) Command(method string, args control.Args, kwargs control.Kwargs) error {
	if s.model == nil {
		return ModelNotLoadedError{Bus: "platform"}
	}
	mc, ok := s.model.(ModelCommander)
	if !ok {
		return UnknownCommandError{Target: "platform", Method: method}
	}
	return mc.ModelCommand(method, args, kwargs)
}

// Reg32Chip is a platform device exposing 32-bit registers only.
type Reg32Chip interface {
	Readl(addr int) (uint32, error)
	Writel(addr int, value uint32) error
}

// Reg32Model adapts a Reg32Chip to the platform bus, rejecting any access
// that is not 32 bits wide.
type Reg32Model struct {
	chip Reg32Chip
}

// NewReg32Model returns a platform model over chip.
func NewReg32Model(chip Reg32Chip) *Reg32Model {
	return &Reg32Model{chip: chip}
}

// Read performs a 32-bit read.
func (m *Reg32Model) Read(addr, size int) (uint32, error) {
	if size != 4 {
		return 0, AccessSizeError{Size: size}
	}
	return m.chip.Readl(addr)
}

// Write performs a 32-bit write.
func (m *Reg32Model) Write(addr, size int, value uint32) error {
	if size != 4 {
		return AccessSizeError{Size: size}
	}
	return m.chip.Writel(addr, value)
}
