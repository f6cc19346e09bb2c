// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import (
	"encoding/binary"
	"fmt"

	"github.com/roadtest/go-roadtest/control"
)

// Chip is the byte-stream transport capability implemented by emulated I2C
// chips.
type Chip interface {
	// Read emits the chip's next length bytes.
	Read(length int) ([]byte, error)

	// Write delivers data to the chip.
	Write(data []byte) error
}

// SelfFlaky marks chips that apply fault injection within their own
// protocol handling, at sub-transaction granularity. The bus does not wrap
// their transfers a second time.
type SelfFlaky interface {
	SelfFlaky()
}

// ModelCommander is implemented by chips that accept custom control
// commands beyond the bus surface, e.g. a UART bridge being fed receive
// data.
type ModelCommander interface {
	ModelCommand(method string, args control.Args, kwargs control.Kwargs) error
}

// I2CBus is the backend's I2C bus slot. One model at a time; transactions
// with no model loaded fail.
type I2CBus struct {
	backend *Backend
	chip    Chip
	inj     *Injector
	flaky   bool
}

func newI2CBus(b *Backend) *I2CBus {
	return &I2CBus{backend: b}
}

// LoadModel constructs the named model and binds it to the bus. A bus with
// a model already loaded rejects the load; unload first.
func (s *I2CBus) LoadModel(name string, args control.Args, kwargs control.Kwargs) error {
	if s.chip != nil {
		return ErrModelLoaded
	}
	inj := NewInjector(func() error {
		return s.backend.Mock.FaultInjected(1)
	})
	chip, err := newModel(ModelEnv{Backend: s.backend, Fault: inj}, name, args, kwargs)
	if err != nil {
		return err
	}
	s.chip = chip
	s.inj = inj
	_, selfFlaky := chip.(SelfFlaky)
	s.flaky = !selfFlaky
	return nil
}

// UnloadModel clears the bus slot. Unloading an empty slot is a no-op.
func (s *I2CBus) UnloadModel() error {
	s.chip = nil
	s.inj = nil
	return nil
}

// FailNext arms fault injection on the loaded model.
func (s *I2CBus) FailNext(n int) error {
	if s.chip == nil {
		return ModelNotLoadedError{Bus: "i2c"}
	}
	s.inj.FailNext(n)
	return nil
}

// ResetFaults forgets the loaded model's injected-fault history.
func (s *I2CBus) ResetFaults() error {
	if s.chip == nil {
		return ModelNotLoadedError{Bus: "i2c"}
	}
	s.inj.Reset()
	return nil
}

// Read performs a bus read of length bytes from the device at the 8-bit
// wire address addr.
func (s *I2CBus) Read(addr, length int) ([]byte, error) {
	if s.chip == nil {
		return nil, ModelNotLoadedError{Bus: "i2c"}
	}
	debugf("i2c: read addr=%#02x len=%d", addr>>1, length)
	if !s.flaky {
		return s.chip.Read(length)
	}
	if err := s.inj.inject(); err != nil {
		return nil, err
	}
	out, err := s.chip.Read(length)
	if err != nil {
		return nil, err
	}
	s.inj.update(out)
	return out, nil
}

// Write performs a bus write of data to the device at the 8-bit wire
// address addr.
func (s *I2CBus) Write(addr int, data []byte) error {
	if s.chip == nil {
		return ModelNotLoadedError{Bus: "i2c"}
	}
	debugf("i2c: write addr=%#02x data=% x", addr>>1, data)
	if !s.flaky {
		return s.chip.Write(data)
	}
	if err := s.inj.inject(); err != nil {
		return err
	}
	if err := s.chip.Write(data); err != nil {
		return err
	}
	s.inj.update(data)
	return nil
}

// Command forwards a custom control command to the loaded model.
func (s *I2CBus) Command(method string, args control.Args, kwargs control.Kwargs) error {
	if s.chip == nil {
		return ModelNotLoadedError{Bus: "i2c"}
	}
	mc, ok := s.chip.(ModelCommander)
	if !ok {
		return UnknownCommandError{Target: "i2c", Method: method}
	}
	return mc.ModelCommand(method, args, kwargs)
}

// RegChip is the addressed-register capability: a register file accessed by
// integer address.
type RegChip interface {
	RegRead(addr int) (int, error)
	RegWrite(addr, val int) error
}

// SMBus layers the SMBus-style addressed-register protocol over the byte
// stream: the first byte of a write sets the register pointer and any
// following bytes are fixed-width values for consecutive registers; reads
// emit consecutive registers from the pointer on.
//
// Fault injection happens inside the protocol, once per register burst, so
// the bus leaves its transfers unwrapped.
type SMBus struct {
	env      ModelEnv
	chip     RegChip
	regAddr  int
	regBytes int
	order    binary.ByteOrder
}

// NewSMBus returns an SMBus protocol adapter over chip with regBytes-wide
// registers in the given byte order.
func NewSMBus(env ModelEnv, chip RegChip, regBytes int, order binary.ByteOrder) (*SMBus, error) {
	switch regBytes {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("unsupported register width %d", regBytes)
	}
	return &SMBus{env: env, chip: chip, regBytes: regBytes, order: order}, nil
}

// SelfFlaky marks the protocol as handling fault injection itself.
func (s *SMBus) SelfFlaky() {}

func (s *SMBus) valToBytes(val int) []byte {
	switch s.regBytes {
	case 2:
		b := make([]byte, 2)
		s.order.PutUint16(b, uint16(val))
		return b
	case 4:
		b := make([]byte, 4)
		s.order.PutUint32(b, uint32(val))
		return b
	}
	return []byte{byte(val)}
}

func (s *SMBus) bytesToVal(b []byte) int {
	switch s.regBytes {
	case 2:
		return int(s.order.Uint16(b))
	case 4:
		return int(s.order.Uint32(b))
	}
	return int(b[0])
}

// Read emits length bytes of consecutive register values starting at the
// current register pointer.
func (s *SMBus) Read(length int) ([]byte, error) {
	if err := s.env.Fault.inject(); err != nil {
		return nil, err
	}

	var data []byte
	for idx := 0; idx < length; idx += s.regBytes {
		addr := s.regAddr + idx
		val, err := s.chip.RegRead(addr)
		if err != nil {
			return nil, err
		}
		debugf("smbus: read addr=%#02x val=%#02x", addr, val)
		data = append(data, s.valToBytes(val)...)
	}

	s.env.Fault.update(data)
	return data, nil
}

// Write sets the register pointer from the first byte and writes any
// following bytes as consecutive fixed-width register values.
func (s *SMBus) Write(data []byte) error {
	if len(data) == 0 {
		return ShortTransferError{Len: 0}
	}
	s.regAddr = int(data[0])
	s.env.Fault.update(data)

	if len(data) == 1 {
		return nil
	}

	if err := s.env.Fault.inject(); err != nil {
		return err
	}

	payload := data[1:]
	if len(payload)%s.regBytes != 0 {
		return MalformedWriteError{Len: len(payload), RegBytes: s.regBytes}
	}
	for idx := 0; idx < len(payload); idx += s.regBytes {
		val := s.bytesToVal(payload[idx : idx+s.regBytes])
		addr := s.regAddr + idx
		if err := s.env.Backend.Mock.RegWrite(addr, val); err != nil {
			return err
		}
		if err := s.chip.RegWrite(addr, val); err != nil {
			return err
		}
		debugf("smbus: write addr=%#02x val=%#02x", addr, val)
	}
	return nil
}

// SimpleRegs is a register file with a fixed address set established at
// construction. Access outside the set fails.
type SimpleRegs map[int]int

// RegRead returns the value of a known register.
func (r SimpleRegs) RegRead(addr int) (int, error) {
	val, ok := r[addr]
	if !ok {
		return 0, UnknownRegisterError{Addr: addr}
	}
	return val, nil
}

// RegWrite updates a known register.
func (r SimpleRegs) RegWrite(addr, val int) error {
	if _, ok := r[addr]; !ok {
		return UnknownRegisterError{Addr: addr}
	}
	r[addr] = val
	return nil
}

// NewSimpleSMBus returns an SMBus chip holding the given fixed register
// map.
func NewSimpleSMBus(env ModelEnv, regs map[int]int, regBytes int, order binary.ByteOrder) (*SMBus, error) {
	return NewSMBus(env, SimpleRegs(regs), regBytes, order)
}

// ShortTransferError indicates a bus write too short for the protocol to
// interpret.
type ShortTransferError struct {
	Len int
}

func (e ShortTransferError) Error() string {
	return fmt.Sprintf("transfer of %d bytes is too short", e.Len)
}
