// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import "github.com/roadtest/go-roadtest/control"

// SC16IS7xx-style bridge register file.
const (
	regRHR = 0x0
	regTHR = regRHR

	regIER    = 0x1
	ierRHR    = 1 << 0
	ierTHR    = 1 << 1
	regFCR    = 0x2
	regIIR    = regFCR
	iirNone   = 1 << 0
	iirSrcRHR = 0b000100
	iirSrcTHR = 0b000010

	regLCR       = 0x3
	regMCR       = 0x4
	regLSR       = 0x5
	regTCR       = 0x6
	regTXLVL     = 0x8
	regRXLVL     = 0x9
	regIOControl = 0xE
	regEFCR      = 0xF
)

// uartFIFOSize is the bridge FIFO depth. Reported RX levels stay one below
// it to avoid "potential overflow" warnings from the driver.
const uartFIFOSize = 64

// UARTBridge emulates an SC16IS7xx-style I2C UART bridge: an addressed
// register file with RX/TX FIFOs and an active-low interrupt line.
//
// Bytes the driver transmits through THR are handed to Recv and recorded on
// the operations log. The test side feeds the receive path with the "tx"
// model command, which queues bytes and raises the RX interrupt when
// enabled.
type UARTBridge struct {
	env ModelEnv

	// Recv consumes bytes the driver transmits. Optional.
	Recv func(data []byte)

	buffer     []byte
	irqPin     int
	triggerTHR bool
	regAddr    int
	regs       map[int]byte
}

// NewUARTBridge returns a bridge raising its interrupt on the given GPIO
// line.
func NewUARTBridge(env ModelEnv, irqPin int) (*UARTBridge, error) {
	u := UARTBridge{
		env:    env,
		irqPin: irqPin,
		regs: map[int]byte{
			regRHR:       0x00,
			regIER:       0x00,
			regFCR:       0x00,
			regLCR:       0x00,
			regMCR:       0x00,
			regLSR:       0x00,
			regTCR:       0x00,
			regTXLVL:     uartFIFOSize,
			regRXLVL:     0x00,
			regIOControl: 0x00,
			regEFCR:      0x00,
		},
	}
	if err := u.setIrq(false); err != nil {
		return nil, err
	}
	return &u, nil
}

// SelfFlaky marks the bridge protocol as owning its flakiness semantics.
func (u *UARTBridge) SelfFlaky() {}

// setIrq drives the active-low interrupt line.
func (u *UARTBridge) setIrq(active bool) error {
	return u.env.Backend.GPIO.Set(u.irqPin, !active)
}

func (u *UARTBridge) irqSrc() byte {
	rxlvl := len(u.buffer)
	if rxlvl > uartFIFOSize-1 {
		rxlvl = uartFIFOSize - 1
	}
	debugf("uart: buffer=%d rxlvl=%d", len(u.buffer), rxlvl)
	u.regs[regRXLVL] = byte(rxlvl)

	ier := u.regs[regIER]
	switch {
	case rxlvl > 0 && ier&ierRHR != 0:
		return iirSrcRHR
	case ier&ierTHR != 0 && u.triggerTHR:
		return iirSrcTHR
	}
	return 0
}

func (u *UARTBridge) updateIrq() error {
	src := u.irqSrc()
	debugf("uart: update irq src=%#x", src)
	return u.setIrq(src != 0)
}

// Send queues data for the driver to receive, raising the RX interrupt if
// enabled.
func (u *UARTBridge) Send(data []byte) error {
	u.buffer = append(u.buffer, data...)
	return u.updateIrq()
}

// ModelCommand accepts the "tx" command feeding the receive path from the
// test side.
func (u *UARTBridge) ModelCommand(method string, args control.Args, kwargs control.Kwargs) error {
	if method != "tx" {
		return UnknownCommandError{Target: "i2c", Method: method}
	}
	data, err := args.Bytes(0)
	if err != nil {
		return err
	}
	return u.Send(data)
}

// ignored reports whether addr currently falls in the special or enhanced
// register sets, which the model does not implement.
func (u *UARTBridge) ignored(addr int) bool {
	lcr := u.regs[regLCR]
	if lcr&(1<<7) != 0 && addr <= 1 {
		return true
	}
	if lcr == 0xBF {
		switch addr {
		case 2, 4, 5, 6, 7:
			return true
		}
	}
	return false
}

func (u *UARTBridge) regRead(addr, length int) ([]byte, error) {
	debugf("uart: read addr=%#x len=%d", addr, length)

	if u.ignored(addr) {
		return make([]byte, length), nil
	}

	switch addr {
	case regRHR:
		n := length
		if n > len(u.buffer) {
			n = len(u.buffer)
		}
		data := append([]byte(nil), u.buffer[:n]...)
		u.buffer = u.buffer[n:]
		if err := u.updateIrq(); err != nil {
			return nil, err
		}
		return data, nil
	case regIIR:
		value := byte(iirNone)
		if src := u.irqSrc(); src != 0 {
			value = src
			if src == iirSrcTHR {
				u.triggerTHR = false
			}
		}
		return []byte{value}, nil
	}

	val, ok := u.regs[addr]
	if !ok {
		return nil, UnknownRegisterError{Addr: addr}
	}
	return []byte{val}, nil
}

func (u *UARTBridge) regWrite(addr int, data []byte) error {
	if u.ignored(addr) {
		return nil
	}

	if addr == regTHR {
		u.triggerTHR = true
		if err := u.env.Backend.Mock.Recv(data); err != nil {
			return err
		}
		if u.Recv != nil {
			u.Recv(data)
		}
		return u.updateIrq()
	}

	if _, ok := u.regs[addr]; !ok {
		return UnknownRegisterError{Addr: addr}
	}
	u.regs[addr] = data[0]
	if addr == regIER {
		return u.updateIrq()
	}
	return nil
}

// Read emits bytes from the register selected by the last write.
func (u *UARTBridge) Read(length int) ([]byte, error) {
	return u.regRead(u.regAddr, length)
}

// Write selects a register from the subaddress byte and writes any
// following payload to it.
func (u *UARTBridge) Write(data []byte) error {
	if len(data) == 0 {
		return ShortTransferError{Len: 0}
	}
	addr := int(data[0] >> 3)
	u.regAddr = addr
	if len(data) > 1 {
		if err := u.env.Backend.Mock.RegWriteBytes(addr, data[1:]); err != nil {
			return err
		}
		return u.regWrite(addr, data[1:])
	}
	return nil
}
