// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import (
	"encoding/binary"
	"fmt"
)

// XferChip is the SPI transfer capability: a full-duplex exchange of equal
// length byte payloads.
type XferChip interface {
	Xfer(in []byte) ([]byte, error)
}

// SPIBridge emulates an SC18IS602-style I2C-to-SPI bridge. The first byte
// of an I2C write is the bridge function: 0xF0 configures the bridge
// (ignored here) and 0x01..0x0F selects a chip and forwards the remaining
// bytes over SPI. Reads return the buffered response of the last transfer.
//
// Fault injection happens per SPI transfer, not per I2C transaction.
type SPIBridge struct {
	env    ModelEnv
	chip   XferChip
	buffer []byte
}

const (
	bridgeFnConfigure = 0xF0
	bridgeFnCSMax     = 0x0F
)

// NewSPIBridge returns a bridge forwarding transfers to chip.
func NewSPIBridge(env ModelEnv, chip XferChip) *SPIBridge {
	return &SPIBridge{env: env, chip: chip}
}

// SelfFlaky marks the bridge as handling fault injection itself.
func (s *SPIBridge) SelfFlaky() {}

func (s *SPIBridge) xferFlaky(in []byte) ([]byte, error) {
	s.env.Fault.update(in)
	if err := s.env.Fault.inject(); err != nil {
		return nil, err
	}
	if err := s.env.Backend.Mock.Xfer(in); err != nil {
		return nil, err
	}
	out, err := s.chip.Xfer(in)
	if err != nil {
		return nil, err
	}
	s.env.Fault.update(out)
	return out, nil
}

// Read returns up to length bytes of the buffered transfer response,
// zero-padded to length.
func (s *SPIBridge) Read(length int) ([]byte, error) {
	out := make([]byte, length)
	copy(out, s.buffer)
	return out, nil
}

// Write interprets the bridge function byte and forwards any selected
// transfer to the SPI chip.
func (s *SPIBridge) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) < 2 {
		return ShortTransferError{Len: len(data)}
	}

	function := data[0]
	if function == bridgeFnConfigure {
		return nil
	}
	if function < 0x01 || function > bridgeFnCSMax {
		return BadBridgeFunctionError{Function: function}
	}
	out, err := s.xferFlaky(data[1:])
	if err != nil {
		return err
	}
	s.buffer = out
	return nil
}

// BadBridgeFunctionError indicates an SPI bridge function byte outside the
// configure and chip-select ranges.
type BadBridgeFunctionError struct {
	Function byte
}

func (e BadBridgeFunctionError) Error() string {
	return fmt.Sprintf("bad bridge function %#02x", e.Function)
}

// WordChip is the word transport capability: chips that exchange fixed
// width words rather than raw bytes.
type WordChip interface {
	WordXfer(in []uint32) ([]uint32, error)
}

// WordModel packs and unpacks fixed-width words in a configured byte order
// around a WordChip, satisfying XferChip.
type WordModel struct {
	wordBytes int
	order     binary.ByteOrder
	chip      WordChip
}

// NewWordModel returns a word-packing adapter for chip. wordBytes must be
// 1, 2 or 4.
func NewWordModel(wordBytes int, order binary.ByteOrder, chip WordChip) (*WordModel, error) {
	switch wordBytes {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("unsupported word width %d", wordBytes)
	}
	return &WordModel{wordBytes: wordBytes, order: order, chip: chip}, nil
}

// Xfer decodes the payload into words, exchanges them with the chip, and
// re-encodes the response.
func (m *WordModel) Xfer(in []byte) ([]byte, error) {
	if len(in)%m.wordBytes != 0 {
		return nil, MalformedWriteError{Len: len(in), RegBytes: m.wordBytes}
	}
	words := make([]uint32, len(in)/m.wordBytes)
	for i := range words {
		b := in[i*m.wordBytes:]
		switch m.wordBytes {
		case 1:
			words[i] = uint32(b[0])
		case 2:
			words[i] = uint32(m.order.Uint16(b))
		case 4:
			words[i] = m.order.Uint32(b)
		}
	}

	outWords, err := m.chip.WordXfer(words)
	if err != nil {
		return nil, err
	}
	if len(outWords) != len(words) {
		return nil, fmt.Errorf("word transfer returned %d words, expected %d",
			len(outWords), len(words))
	}

	out := make([]byte, len(in))
	for i, w := range outWords {
		b := out[i*m.wordBytes:]
		switch m.wordBytes {
		case 1:
			b[0] = byte(w)
		case 2:
			m.order.PutUint16(b, uint16(w))
		case 4:
			m.order.PutUint32(b, w)
		}
	}
	return out, nil
}
