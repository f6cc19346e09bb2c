// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtest/go-roadtest/backend"
	"github.com/roadtest/go-roadtest/control"
)

// loopChip answers each transfer with a canned response and records what it
// saw.
type loopChip struct {
	resp []byte
	seen [][]byte
}

func (c *loopChip) Xfer(in []byte) ([]byte, error) {
	c.seen = append(c.seen, append([]byte(nil), in...))
	out := make([]byte, len(in))
	copy(out, c.resp)
	return out, nil
}

func newBridgeFixture(t *testing.T, chip backend.XferChip) (*fixture, *backend.SPIBridge) {
	t.Helper()
	f := newFixture(t)
	env := backend.ModelEnv{Backend: f.b, Fault: backend.NewInjector(nil)}
	return f, backend.NewSPIBridge(env, chip)
}

func TestSPIBridgeTransfer(t *testing.T) {
	chip := &loopChip{resp: []byte{0xca, 0xfe}}
	f, bridge := newBridgeFixture(t, chip)

	// chip-select function forwards the rest of the write
	require.Nil(t, bridge.Write([]byte{0x01, 0x12, 0x34}))
	assert.Equal(t, [][]byte{{0x12, 0x34}}, chip.seen)

	out, err := bridge.Read(2)
	require.Nil(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, out)

	// reads past the buffered response are zero padded
	out, err = bridge.Read(4)
	require.Nil(t, err)
	assert.Equal(t, []byte{0xca, 0xfe, 0x00, 0x00}, out)

	assert.Equal(t, []control.Call{
		control.NewCall("mock", "xfer", control.Bytes([]byte{0x12, 0x34})),
	}, f.readOps(t))
}

func TestSPIBridgeFunctions(t *testing.T) {
	chip := &loopChip{}
	_, bridge := newBridgeFixture(t, chip)

	// configure writes are accepted and not forwarded
	require.Nil(t, bridge.Write([]byte{0xf0, 0x00}))
	assert.Empty(t, chip.seen)

	// empty writes are a no-op, single bytes are too short
	require.Nil(t, bridge.Write(nil))
	assert.Equal(t, backend.ShortTransferError{Len: 1}, bridge.Write([]byte{0x01}))

	err := bridge.Write([]byte{0x42, 0x00})
	assert.Equal(t, backend.BadBridgeFunctionError{Function: 0x42}, err)
}

func TestSPIBridgeFault(t *testing.T) {
	chip := &loopChip{resp: []byte{0x99}}
	f := newFixture(t)
	inj := backend.NewInjector(func() error { return f.b.Mock.FaultInjected(1) })
	env := backend.ModelEnv{Backend: f.b, Fault: inj}
	bridge := backend.NewSPIBridge(env, chip)

	inj.FailNext(1)
	err := bridge.Write([]byte{0x01, 0x55})
	assert.Equal(t, backend.ErrFaultInjected, err)
	assert.Empty(t, chip.seen)

	// the faulted transfer never reached the operations log
	assert.Equal(t, []control.Call{
		control.NewCall("mock", "fault_injected", control.Int(1)),
	}, f.readOps(t))

	// the retry carries a moved-on digest but a disarmed countdown
	require.Nil(t, bridge.Write([]byte{0x01, 0x55}))
	out, err := bridge.Read(1)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x99}, out)
}

// addOneChip increments every word.
type addOneChip struct{}

func (addOneChip) WordXfer(in []uint32) ([]uint32, error) {
	out := make([]uint32, len(in))
	for i, w := range in {
		out[i] = w + 1
	}
	return out, nil
}

func TestWordModelWidths(t *testing.T) {
	patterns := []struct {
		name      string
		wordBytes int
		order     binary.ByteOrder
		in        []byte
		out       []byte
	}{
		{
			name:      "8bit",
			wordBytes: 1,
			order:     binary.LittleEndian,
			in:        []byte{0x10, 0x20},
			out:       []byte{0x11, 0x21},
		},
		{
			name:      "16le",
			wordBytes: 2,
			order:     binary.LittleEndian,
			in:        []byte{0xff, 0x00, 0x01, 0x10},
			out:       []byte{0x00, 0x01, 0x02, 0x10},
		},
		{
			name:      "16be",
			wordBytes: 2,
			order:     binary.BigEndian,
			in:        []byte{0x00, 0xff, 0x10, 0x01},
			out:       []byte{0x01, 0x00, 0x10, 0x02},
		},
		{
			name:      "32be",
			wordBytes: 4,
			order:     binary.BigEndian,
			in:        []byte{0x00, 0x00, 0x00, 0xff},
			out:       []byte{0x00, 0x00, 0x01, 0x00},
		},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			m, err := backend.NewWordModel(p.wordBytes, p.order, addOneChip{})
			require.Nil(t, err)
			out, err := m.Xfer(p.in)
			require.Nil(t, err)
			assert.Equal(t, p.out, out)
		}
		t.Run(p.name, tf)
	}
}

func TestWordModelMalformed(t *testing.T) {
	m, err := backend.NewWordModel(2, binary.LittleEndian, addOneChip{})
	require.Nil(t, err)

	_, err = m.Xfer([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, backend.MalformedWriteError{Len: 3, RegBytes: 2}, err)

	_, err = backend.NewWordModel(3, binary.LittleEndian, addOneChip{})
	assert.NotNil(t, err)
}
