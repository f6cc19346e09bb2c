// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package record_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtest/go-roadtest/control"
	"github.com/roadtest/go-roadtest/record"
)

func regWrite(addr, val int64) control.Call {
	return control.NewCall("mock", "reg_write", control.Int(addr), control.Int(val))
}

func TestStoreRoundTrip(t *testing.T) {
	s, err := record.Open(t.TempDir(), "")
	require.Nil(t, err)
	defer s.Close()

	require.Nil(t, s.Record(regWrite(0x01, 0x10)))
	require.Nil(t, s.Record(control.NewCall("mock", "xfer", control.Bytes([]byte{0xab}))))
	require.Nil(t, s.Record(regWrite(0x02, 0x20)))

	calls, err := s.Calls("")
	require.Nil(t, err)
	assert.Equal(t, []control.Call{
		regWrite(0x01, 0x10),
		control.NewCall("mock", "xfer", control.Bytes([]byte{0xab})),
		regWrite(0x02, 0x20),
	}, calls)

	calls, err = s.Calls("reg_write")
	require.Nil(t, err)
	assert.Equal(t, []control.Call{
		regWrite(0x01, 0x10),
		regWrite(0x02, 0x20),
	}, calls)
}

func TestStoreBatching(t *testing.T) {
	s, err := record.Open(t.TempDir(), "")
	require.Nil(t, err)
	defer s.Close()

	s.BatchSize = 2
	require.Nil(t, s.Record(regWrite(0x01, 1)))
	require.Nil(t, s.Record(regWrite(0x01, 2)))
	require.Nil(t, s.Record(regWrite(0x01, 3)))

	calls, err := s.Calls("reg_write")
	require.Nil(t, err)
	assert.Len(t, calls, 3)
}

func TestStoreExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.sqlite3")
	s, err := record.Open("", path)
	require.Nil(t, err)
	require.Nil(t, s.Record(regWrite(0x01, 1)))
	require.Nil(t, s.Close())

	// a second session in the same database sees only its own records
	s2, err := record.Open("", path)
	require.Nil(t, err)
	defer s2.Close()
	assert.NotEqual(t, s.Session(), s2.Session())

	calls, err := s2.Calls("")
	require.Nil(t, err)
	assert.Empty(t, calls)
}
