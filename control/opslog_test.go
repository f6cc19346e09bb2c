// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package control_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtest/go-roadtest/control"
)

func regWrite(addr, val int64) control.Call {
	return control.NewCall("mock", "reg_write", control.Int(addr), control.Int(val))
}

func TestOpsLog(t *testing.T) {
	dir := t.TempDir()
	w, err := control.NewOpsWriter(dir)
	require.Nil(t, err)
	defer w.Close()
	r := control.NewOpsReader(dir)

	ops, err := r.ReadNext()
	require.Nil(t, err)
	assert.Empty(t, ops)

	require.Nil(t, w.WriteCall(regWrite(1, 2)))
	require.Nil(t, w.WriteCall(regWrite(3, 4)))

	ops, err = r.ReadNext()
	require.Nil(t, err)
	assert.Equal(t, []control.Call{regWrite(1, 2), regWrite(3, 4)}, ops)

	// the cursor never re-delivers
	ops, err = r.ReadNext()
	require.Nil(t, err)
	assert.Empty(t, ops)

	require.Nil(t, w.WriteCall(regWrite(5, 6)))
	ops, err = r.ReadNext()
	require.Nil(t, err)
	assert.Equal(t, []control.Call{regWrite(5, 6)}, ops)
}

func TestOpsLogMissingFile(t *testing.T) {
	r := control.NewOpsReader(t.TempDir())
	ops, err := r.ReadNext()
	assert.Nil(t, err)
	assert.Empty(t, ops)
}

func TestOpsLogSplitWrites(t *testing.T) {
	dir := t.TempDir()
	r := control.NewOpsReader(dir)

	rawOps := func(s string) {
		f, err := os.OpenFile(filepath.Join(dir, control.OpsLogFile),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		require.Nil(t, err)
		defer f.Close()
		_, err = f.WriteString(s)
		require.Nil(t, err)
	}

	want := regWrite(0x12, 0x34)
	line, err := want.Encode()
	require.Nil(t, err)

	rawOps(string(line[:7]))
	ops, err := r.ReadNext()
	require.Nil(t, err)
	assert.Empty(t, ops)

	rawOps(string(line[7:]))
	ops, err = r.ReadNext()
	require.Nil(t, err)
	assert.Empty(t, ops)

	rawOps("\n")
	ops, err = r.ReadNext()
	require.Nil(t, err)
	assert.Equal(t, []control.Call{want}, ops)

	ops, err = r.ReadNext()
	require.Nil(t, err)
	assert.Empty(t, ops)
}

func TestOpsWriterTruncatesStaleLog(t *testing.T) {
	dir := t.TempDir()
	w, err := control.NewOpsWriter(dir)
	require.Nil(t, err)
	require.Nil(t, w.WriteCall(regWrite(1, 1)))
	require.Nil(t, w.Close())

	// a fresh session must not replay the previous one
	w, err = control.NewOpsWriter(dir)
	require.Nil(t, err)
	defer w.Close()
	r := control.NewOpsReader(dir)
	ops, err := r.ReadNext()
	require.Nil(t, err)
	assert.Empty(t, ops)
}
