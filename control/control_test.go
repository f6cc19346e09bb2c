// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package control_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtest/go-roadtest/control"
)

// appender collects the integer argument of each dispatched append call.
type appender struct {
	values []int64
}

func (a *appender) dispatch(c control.Call) error {
	if c.Target != "test" || c.Method != "append" {
		return fmt.Errorf("unexpected call %s", c)
	}
	v, err := c.Args.Int(0)
	if err != nil {
		return err
	}
	a.values = append(a.values, v)
	return nil
}

func appendCall(v int64) control.Call {
	return control.NewCall("test", "append", control.Int(v))
}

func TestControlWriterReader(t *testing.T) {
	dir := t.TempDir()
	r, err := control.NewReader(dir)
	require.Nil(t, err)
	defer r.Close()
	w, err := control.NewWriter(dir)
	require.Nil(t, err)
	defer w.Close()

	var a appender
	var logged []string
	r.Logf = func(format string, args ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	require.Nil(t, w.WriteCall(appendCall(1)))
	require.Nil(t, r.Process(a.dispatch))
	assert.Equal(t, []int64{1}, a.values)

	require.Nil(t, w.WriteCall(appendCall(2)))
	require.Nil(t, w.Log("append(4)"))
	require.Nil(t, w.WriteCall(appendCall(3)))

	require.Nil(t, r.Process(a.dispatch))
	assert.Equal(t, []int64{1, 2, 3}, a.values)
	assert.Equal(t, []string{"control: append(4)"}, logged)

	// nothing new
	require.Nil(t, r.Process(a.dispatch))
	assert.Equal(t, []int64{1, 2, 3}, a.values)
}

// raw appends bytes to the control file without line discipline, standing in
// for a writer whose flushes land mid-line.
func raw(t *testing.T, dir, s string) {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(dir, control.ControlFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.Nil(t, err)
	defer f.Close()
	_, err = f.WriteString(s)
	require.Nil(t, err)
}

func line(t *testing.T, v int64) string {
	t.Helper()
	b, err := appendCall(v).Encode()
	require.Nil(t, err)
	return string(b)
}

func TestControlPartialLines(t *testing.T) {
	dir := t.TempDir()
	r, err := control.NewReader(dir)
	require.Nil(t, err)
	defer r.Close()

	var a appender

	l1 := line(t, 1)
	l2 := line(t, 2)
	l3 := line(t, 3)

	raw(t, dir, l1+"\n")
	require.Nil(t, r.Process(a.dispatch))
	assert.Equal(t, []int64{1}, a.values)

	// a fragment with no terminator must not fire
	raw(t, dir, l2[:4])
	require.Nil(t, r.Process(a.dispatch))
	assert.Equal(t, []int64{1}, a.values)

	// completing the line fires it once; the trailing fragment waits
	raw(t, dir, l2[4:]+"\n"+l3)
	require.Nil(t, r.Process(a.dispatch))
	assert.Equal(t, []int64{1, 2}, a.values)

	raw(t, dir, "\n")
	require.Nil(t, r.Process(a.dispatch))
	assert.Equal(t, []int64{1, 2, 3}, a.values)
}

func TestControlDispatchError(t *testing.T) {
	dir := t.TempDir()
	r, err := control.NewReader(dir)
	require.Nil(t, err)
	defer r.Close()
	w, err := control.NewWriter(dir)
	require.Nil(t, err)
	defer w.Close()

	require.Nil(t, w.WriteCall(control.NewCall("nosuch", "method")))
	err = r.Process(func(control.Call) error {
		return fmt.Errorf("rejected")
	})
	assert.NotNil(t, err)
}

func TestControlMalformedLine(t *testing.T) {
	dir := t.TempDir()
	r, err := control.NewReader(dir)
	require.Nil(t, err)
	defer r.Close()

	raw(t, dir, "not a call\n")
	err = r.Process(func(control.Call) error { return nil })
	assert.NotNil(t, err)
}

func TestReaderTruncatesStaleFile(t *testing.T) {
	dir := t.TempDir()
	raw(t, dir, line(t, 9)+"\n")

	r, err := control.NewReader(dir)
	require.Nil(t, err)
	defer r.Close()

	var a appender
	require.Nil(t, r.Process(a.dispatch))
	assert.Empty(t, a.values)
}
