// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtest/go-roadtest/backend"
	"github.com/roadtest/go-roadtest/control"
)

// fixture wires a backend to both ends of its log channels in a scratch
// work directory.
type fixture struct {
	dir string
	b   *backend.Backend
	ctl *control.Writer
	ops *control.OpsReader
}

func newFixture(t *testing.T, opts ...backend.Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	b, err := backend.New(dir, opts...)
	require.Nil(t, err)
	t.Cleanup(func() { b.Close() })
	ctl, err := control.NewWriter(dir)
	require.Nil(t, err)
	t.Cleanup(func() { ctl.Close() })
	return &fixture{dir: dir, b: b, ctl: ctl, ops: control.NewOpsReader(dir)}
}

func (f *fixture) readOps(t *testing.T) []control.Call {
	t.Helper()
	ops, err := f.ops.ReadNext()
	require.Nil(t, err)
	return ops
}

// echoChip is a minimal flaky byte-stream chip: reads return the last
// write.
type echoChip struct {
	data []byte
}

func (c *echoChip) Read(length int) ([]byte, error) {
	out := make([]byte, length)
	copy(out, c.data)
	return out, nil
}

func (c *echoChip) Write(data []byte) error {
	c.data = append([]byte(nil), data...)
	return nil
}

var registerEcho sync.Once

func registerEchoModel() {
	registerEcho.Do(func() {
		backend.RegisterModel("test-echo", func(env backend.ModelEnv, args control.Args, kwargs control.Kwargs) (backend.Chip, error) {
			return &echoChip{}, nil
		})
	})
}

func simpleRegsKwargs(regs map[int]int, regBytes int, order string) control.Kwargs {
	return control.Kwargs{
		"regs":      backend.RegsValue(regs),
		"regbytes":  control.Int(int64(regBytes)),
		"byteorder": control.Str(order),
	}
}

func TestBackendDispatchLoadWriteRead(t *testing.T) {
	f := newFixture(t)

	require.Nil(t, f.ctl.WriteCall(control.Call{
		Target: "i2c",
		Method: "load_model",
		Args:   control.Args{control.Str("simple-smbus")},
		Kwargs: simpleRegsKwargs(map[int]int{0x01: 0x12, 0x02: 0x34}, 1, "little"),
	}))
	require.Nil(t, f.ctl.WriteCall(control.NewCall("i2c", "write",
		control.Int(0x40), control.Bytes([]byte{0x01, 0x56}))))
	require.Nil(t, f.b.ProcessControl())

	// the observed register write reached the operations log
	assert.Equal(t, []control.Call{
		control.NewCall("mock", "reg_write", control.Int(0x01), control.Int(0x56)),
	}, f.readOps(t))

	out, err := f.b.I2C.Read(0x40, 1)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x56}, out)
}

func TestBackendDoubleLoadRejected(t *testing.T) {
	f := newFixture(t)
	registerEchoModel()

	load := control.NewCall("i2c", "load_model", control.Str("test-echo"))
	require.Nil(t, f.ctl.WriteCall(load))
	require.Nil(t, f.b.ProcessControl())

	require.Nil(t, f.ctl.WriteCall(load))
	assert.Equal(t, backend.ErrModelLoaded, f.b.ProcessControl())

	// unload frees the slot for the next load
	require.Nil(t, f.ctl.WriteCall(control.NewCall("i2c", "unload_model")))
	require.Nil(t, f.ctl.WriteCall(load))
	require.Nil(t, f.b.ProcessControl())
}

func TestBackendModelNotLoaded(t *testing.T) {
	f := newFixture(t)

	_, err := f.b.I2C.Read(0x40, 1)
	assert.Equal(t, backend.ModelNotLoadedError{Bus: "i2c"}, err)
	err = f.b.I2C.Write(0x40, []byte{0})
	assert.Equal(t, backend.ModelNotLoadedError{Bus: "i2c"}, err)

	_, err = f.b.Platform.Read(0x2000, 4)
	assert.Equal(t, backend.ModelNotLoadedError{Bus: "platform"}, err)

	// operations after an unload fail the same way
	registerEchoModel()
	require.Nil(t, f.ctl.WriteCall(control.NewCall("i2c", "load_model", control.Str("test-echo"))))
	require.Nil(t, f.ctl.WriteCall(control.NewCall("i2c", "unload_model")))
	require.Nil(t, f.b.ProcessControl())
	_, err = f.b.I2C.Read(0x40, 1)
	assert.Equal(t, backend.ModelNotLoadedError{Bus: "i2c"}, err)
}

func TestBackendUnknownModel(t *testing.T) {
	f := newFixture(t)

	require.Nil(t, f.ctl.WriteCall(control.NewCall("i2c", "load_model", control.Str("no-such-chip"))))
	assert.Equal(t, backend.UnknownModelError{Name: "no-such-chip"}, f.b.ProcessControl())
}

func TestBackendGpioDispatch(t *testing.T) {
	var fired []int
	f := newFixture(t, backend.WithTrigger(func(pin int) {
		fired = append(fired, pin)
	}))

	require.Nil(t, f.ctl.WriteCall(control.NewCall("gpio", "set_irq_type",
		control.Int(4), control.Int(int64(backend.IrqEdgeRising)))))
	require.Nil(t, f.ctl.WriteCall(control.NewCall("gpio", "unmask", control.Int(4))))
	require.Nil(t, f.ctl.WriteCall(control.NewCall("gpio", "set", control.Int(4), control.Bool(true))))
	require.Nil(t, f.b.ProcessControl())

	assert.Equal(t, []int{4}, fired)

	// kernel-side glue sends integer levels
	require.Nil(t, f.ctl.WriteCall(control.NewCall("gpio", "set", control.Int(4), control.Int(0))))
	require.Nil(t, f.ctl.WriteCall(control.NewCall("gpio", "set", control.Int(4), control.Int(1))))
	require.Nil(t, f.ctl.WriteCall(control.NewCall("gpio", "unmask", control.Int(4))))
	require.Nil(t, f.b.ProcessControl())
	assert.Equal(t, []int{4, 4}, fired)
}

func TestBackendGpioSetValue(t *testing.T) {
	f := newFixture(t)

	require.Nil(t, f.b.GPIO.SetValue(9, 1))
	assert.Equal(t, []control.Call{
		control.NewCall("mock", "gpio_set_value", control.Int(9), control.Int(1)),
	}, f.readOps(t))
}

func TestBackendUnknownCommand(t *testing.T) {
	f := newFixture(t)
	registerEchoModel()

	require.Nil(t, f.ctl.WriteCall(control.NewCall("i2c", "load_model", control.Str("test-echo"))))
	require.Nil(t, f.ctl.WriteCall(control.NewCall("i2c", "frobnicate")))
	err := f.b.ProcessControl()
	assert.Equal(t, backend.UnknownCommandError{Target: "i2c", Method: "frobnicate"}, err)

	require.Nil(t, f.ctl.WriteCall(control.NewCall("nvme", "read")))
	err = f.b.ProcessControl()
	assert.Equal(t, backend.UnknownCommandError{Target: "nvme", Method: "read"}, err)
}

func TestBackendAnnotationLines(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.ctl.Log("driver probe starting"))
	require.Nil(t, f.b.ProcessControl())
}
