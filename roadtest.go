// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// Package roadtest provides the test-side API for exercising kernel device
// drivers against emulated hardware.
//
// A test process talks to the driver-side backend through a pair of
// append-only files in a shared work directory: commands go out on the
// control channel and observed hardware operations come back on the
// operations log. Hardware wraps both ends for one bus and folds the
// returned operations into a Recorder for assertions.
package roadtest

import (
	"os"

	"github.com/pkg/errors"

	"github.com/roadtest/go-roadtest/control"
)

// EnvWorkDir is the environment variable naming the work directory shared
// with the backend.
const EnvWorkDir = "RT_WORK_DIR"

// Hardware is a test's handle on the emulated hardware behind one bus.
//
// Commands are applied by the backend only when it polls its control
// channel, which normally happens as a side effect of the driver accessing
// the device. When a command must take effect with no driver activity, a
// kick hook nudges the backend into polling.
type Hardware struct {
	bus    string
	ctl    *control.Writer
	ops    *control.OpsReader
	rec    *Recorder
	kick   func() error
	loaded bool
}

// HardwareOption configures a Hardware.
type HardwareOption interface {
	applyHardwareOption(*hardwareOptions)
}

type hardwareOptions struct {
	workDir string
	kick    func() error
}

// WorkDirOption sets the work directory explicitly.
type WorkDirOption struct {
	dir string
}

func (o WorkDirOption) applyHardwareOption(opts *hardwareOptions) {
	opts.workDir = o.dir
}

// WithWorkDir overrides the work directory taken from EnvWorkDir.
func WithWorkDir(dir string) WorkDirOption {
	return WorkDirOption{dir: dir}
}

// KickOption sets the backend kick hook.
type KickOption struct {
	kick func() error
}

func (o KickOption) applyHardwareOption(opts *hardwareOptions) {
	opts.kick = o.kick
}

// WithKick provides the hook that nudges the backend into processing its
// control channel, typically a sysfs write that causes driver activity.
func WithKick(kick func() error) KickOption {
	return KickOption{kick: kick}
}

// New returns a Hardware for the given bus ("i2c" or "platform"),
// connected to the channels in the work directory.
//
// Operations already on the log are discarded, so the recorder starts
// empty.
func New(bus string, opts ...HardwareOption) (*Hardware, error) {
	o := hardwareOptions{
		workDir: os.Getenv(EnvWorkDir),
	}
	for _, opt := range opts {
		opt.applyHardwareOption(&o)
	}
	if o.workDir == "" {
		return nil, errors.Errorf("work directory not set and %s empty", EnvWorkDir)
	}

	ctl, err := control.NewWriter(o.workDir)
	if err != nil {
		return nil, err
	}
	h := Hardware{
		bus:  bus,
		ctl:  ctl,
		ops:  control.NewOpsReader(o.workDir),
		rec:  &Recorder{},
		kick: o.kick,
	}
	// ignore operations from earlier sessions
	if _, err := h.ops.ReadNext(); err != nil {
		ctl.Close()
		return nil, err
	}
	return &h, nil
}

// Call sends a command to the bus.
func (h *Hardware) Call(method string, args ...control.Value) error {
	return h.CallKw(method, nil, args...)
}

// CallKw sends a command with keyword arguments to the bus.
func (h *Hardware) CallKw(method string, kwargs control.Kwargs, args ...control.Value) error {
	return h.ctl.WriteCall(control.Call{
		Target: h.bus,
		Method: method,
		Args:   args,
		Kwargs: kwargs,
	})
}

// LoadModel asks the backend to bind the named model to the bus.
func (h *Hardware) LoadModel(name string, kwargs control.Kwargs, args ...control.Value) error {
	fullArgs := append(control.Args{control.Str(name)}, args...)
	if err := h.CallKw("load_model", kwargs, fullArgs...); err != nil {
		return err
	}
	h.loaded = true
	return nil
}

// UnloadModel releases the bus's model slot.
func (h *Hardware) UnloadModel() error {
	if err := h.Call("unload_model"); err != nil {
		return err
	}
	h.loaded = false
	return nil
}

// FailNext arms fault injection to fail the n'th upcoming transaction.
func (h *Hardware) FailNext(n int) error {
	return h.Call("fail_next", control.Int(int64(n)))
}

// ResetFaults forgets the model's injected-fault history.
func (h *Hardware) ResetFaults() error {
	return h.Call("reset")
}

// Log writes an annotation visible in the backend's log output.
func (h *Hardware) Log(msg string) error {
	return h.ctl.Log(msg)
}

// Kick nudges the backend into processing pending commands when no driver
// activity will. Without a kick hook it is a no-op.
func (h *Hardware) Kick() error {
	if h.kick == nil {
		return nil
	}
	return h.kick()
}

// UpdateMock folds newly logged operations into the recorder and returns
// it.
func (h *Hardware) UpdateMock() (*Recorder, error) {
	ops, err := h.ops.ReadNext()
	if err != nil {
		return nil, err
	}
	for _, c := range ops {
		h.rec.add(c)
	}
	return h.rec, nil
}

// Mock returns the recorder without polling for new operations.
func (h *Hardware) Mock() *Recorder {
	return h.rec
}

// Close unloads any loaded model and releases the control channel.
func (h *Hardware) Close() error {
	var err error
	if h.loaded {
		err = h.UnloadModel()
	}
	if cerr := h.ctl.Close(); err == nil {
		err = cerr
	}
	return err
}
