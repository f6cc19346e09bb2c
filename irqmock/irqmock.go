// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// Package irqmock delivers emulated interrupts to the driver under test
// through the kernel's gpio-mockup module.
//
// The backend's GPIO bank is wired to a mocked chip's debugfs pull files:
// firing an interrupt pulls the corresponding line, and the driver under
// test, whose interrupt is bound to that line, sees a real GPIO interrupt.
// Requires the gpio-mockup kernel module and Linux 5.1.0 or later.
package irqmock

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"golang.org/x/sys/unix"
)

// Chip is a mocked GPIO chip backing the emulated interrupt lines.
type Chip struct {
	Name      string
	DevPath   string
	DbgfsPath string
	Lines     int
}

// Setup loads gpio-mockup with a single chip of the given number of lines
// and waits for the chip to appear. Any existing mockup is removed first.
func Setup(lines int) (*Chip, error) {
	if lines <= 0 {
		return nil, unix.EINVAL
	}
	if err := IsSupported(); err != nil {
		return nil, err
	}
	exec.Command("rmmod", "gpio-mockup").Run()

	um, err := newUdevMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to start udev monitor: %s", err)
	}
	defer um.Close()

	cmd := exec.Command("modprobe", "gpio-mockup",
		fmt.Sprintf("gpio_mockup_ranges=-1,%d", lines))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to load gpio-mockup: %s", err)
	}

	c, err := um.Chip(lines)
	if err != nil {
		return nil, err
	}
	if err := unix.Access(c.DbgfsPath, unix.R_OK|unix.W_OK); err != nil {
		return nil, err
	}
	return c, nil
}

// Close removes the mocked chip by unloading the gpio-mockup module.
func (c *Chip) Close() error {
	return exec.Command("rmmod", "gpio-mockup").Run()
}

func (c *Chip) pullPath(line int) string {
	return fmt.Sprintf("%s%d", c.DbgfsPath, line)
}

// Set drives the pull of the line.
func (c *Chip) Set(line, value int) error {
	if line < 0 || line >= c.Lines {
		return LineRangeError{Line: line, Lines: c.Lines}
	}
	f, err := os.OpenFile(c.pullPath(line), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	v := []byte{'0'}
	if value != 0 {
		v[0] = '1'
	}
	_, err = f.Write(v)
	return err
}

// Value returns the pull of the line.
func (c *Chip) Value(line int) (int, error) {
	if line < 0 || line >= c.Lines {
		return 0, LineRangeError{Line: line, Lines: c.Lines}
	}
	f, err := os.Open(c.pullPath(line))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	v := []byte{0}
	if _, err = f.Read(v); err != nil {
		return 0, err
	}
	if v[0] == '1' {
		return 1, nil
	}
	return 0, nil
}

// Pulse raises and drops the line, delivering one edge interrupt to
// whatever has the line's interrupt bound.
func (c *Chip) Pulse(line int) error {
	if err := c.Set(line, 1); err != nil {
		return err
	}
	return c.Set(line, 0)
}

// IsSupported returns an error if this package cannot run on this platform.
func IsSupported() error {
	return CheckKernelVersion(version{5, 1, 0})
}

// KernelVersion returns the running kernel version.
func KernelVersion() ([]byte, error) {
	release, err := exec.Command("uname", "-r").Output()
	if err != nil {
		return nil, err
	}
	r := regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
	vers := r.FindStringSubmatch(string(release))
	if len(vers) != 4 {
		return nil, fmt.Errorf("can't parse uname: %s", release)
	}
	v := []byte{0, 0, 0}
	for i, vf := range vers[1:] {
		vfi, err := strconv.ParseUint(vf, 10, 64)
		if err != nil {
			return nil, err
		}
		v[i] = byte(vfi)
	}
	return v, nil
}

// CheckKernelVersion returns an error if the kernel version is less than
// the min.
func CheckKernelVersion(min version) error {
	kv, err := KernelVersion()
	if err != nil {
		return err
	}
	if bytes.Compare(kv, min[:]) < 1 {
		return ErrorBadVersion{Need: min, Have: kv}
	}
	return nil
}

// 3 part version, Major, Minor, Patch.
type version []byte

func (v version) String() string {
	if len(v) == 0 {
		return ""
	}
	vstr := fmt.Sprintf("%d", v[0])
	for i := 1; i < len(v); i++ {
		vstr += fmt.Sprintf(".%d", v[i])
	}
	return vstr
}

// LineRangeError indicates the requested line is beyond the chip's lines.
type LineRangeError struct {
	Line  int
	Lines int
}

func (e LineRangeError) Error() string {
	return fmt.Sprintf("line out of range - got %d, limit is %d", e.Line, e.Lines)
}

// ErrorBadVersion indicates the kernel version is insufficient.
type ErrorBadVersion struct {
	Need version
	Have version
}

func (e ErrorBadVersion) Error() string {
	return fmt.Sprintf("require kernel %s or later, but running %s", e.Need, e.Have)
}
