// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// Package sysfs provides the small set of sysfs accessors driver tests
// need: typed attribute reads and writes, and driver bind/unbind.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// WriteString writes val to the attribute at path.
//
// The value must reach the kernel in a single write syscall; buffered or
// retried writes confuse attribute stores.
func WriteString(path, val string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrap(err, "opening sysfs attribute")
	}
	_, werr := f.Write([]byte(val))
	cerr := f.Close()
	if werr != nil {
		return errors.Wrapf(werr, "writing %q", path)
	}
	return errors.Wrap(cerr, "closing sysfs attribute")
}

// WriteInt writes val to the attribute at path.
func WriteInt(path string, val int) error {
	return WriteString(path, strconv.Itoa(val))
}

// WriteBool writes val to the attribute at path as "1" or "0".
func WriteBool(path string, val bool) error {
	if val {
		return WriteString(path, "1")
	}
	return WriteString(path, "0")
}

// ReadString returns the attribute at path with trailing whitespace
// removed.
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %q", path)
	}
	return strings.TrimRight(string(data), " \t\n"), nil
}

// ReadInt returns the attribute at path as an integer.
func ReadInt(path string) (int, error) {
	s, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %q", path)
	}
	return val, nil
}

// ReadBool returns the attribute at path, accepting the kernel's "Y"/"N"
// and "1"/"0" spellings.
func ReadBool(path string) (bool, error) {
	s, err := ReadString(path)
	if err != nil {
		return false, err
	}
	switch s {
	case "Y", "y", "1":
		return true, nil
	}
	return false, nil
}

// An I2CDevice locates a bound I2C device in sysfs.
type I2CDevice struct {
	ID   string
	Path string
}

// NewI2CDevice returns the device at addr on the numbered bus.
func NewI2CDevice(bus, addr int) I2CDevice {
	id := fmt.Sprintf("%d-%04x", bus, addr)
	return I2CDevice{
		ID:   id,
		Path: filepath.Join("/sys/bus/i2c/devices", id),
	}
}

// Attr returns the path of one of the device's attributes.
func (d I2CDevice) Attr(name string) string {
	return filepath.Join(d.Path, name)
}

// A PlatformDevice locates a platform device in sysfs.
type PlatformDevice struct {
	ID   string
	Path string
}

// NewPlatformDevice returns the platform device with the given name.
func NewPlatformDevice(name string) PlatformDevice {
	return PlatformDevice{
		ID:   name,
		Path: filepath.Join("/sys/bus/platform/devices", name),
	}
}

// Attr returns the path of one of the device's attributes.
func (d PlatformDevice) Attr(name string) string {
	return filepath.Join(d.Path, name)
}

// An I2CDriver binds and unbinds devices on an I2C driver.
type I2CDriver struct {
	Name string

	// Path is the driver's sysfs directory, overridable for tests.
	Path string
}

// NewI2CDriver returns the named I2C driver.
func NewI2CDriver(name string) I2CDriver {
	return I2CDriver{
		Name: name,
		Path: filepath.Join("/sys/bus/i2c/drivers", name),
	}
}

// Bind binds the device at addr on the numbered bus to the driver, probing
// it.
func (d I2CDriver) Bind(bus, addr int) (I2CDevice, error) {
	dev := NewI2CDevice(bus, addr)
	err := WriteString(filepath.Join(d.Path, "bind"), dev.ID)
	return dev, err
}

// Unbind unbinds the device from the driver, removing it.
func (d I2CDriver) Unbind(dev I2CDevice) error {
	return WriteString(filepath.Join(d.Path, "unbind"), dev.ID)
}

// A PlatformDriver binds and unbinds devices on a platform driver.
type PlatformDriver struct {
	Name string
	Path string
}

// NewPlatformDriver returns the named platform driver.
func NewPlatformDriver(name string) PlatformDriver {
	return PlatformDriver{
		Name: name,
		Path: filepath.Join("/sys/bus/platform/drivers", name),
	}
}

// Bind binds the named platform device to the driver.
func (d PlatformDriver) Bind(name string) (PlatformDevice, error) {
	dev := NewPlatformDevice(name)
	err := WriteString(filepath.Join(d.Path, "bind"), dev.ID)
	return dev, err
}

// Unbind unbinds the device from the driver.
func (d PlatformDriver) Unbind(dev PlatformDevice) error {
	return WriteString(filepath.Join(d.Path, "unbind"), dev.ID)
}

// LEDKick returns a backend kick over a gpio-leds device: writing the
// brightness drives a GPIO, which makes the backend poll its control
// channel.
func LEDKick(led string) func() error {
	path := filepath.Join("/sys/class/leds", led, "brightness")
	return func() error {
		return WriteInt(path, 0)
	}
}
