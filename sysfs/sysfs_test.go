// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package sysfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtest/go-roadtest/sysfs"
)

func attr(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attr")
	require.Nil(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadWriteString(t *testing.T) {
	path := attr(t, "")

	require.Nil(t, sysfs.WriteString(path, "in1_input"))
	s, err := sysfs.ReadString(path)
	require.Nil(t, err)
	assert.Equal(t, "in1_input", s)

	// kernel attributes come with a trailing newline
	s, err = sysfs.ReadString(attr(t, "enabled\n"))
	require.Nil(t, err)
	assert.Equal(t, "enabled", s)

	err = sysfs.WriteString(filepath.Join(t.TempDir(), "missing"), "x")
	assert.NotNil(t, err)
}

func TestReadWriteInt(t *testing.T) {
	path := attr(t, "")

	require.Nil(t, sysfs.WriteInt(path, -42))
	val, err := sysfs.ReadInt(path)
	require.Nil(t, err)
	assert.Equal(t, -42, val)

	_, err = sysfs.ReadInt(attr(t, "not a number\n"))
	assert.NotNil(t, err)
}

func TestReadWriteBool(t *testing.T) {
	patterns := []struct {
		content string
		val     bool
	}{
		{"Y\n", true},
		{"y\n", true},
		{"1\n", true},
		{"N\n", false},
		{"0\n", false},
		{"junk\n", false},
	}
	for _, p := range patterns {
		val, err := sysfs.ReadBool(attr(t, p.content))
		require.Nil(t, err)
		assert.Equal(t, p.val, val, "content %q", p.content)
	}

	path := attr(t, "")
	require.Nil(t, sysfs.WriteBool(path, true))
	s, err := sysfs.ReadString(path)
	require.Nil(t, err)
	assert.Equal(t, "1", s)
}

func TestDevicePaths(t *testing.T) {
	dev := sysfs.NewI2CDevice(0, 0x20)
	assert.Equal(t, "0-0020", dev.ID)
	assert.Equal(t, "/sys/bus/i2c/devices/0-0020", dev.Path)
	assert.Equal(t, "/sys/bus/i2c/devices/0-0020/in1_input", dev.Attr("in1_input"))

	pdev := sysfs.NewPlatformDevice("bcma-probe.0")
	assert.Equal(t, "/sys/bus/platform/devices/bcma-probe.0", pdev.Path)
}

func TestDriverBindUnbind(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bind", "unbind"} {
		require.Nil(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	drv := sysfs.NewI2CDriver("opt3001")
	assert.Equal(t, "/sys/bus/i2c/drivers/opt3001", drv.Path)
	drv.Path = dir

	dev, err := drv.Bind(0, 0x44)
	require.Nil(t, err)
	assert.Equal(t, "0-0044", dev.ID)
	data, err := os.ReadFile(filepath.Join(dir, "bind"))
	require.Nil(t, err)
	assert.Equal(t, "0-0044", string(data))

	require.Nil(t, drv.Unbind(dev))
	data, err = os.ReadFile(filepath.Join(dir, "unbind"))
	require.Nil(t, err)
	assert.Equal(t, "0-0044", string(data))
}
