// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// Package control implements the log channels that connect the test process
// to the emulated hardware backend.
//
// Two append-only files carry all the traffic, one direction each. The
// control channel (control.txt) flows from the test process to the backend
// and carries call records addressed to the bus models. The operations log
// (opslog.txt) flows the other way and carries the call records the models
// emit as transactions are observed.
//
// Both channels use a single-writer/single-reader discipline with one write
// per line; no locking is involved. Readers are non-blocking polls that
// tolerate lines split across flush boundaries.
package control

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ControlFile is the name of the control channel file within the work
// directory.
const ControlFile = "control.txt"

// commentPrefix marks an annotation line. The reader surfaces these as
// informational output instead of dispatching them.
const commentPrefix = "# "

// Writer is the test-process end of the control channel.
type Writer struct {
	f *os.File
}

// NewWriter opens the control channel for appending.
func NewWriter(workDir string) (*Writer, error) {
	path := filepath.Join(workDir, ControlFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|unix.O_CLOEXEC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening control channel")
	}
	return &Writer{f: f}, nil
}

// WriteCall appends one command to the channel.
//
// The record is written with a single write so a concurrent reader never
// observes a torn line from this process.
func (w *Writer) WriteCall(c Call) error {
	line, err := c.Encode()
	if err != nil {
		return err
	}
	_, err = w.f.Write(append(line, '\n'))
	return errors.Wrap(err, "writing control command")
}

// Log appends an annotation line. The reader logs it instead of
// dispatching it.
func (w *Writer) Log(msg string) error {
	msg = strings.ReplaceAll(msg, "\n", " ")
	_, err := w.f.WriteString(commentPrefix + msg + "\n")
	return errors.Wrap(err, "writing control annotation")
}

// Close releases the channel file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Reader is the backend end of the control channel.
//
// Construction truncates the channel; a session never replays commands from
// a previous one.
type Reader struct {
	f  *os.File
	lb lineBuffer

	// Logf receives annotation lines. Defaults to log.Printf.
	Logf func(format string, args ...interface{})
}

// NewReader creates the control channel file afresh and opens it for
// reading.
func NewReader(workDir string) (*Reader, error) {
	path := filepath.Join(workDir, ControlFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "removing stale control channel")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY|unix.O_CLOEXEC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "creating control channel")
	}
	return &Reader{f: f, Logf: log.Printf}, nil
}

// Process consumes all currently available complete commands, dispatching
// each in append order.
//
// A read that finds no new data returns immediately. A command split across
// polls is dispatched exactly once, on the poll that completes it. Dispatch
// errors abort the poll and propagate; the channel favours failing fast over
// running on past a corrupt or rejected command.
func (r *Reader) Process(dispatch func(Call) error) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.f.Read(buf)
		if n > 0 {
			for _, line := range r.lb.feed(buf[:n]) {
				if err := r.processLine(line, dispatch); err != nil {
					return err
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading control channel")
		}
	}
}

func (r *Reader) processLine(line string, dispatch func(Call) error) error {
	if strings.HasPrefix(line, commentPrefix) {
		r.Logf("control: %s", strings.TrimPrefix(line, commentPrefix))
		return nil
	}
	c, err := ParseCall([]byte(line))
	if err != nil {
		return err
	}
	return dispatch(c)
}

// Close releases the channel file.
func (r *Reader) Close() error {
	return r.f.Close()
}
