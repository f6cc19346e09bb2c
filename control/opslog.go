// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package control

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// OpsLogFile is the name of the operations log file within the work
// directory.
const OpsLogFile = "opslog.txt"

// OpsWriter is the backend end of the operations log. Hardware models append
// one call record per observed operation.
//
// Construction truncates the log; a session starts with a clean history.
type OpsWriter struct {
	f *os.File
}

// NewOpsWriter creates the operations log afresh and opens it for appending.
func NewOpsWriter(workDir string) (*OpsWriter, error) {
	path := filepath.Join(workDir, OpsLogFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "removing stale operations log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|unix.O_CLOEXEC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "creating operations log")
	}
	return &OpsWriter{f: f}, nil
}

// WriteCall appends one operation record.
func (w *OpsWriter) WriteCall(c Call) error {
	line, err := c.Encode()
	if err != nil {
		return err
	}
	_, err = w.f.Write(append(line, '\n'))
	return errors.Wrap(err, "writing operation record")
}

// Close releases the log file.
func (w *OpsWriter) Close() error {
	return w.f.Close()
}

// OpsReader is the test-process end of the operations log.
//
// It keeps a byte-offset cursor and an independent partial-line buffer, so
// each poll returns exactly the records completed since the previous poll.
type OpsReader struct {
	path string
	pos  int64
	lb   lineBuffer
}

// NewOpsReader returns a reader positioned at the start of the log.
//
// The log file need not exist yet; polls before the backend creates it
// return no records.
func NewOpsReader(workDir string) *OpsReader {
	return &OpsReader{path: filepath.Join(workDir, OpsLogFile)}
}

// ReadNext returns the records appended and completed since the last poll,
// or none.
//
// The file is reopened on every poll. A long-lived handle does not observe
// externally-appended growth across some filesystem boundaries (hostfs, for
// one), and reopening guarantees freshness.
func (r *OpsReader) ReadNext() ([]Call, error) {
	f, err := os.OpenFile(r.path, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "opening operations log")
	}
	defer f.Close()

	if _, err := f.Seek(r.pos, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking operations log")
	}

	var ops []Call
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			r.pos += int64(n)
			for _, line := range r.lb.feed(buf[:n]) {
				c, cerr := ParseCall([]byte(line))
				if cerr != nil {
					return nil, cerr
				}
				ops = append(ops, c)
			}
		}
		if err == io.EOF {
			return ops, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading operations log")
		}
	}
}
