// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package control

import "bytes"

// lineBuffer reassembles newline-terminated lines from arbitrarily split
// chunks. A trailing unterminated fragment is held back and prefixed to the
// first line completed by a later feed, so a line flushed in parts by the
// writer is surfaced exactly once, and only once complete.
type lineBuffer struct {
	partial []byte
}

// feed consumes a chunk and returns the lines it completes, in order,
// without their terminators.
func (lb *lineBuffer) feed(chunk []byte) []string {
	var lines []string
	for {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			break
		}
		line := chunk[:i]
		chunk = chunk[i+1:]
		if len(lb.partial) != 0 {
			line = append(lb.partial, line...)
			lb.partial = nil
		}
		lines = append(lines, string(line))
	}
	if len(chunk) != 0 {
		lb.partial = append(lb.partial, chunk...)
	}
	return lines
}
