// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import "log"

// Debug enables trace logging of line state transitions, bus traffic and
// fault injection decisions.
var Debug bool

func debugf(format string, args ...interface{}) {
	if Debug {
		log.Printf(format, args...)
	}
}
