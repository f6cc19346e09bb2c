// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package backend

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
)

// Injector implements counter-based fault injection keyed by a rolling
// content hash.
//
// Arming with FailNext(n) starts a countdown decremented on each flaky
// operation. When it hits zero the digest of all bytes transacted since
// arming decides the outcome: a digest never seen before records itself and
// fails the operation with ErrFaultInjected; a repeat digest skips the fault
// and re-arms a short grace countdown instead, so a driver retrying with
// identical content converges rather than faulting forever, while a retry
// with different content can still fault.
type Injector struct {
	countdown int
	hash      hash.Hash
	failed    map[string]bool

	// operations granted before the next fault attempt after a duplicate
	// digest is skipped
	grace int

	// notified when a fault is actually injected
	onFault func() error
}

// NewInjector returns a disarmed injector. onFault, if not nil, is notified
// whenever a fault is actually injected.
func NewInjector(onFault func() error) *Injector {
	return &Injector{
		hash:    md5.New(),
		failed:  map[string]bool{},
		grace:   1,
		onFault: onFault,
	}
}

// FailNext arms the injector to fail the n'th flaky operation from now.
// n = 0 disarms. The rolling hash restarts from empty.
func (j *Injector) FailNext(n int) {
	debugf("fault: fail_next %d", n)
	j.countdown = n
	j.hash = md5.New()
}

// Reset forgets previously injected digests, allowing content that already
// faulted once to fault again.
func (j *Injector) Reset() {
	j.failed = map[string]bool{}
}

// update folds transacted bytes into the rolling hash. Models call this
// after every flaky read and write, whatever the fault outcome.
func (j *Injector) update(data []byte) {
	debugf("fault: update with % x", data)
	j.hash.Write(data)
}

// inject is called at each flaky operation's fault point, and fails the
// operation if the countdown expires on unseen content.
func (j *Injector) inject() error {
	if j.countdown <= 0 {
		return nil
	}
	j.countdown--
	if j.countdown != 0 {
		return nil
	}
	digest := hex.EncodeToString(j.hash.Sum(nil))
	debugf("fault: should fail digest=%s", digest)
	if j.failed[digest] {
		debugf("fault: skip repeat digest=%s", digest)
		j.countdown = j.grace
		return nil
	}
	j.failed[digest] = true
	if j.onFault != nil {
		if err := j.onFault(); err != nil {
			return err
		}
	}
	return ErrFaultInjected
}
