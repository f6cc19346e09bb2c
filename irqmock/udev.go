// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package irqmock

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pilebones/go-udev/netlink"
)

type udevMonitor struct {
	conn  *netlink.UEventConn
	queue chan netlink.UEvent
	quit  chan struct{}
}

// Chip waits for the mocked chip's add event and locates its device and
// debugfs paths.
func (m *udevMonitor) Chip(lines int) (*Chip, error) {
	var evt netlink.UEvent
	select {
	case evt = <-m.queue:
	case <-time.After(time.Second):
		return nil, errors.New("timeout waiting for udev event")
	}
	devpath := evt.Env["DEVNAME"]
	name := devpath[len("/dev/"):]
	var num int
	if _, err := fmt.Sscanf(name, "gpiochip%d", &num); err != nil {
		return nil, fmt.Errorf("failed to parse chip num: %s", err)
	}
	return &Chip{
		Name:      name,
		DevPath:   devpath,
		DbgfsPath: fmt.Sprintf("/sys/kernel/debug/gpio-mockup/gpiochip%d/", num),
		Lines:     lines,
	}, nil
}

func newUdevMonitor() (*udevMonitor, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("unable to connect to Netlink Kobject UEvent socket")
	}
	action := "add"
	matcher := &netlink.RuleDefinition{Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "gpio",
			"DEVPATH":   "/devices/platform/gpio-mockup\\.\\d+/gpiochip\\d+",
		}}
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, matcher)
	mon := udevMonitor{conn: conn, queue: queue, quit: quit}
	go func() {
		for {
			select {
			case err := <-errs:
				log.Printf("ERROR: %v", err)
			case <-quit:
				return
			}
		}
	}()
	return &mon, nil
}

func (m *udevMonitor) Close() {
	m.quit <- struct{}{}
	m.conn.Close()
}
