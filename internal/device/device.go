// Package device restarts the controller when the network stack or the
// remote server stays unreachable.
package device

import (
	"log"
	"sync"
)

// Restarter restarts the whole device. On real hardware Restart does not return.
type Restarter interface {
	Restart(reason string) error
}

// LogRestarter only logs. Used when running off-device.
type LogRestarter struct{}

// Restart logs the reason and returns nil.
func (LogRestarter) Restart(reason string) error {
	log.Printf("device: restart requested (%s), ignoring", reason)
	return nil
}

// FakeRestarter records restart requests for tests.
type FakeRestarter struct {
	mu      sync.Mutex
	reasons []string
	Err     error
}

// Restart records reason and returns Err.
func (f *FakeRestarter) Restart(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	return f.Err
}

// Count returns the number of restart requests.
func (f *FakeRestarter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reasons)
}

// Reasons returns a copy of the recorded reasons.
func (f *FakeRestarter) Reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}
