// Package mount tracks the mounts the daemon knows about.
package mount

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Mount is an immutable record of a single mount: the device it belongs to
// and the path it is mounted on.
type Mount struct {
	dev  uint64
	path string
}

// New creates a mount record for the given device number and mount path.
func New(dev uint64, path string) Mount {
	return Mount{dev: dev, path: path}
}

// Dev returns the device number of the mounted device.
func (m Mount) Dev() uint64 { return m.dev }

// Path returns the path the device is mounted on.
func (m Mount) Path() string { return m.path }

// Compare orders two mount records: by mount path descending, then by device
// number ascending. Deeper paths sorting first lets unmount logic peel
// nested mounts from the inside out.
func (m Mount) Compare(other Mount) int {
	if c := strings.Compare(other.path, m.path); c != 0 {
		return c
	}
	switch {
	case m.dev < other.dev:
		return -1
	case m.dev > other.dev:
		return 1
	}
	return 0
}

func (m Mount) String() string {
	return fmt.Sprintf("%s (%d:%d)", m.path, unix.Major(m.dev), unix.Minor(m.dev))
}
