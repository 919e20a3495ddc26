//go:build unix

package fs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DeviceID returns the device number of the filesystem holding path.
func (o *OSFileOps) DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return uint64(st.Dev), nil
}

// CheckWritable uses access(2) so ACLs and read-only mounts are honoured.
func (o *OSFileOps) CheckWritable(dir string) error {
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("access %s: %w", dir, err)
	}
	return nil
}
