package backup

import (
	"fmt"
	"io/fs"
)

// validateStatUnchanged compares two stats of the same file taken before and
// after a copy.
func validateStatUnchanged(before, after fs.FileInfo) error {
	if before.Size() != after.Size() {
		return fmt.Errorf("size changed: %d -> %d", before.Size(), after.Size())
	}
	if before.Mode() != after.Mode() {
		return fmt.Errorf("mode changed: %v -> %v", before.Mode(), after.Mode())
	}
	if !before.ModTime().Equal(after.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", before.ModTime(), after.ModTime())
	}
	return nil
}
