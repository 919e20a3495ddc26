package dupx

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrPrerequisites is returned when the working directory cannot support
// the primitives an execute run needs.
var ErrPrerequisites = errors.New("filesystem prerequisites not met")

// CheckPrerequisites verifies that files, symbolic links and hard links can
// be created and removed in dir. Everything it creates is removed again.
func CheckPrerequisites(fsops FileOps, dir string) error {
	if err := fsops.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrPrerequisites, dir, err)
	}

	probe := filepath.Join(dir, ".dupx-probe")
	soft := probe + ".symlink"
	hard := probe + ".hardlink"
	defer func() {
		for _, p := range []string{hard, soft, probe} {
			fsops.Remove(p)
		}
	}()

	if _, err := fsops.WriteFile(probe, strings.NewReader("dupx"), 0600, time.Now()); err != nil {
		return fmt.Errorf("%w: cannot create files in %s: %v", ErrPrerequisites, dir, err)
	}
	if err := fsops.Symlink(probe, soft); err != nil {
		return fmt.Errorf("%w: symbolic links unavailable in %s: %v", ErrPrerequisites, dir, err)
	}
	if err := fsops.Link(probe, hard); err != nil {
		return fmt.Errorf("%w: hard links unavailable in %s: %v", ErrPrerequisites, dir, err)
	}
	for _, p := range []string{hard, soft, probe} {
		if err := fsops.Remove(p); err != nil {
			return fmt.Errorf("%w: cannot remove files in %s: %v", ErrPrerequisites, dir, err)
		}
	}
	return nil
}
