package dupx

import (
	"errors"
	"path/filepath"
)

// Validator checks the preconditions of a mutating action.
type Validator struct {
	fsops     FileOps
	protected PathMatcher
}

// NewValidator creates a Validator. protected may be nil.
func NewValidator(fsops FileOps, protected PathMatcher) *Validator {
	return &Validator{fsops: fsops, protected: protected}
}

// Validate returns nil when the action can proceed, a *ValidationError when
// a precondition fails, or a *CrossDeviceError for a hard link across volumes.
func (v *Validator) Validate(rec DecisionRecord, action Action) error {
	orig, dup := rec.OriginalPath(), rec.DuplicatePath()

	for _, p := range []string{orig, dup} {
		if err := v.checkRegular(rec.Row, p); err != nil {
			return err
		}
	}

	same, err := v.fsops.SameFile(orig, dup)
	if err != nil {
		return &ValidationError{Row: rec.Row, Path: dup, Reason: "comparing files", Err: err}
	}
	if same {
		return &ValidationError{Row: rec.Row, Path: dup, Reason: "already the same file as " + orig}
	}

	origDir, dupDir := filepath.Dir(orig), filepath.Dir(dup)
	for _, dir := range []string{origDir, dupDir} {
		if err := v.fsops.CheckWritable(dir); err != nil {
			return &ValidationError{Row: rec.Row, Path: dir, Reason: "directory not writable", Err: err}
		}
	}

	if v.protected != nil {
		for _, p := range []string{orig, dup} {
			if v.protected.Match(p) {
				return &ValidationError{Row: rec.Row, Path: p, Reason: "path is protected"}
			}
		}
	}

	if action.Kind() == KindHardlink {
		origDev, err := v.fsops.DeviceID(origDir)
		if err != nil {
			return &ValidationError{Row: rec.Row, Path: origDir, Reason: "reading device id", Err: err}
		}
		dupDev, err := v.fsops.DeviceID(dupDir)
		if err != nil {
			return &ValidationError{Row: rec.Row, Path: dupDir, Reason: "reading device id", Err: err}
		}
		if origDev != dupDev {
			return &CrossDeviceError{
				Row:             rec.Row,
				OriginalDir:     origDir,
				DuplicateDir:    dupDir,
				OriginalDevice:  origDev,
				DuplicateDevice: dupDev,
			}
		}
	}

	return nil
}

// checkRegular requires path to exist as a regular file. A symlink does not count.
func (v *Validator) checkRegular(row int, path string) error {
	info, err := v.fsops.Lstat(path)
	if err != nil {
		return &ValidationError{Row: row, Path: path, Reason: "file not found", Err: err}
	}
	if !info.Mode().IsRegular() {
		return &ValidationError{Row: row, Path: path, Reason: "not a regular file"}
	}
	return nil
}

// isSkip reports whether err is an expected condition that counts as a skip.
func isSkip(err error) bool {
	var cross *CrossDeviceError
	return errors.As(err, &cross)
}
