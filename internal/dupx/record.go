package dupx

import "path/filepath"

// Action is the directive attached to a decision record.
//
// The suffix names the file that gets replaced: *_ORIGINAL keeps the
// duplicate and deletes or re-links the original, *_DUPLICATE does the opposite.
type Action string

const (
	ActionDeleteOriginal    Action = "DELETE_ORIGINAL"
	ActionDeleteDuplicate   Action = "DELETE_DUPLICATE"
	ActionDeleteBoth        Action = "DELETE_BOTH"
	ActionSoftlinkOriginal  Action = "SOFTLINK_ORIGINAL"
	ActionSoftlinkDuplicate Action = "SOFTLINK_DUPLICATE"
	ActionHardlinkOriginal  Action = "HARDLINK_ORIGINAL"
	ActionHardlinkDuplicate Action = "HARDLINK_DUPLICATE"
	ActionReviewNeeded      Action = "REVIEW_NEEDED"
)

// mutatingActions lists every action that changes the filesystem.
var mutatingActions = map[Action]OperationKind{
	ActionDeleteOriginal:    KindDelete,
	ActionDeleteDuplicate:   KindDelete,
	ActionDeleteBoth:        KindDelete,
	ActionSoftlinkOriginal:  KindSoftlink,
	ActionSoftlinkDuplicate: KindSoftlink,
	ActionHardlinkOriginal:  KindHardlink,
	ActionHardlinkDuplicate: KindHardlink,
}

// ParseAction maps a raw action tag to a mutating Action.
// Tags are case-sensitive. ok is false for REVIEW_NEEDED, empty and unknown tags.
func ParseAction(raw string) (Action, bool) {
	a := Action(raw)
	if _, ok := mutatingActions[a]; !ok {
		return "", false
	}
	return a, true
}

// Kind returns the operation kind performed by the action.
func (a Action) Kind() OperationKind {
	return mutatingActions[a]
}

// OperationKind groups actions by the primitive they use.
type OperationKind string

const (
	KindDelete   OperationKind = "delete"
	KindSoftlink OperationKind = "softlink"
	KindHardlink OperationKind = "hardlink"
)

// DecisionRecord is one duplicate pair plus the action chosen for it.
type DecisionRecord struct {
	Row             int
	OriginalFolder  string
	OriginalFile    string
	DuplicateFolder string
	DuplicateFile   string
	Size            int64
	SizeText        string
	ContentHash     string
	KeepOriginal    string
	KeepDuplicate   string
	Action          string
	Notes           string
}

// OriginalPath returns the cleaned path of the original file.
func (r DecisionRecord) OriginalPath() string {
	return filepath.Join(r.OriginalFolder, r.OriginalFile)
}

// DuplicatePath returns the cleaned path of the duplicate file.
func (r DecisionRecord) DuplicatePath() string {
	return filepath.Join(r.DuplicateFolder, r.DuplicateFile)
}

// step is a single filesystem mutation belonging to a record.
type step struct {
	target     string        // path that gets removed or replaced
	kind       OperationKind // primitive used
	linkTarget string        // kept path the new link points at; empty for deletes
}

// plan returns the ordered mutations for an action.
func (r DecisionRecord) plan(a Action) []step {
	orig, dup := r.OriginalPath(), r.DuplicatePath()
	switch a {
	case ActionDeleteOriginal:
		return []step{{target: orig, kind: KindDelete}}
	case ActionDeleteDuplicate:
		return []step{{target: dup, kind: KindDelete}}
	case ActionDeleteBoth:
		return []step{{target: orig, kind: KindDelete}, {target: dup, kind: KindDelete}}
	case ActionSoftlinkOriginal:
		return []step{{target: orig, kind: KindSoftlink, linkTarget: dup}}
	case ActionSoftlinkDuplicate:
		return []step{{target: dup, kind: KindSoftlink, linkTarget: orig}}
	case ActionHardlinkOriginal:
		return []step{{target: orig, kind: KindHardlink, linkTarget: dup}}
	case ActionHardlinkDuplicate:
		return []step{{target: dup, kind: KindHardlink, linkTarget: orig}}
	}
	return nil
}
