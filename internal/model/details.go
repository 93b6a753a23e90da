package model

import (
	"strconv"
	"time"
)

// Details carries the action-specific payload of an Event. Each action
// that needs extra data has its own variant; dispatch code type-switches
// over the concrete types. A nil Details is valid for actions without
// extra data (delete, undelete, unblock, uploads, posts).
type Details interface {
	isDetails()
}

// PageVersion references one revision of a page: id and byte size only,
// no content is ever fetched.
type PageVersion struct {
	ID   int64
	Size int64
}

// EditDiff describes an edit as old/new revision references.
type EditDiff struct {
	Old PageVersion
	New PageVersion
}

func (*EditDiff) isDetails() {}

// DiffURL returns the source's diff view for the new revision.
func (d *EditDiff) DiffURL(src SourceRef) string {
	return src.BaseURL + "/?diff=" + strconv.FormatInt(d.New.ID, 10)
}

// Delta returns the signed byte-size change.
func (d *EditDiff) Delta() int64 { return d.New.Size - d.Old.Size }

// RenameDetails captures a page move.
type RenameDetails struct {
	Old              Page
	New              Page
	SuppressRedirect bool
}

func (*RenameDetails) isDetails() {}

// ProtectionEntry is one per-action protection setting. A zero Expiry
// means the protection does not expire.
type ProtectionEntry struct {
	Type   string // "edit", "move", "create", ...
	Level  string // "autoconfirmed", "sysop", ...
	Expiry time.Time
}

// ProtectionDetails captures a protect/modify/unprotect log action.
type ProtectionDetails struct {
	Cascade bool
	Entries []ProtectionEntry
}

func (*ProtectionDetails) isDetails() {}

// BlockDetails captures a block or reblock. A zero Expiry means the
// block is indefinite.
type BlockDetails struct {
	Expiry              time.Time
	AutoblockDisabled   bool
	CannotEditTalkpage  bool
	CannotCreateAccount bool
}

func (*BlockDetails) isDetails() {}

// Group is one group membership with an optional expiry (zero = none).
type Group struct {
	Name   string
	Expiry time.Time
}

// RightsDiff is the before/after group membership of an account.
type RightsDiff struct {
	Old []Group
	New []Group
}

func (*RightsDiff) isDetails() {}

// Added returns groups present in New but not in Old (name+expiry match).
func (d *RightsDiff) Added() []Group {
	return diffGroups(d.New, d.Old)
}

// Removed returns groups present in Old but not in New.
func (d *RightsDiff) Removed() []Group {
	return diffGroups(d.Old, d.New)
}

func diffGroups(a, b []Group) []Group {
	var out []Group
	for _, g := range a {
		found := false
		for _, h := range b {
			if g == h {
				found = true
				break
			}
		}
		if !found {
			out = append(out, g)
		}
	}
	return out
}
