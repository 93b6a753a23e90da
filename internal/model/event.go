package model

import (
	"sort"
	"time"
)

// Category classifies an Event by the feed family it came from.
// It is a bitmask so channel filters can select any combination.
type Category uint8

const (
	CategoryEdit Category = 1 << iota
	CategoryLog
	CategoryPost
)

func (c Category) Has(other Category) bool { return c&other != 0 }

func (c Category) String() string {
	switch c {
	case CategoryEdit:
		return "edit"
	case CategoryLog:
		return "log"
	case CategoryPost:
		return "post"
	default:
		return "mixed"
	}
}

// Action is the concrete verb of an Event.
type Action int

const (
	ActionUnknown Action = iota

	ActionCreatePage
	ActionEditPage

	ActionDeletePage
	ActionUndeletePage

	ActionProtectPage
	ActionChangeProtection
	ActionUnprotectPage

	ActionRenamePage

	ActionUploadFile
	ActionReuploadFile
	ActionRevertFile

	ActionBlockUser
	ActionChangeBlock
	ActionUnblockUser

	ActionChangeUserRights

	ActionCreatePost
	ActionEditPost
	ActionCreateReply
	ActionEditReply
)

var actionNames = map[Action]string{
	ActionCreatePage:       "create_page",
	ActionEditPage:         "edit_page",
	ActionDeletePage:       "delete_page",
	ActionUndeletePage:     "undelete_page",
	ActionProtectPage:      "protect_page",
	ActionChangeProtection: "change_protection_settings",
	ActionUnprotectPage:    "unprotect_page",
	ActionRenamePage:       "rename_page",
	ActionUploadFile:       "upload_file",
	ActionReuploadFile:     "reupload_file",
	ActionRevertFile:       "revert_file",
	ActionBlockUser:        "block_user",
	ActionChangeBlock:      "change_block_settings",
	ActionUnblockUser:      "unblock_user",
	ActionChangeUserRights: "change_user_rights",
	ActionCreatePost:       "create_post",
	ActionEditPost:         "edit_post",
	ActionCreateReply:      "create_reply",
	ActionEditReply:        "edit_reply",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Event is the canonical record of one detected change on a source.
//
// Timestamp is always the origin event time, never processing time.
// Events are per-cycle values: produced by the normalizers, resolved,
// sorted, dispatched and then discarded.
type Event struct {
	Category  Category
	Action    Action
	Target    Target
	Source    SourceRef
	Actor     Account
	Summary   string
	Details   Details // nil when the action carries no extra data
	Timestamp time.Time
}

// SortChronological orders events ascending by timestamp, in place.
// The sort is stable so records that share a timestamp keep feed order.
func SortChronological(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
