package wiki

import "encoding/json"

// RawChanges is the combined recent-changes + log-events response of the
// MediaWiki action API.
type RawChanges struct {
	Query struct {
		RecentChanges []ChangeRecord `json:"recentchanges"`
		LogEvents     []LogRecord    `json:"logevents"`
	} `json:"query"`
}

// ChangeRecord is one page edit (or creation).
type ChangeRecord struct {
	Type      string `json:"type"` // "new" or "edit"
	Title     string `json:"title"`
	PageID    int64  `json:"pageid"`
	Namespace int    `json:"ns"`
	User      string `json:"user"`
	UserID    int64  `json:"userid"`
	RevID     int64  `json:"revid"`
	OldRevID  int64  `json:"old_revid"`
	OldLen    int64  `json:"oldlen"`
	NewLen    int64  `json:"newlen"`
	Comment   string `json:"comment"`
	Timestamp string `json:"timestamp"`
}

// LogRecord is one administrative log entry. Params carries the
// type-specific payload; unknown log types leave it unused.
type LogRecord struct {
	Type      string    `json:"type"`   // "move", "delete", "upload", "protect", "block", "rights", ...
	Action    string    `json:"action"` // subtype within Type
	Title     string    `json:"title"`
	PageID    int64     `json:"pageid"`
	Namespace int       `json:"ns"`
	User      string    `json:"user"`
	UserID    int64     `json:"userid"`
	Comment   string    `json:"comment"`
	Timestamp string    `json:"timestamp"`
	Params    LogParams `json:"params"`
}

// LogParams is the union of the per-type parameter shapes the upstream
// API emits. Presence-only flags arrive as "" or true depending on the
// site version; json.RawMessage keeps the key-present signal without
// committing to either type.
type LogParams struct {
	// move
	TargetTitle      string          `json:"target_title"`
	TargetNamespace  int             `json:"target_ns"`
	SuppressRedirect json.RawMessage `json:"suppressredirect"`

	// protect
	Details []ProtectionParam `json:"details"`
	Cascade json.RawMessage   `json:"cascade"`

	// block
	Expiry string   `json:"expiry"`
	Flags  []string `json:"flags"`

	// rights
	OldMetadata []GroupMeta `json:"oldmetadata"`
	NewMetadata []GroupMeta `json:"newmetadata"`
}

type ProtectionParam struct {
	Type   string `json:"type"`
	Level  string `json:"level"`
	Expiry string `json:"expiry"`
}

type GroupMeta struct {
	Group  string `json:"group"`
	Expiry string `json:"expiry"`
}

// RawActivity is the day-bucketed social activity feed. Each entry is an
// HTML tracking fragment; the attributes inside act as field markers.
type RawActivity []ActivityDay

type ActivityDay struct {
	Date    string          `json:"date"` // e.g. "2 January 2024"
	Actions []ActivityEntry `json:"actions"`
}

type ActivityEntry struct {
	Time        string `json:"time"`        // local "HH:MM", no seconds, no zone
	ActionType  string `json:"actionType"`  // "create" or "update"
	ContentType string `json:"contentType"` // "post", "post-reply", "message", ...
	Label       string `json:"label"`       // HTML fragment
}

// RawPosts is the recent-post-body feed: bodies arrive either as plain
// text or as a structured document (jsonModel).
type RawPosts struct {
	Embedded struct {
		Posts []RawPost `json:"doc:posts"`
	} `json:"_embedded"`
}

type RawPost struct {
	ID         string `json:"id"`
	RawContent string `json:"rawContent"`
	JSONModel  string `json:"jsonModel"`
}
