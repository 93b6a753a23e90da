package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wikiwatch/internal/model"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

// errUnsupportedLog marks log types this normalizer does not understand.
// The upstream log vocabulary evolves independently, so unknown entries
// are skipped with a warning instead of failing the batch.
var errUnsupportedLog = errors.New("unsupported log type")

const mwTimestamp = "2006-01-02T15:04:05Z"

func parseMWTime(s string) (time.Time, error) {
	return time.Parse(mwTimestamp, s)
}

// parseExpiry maps the upstream "no expiry" sentinels to the zero time.
func parseExpiry(s string) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "infinite", "infinity", "indefinite", "never":
		return time.Time{}, nil
	}
	return parseMWTime(s)
}

// Changes turns one recent-changes/log-events payload into canonical
// events. Records the normalizer cannot represent are skipped and
// logged; the rest of the batch is always processed.
func Changes(src model.SourceRef, raw *wiki.RawChanges, log logx.Logger) []model.Event {
	if raw == nil {
		return nil
	}
	events := make([]model.Event, 0, len(raw.Query.RecentChanges)+len(raw.Query.LogEvents))

	for _, rec := range raw.Query.RecentChanges {
		ev, err := editEvent(src, rec)
		if err != nil {
			log.Warn("skipping malformed change record",
				logx.String("title", rec.Title), logx.Err(err))
			continue
		}
		events = append(events, ev)
	}

	for _, rec := range raw.Query.LogEvents {
		ev, err := logEvent(src, rec)
		if err != nil {
			if errors.Is(err, errUnsupportedLog) {
				log.Warn("skipping unsupported log entry",
					logx.String("type", rec.Type), logx.String("action", rec.Action))
			} else {
				log.Warn("skipping malformed log entry",
					logx.String("type", rec.Type), logx.Err(err))
			}
			continue
		}
		events = append(events, ev)
	}

	return events
}

func editEvent(src model.SourceRef, rec wiki.ChangeRecord) (model.Event, error) {
	ts, err := parseMWTime(rec.Timestamp)
	if err != nil {
		return model.Event{}, fmt.Errorf("timestamp: %w", err)
	}

	action := model.ActionEditPage
	if rec.Type == "new" {
		action = model.ActionCreatePage
	}

	return model.Event{
		Category: model.CategoryEdit,
		Action:   action,
		Target: &model.Page{
			Name:      rec.Title,
			ID:        rec.PageID,
			Namespace: rec.Namespace,
			Source:    src,
		},
		Source:  src,
		Actor:   model.Account{Name: rec.User, ID: rec.UserID, Source: src},
		Summary: RenderSummary(src, rec.Comment),
		Details: &model.EditDiff{
			Old: model.PageVersion{ID: rec.OldRevID, Size: rec.OldLen},
			New: model.PageVersion{ID: rec.RevID, Size: rec.NewLen},
		},
		Timestamp: ts,
	}, nil
}

func logEvent(src model.SourceRef, rec wiki.LogRecord) (model.Event, error) {
	ts, err := parseMWTime(rec.Timestamp)
	if err != nil {
		return model.Event{}, fmt.Errorf("timestamp: %w", err)
	}

	var (
		action  model.Action
		target  model.Target
		details model.Details
	)

	page := &model.Page{
		Name:      rec.Title,
		ID:        rec.PageID,
		Namespace: rec.Namespace,
		Source:    src,
	}

	switch rec.Type {
	case "move":
		action = model.ActionRenamePage
		target = page
		details = &model.RenameDetails{
			Old: *page,
			New: model.Page{
				Name:      rec.Params.TargetTitle,
				ID:        rec.PageID,
				Namespace: rec.Params.TargetNamespace,
				Source:    src,
			},
			SuppressRedirect: len(rec.Params.SuppressRedirect) > 0,
		}

	case "delete":
		if rec.Action == "delete" {
			action = model.ActionDeletePage
		} else {
			action = model.ActionUndeletePage
		}
		target = page

	case "upload":
		switch rec.Action {
		case "upload":
			action = model.ActionUploadFile
		case "overwrite":
			action = model.ActionReuploadFile
		default:
			action = model.ActionRevertFile
		}
		target = &model.File{Page: *page}

	case "protect":
		switch rec.Action {
		case "protect":
			action = model.ActionProtectPage
		case "modify":
			action = model.ActionChangeProtection
		default:
			action = model.ActionUnprotectPage
		}
		pd := &model.ProtectionDetails{Cascade: len(rec.Params.Cascade) > 0}
		for _, d := range rec.Params.Details {
			expiry, err := parseExpiry(d.Expiry)
			if err != nil {
				return model.Event{}, fmt.Errorf("protection expiry: %w", err)
			}
			pd.Entries = append(pd.Entries, model.ProtectionEntry{
				Type:   d.Type,
				Level:  d.Level,
				Expiry: expiry,
			})
		}
		target = page
		details = pd

	case "block":
		switch rec.Action {
		case "block":
			action = model.ActionBlockUser
		case "reblock":
			action = model.ActionChangeBlock
		default:
			action = model.ActionUnblockUser
		}
		target = &model.Account{Name: titleSuffix(rec.Title), ID: 0, Source: src}
		if rec.Action != "unblock" {
			expiry, err := parseExpiry(rec.Params.Expiry)
			if err != nil {
				return model.Event{}, fmt.Errorf("block expiry: %w", err)
			}
			details = &model.BlockDetails{
				Expiry:              expiry,
				AutoblockDisabled:   hasFlag(rec.Params.Flags, "noautoblock"),
				CannotEditTalkpage:  hasFlag(rec.Params.Flags, "nousertalk"),
				CannotCreateAccount: hasFlag(rec.Params.Flags, "nocreate"),
			}
		}

	case "rights":
		action = model.ActionChangeUserRights
		target = &model.Account{Name: titleSuffix(rec.Title), ID: 0, Source: src}
		old, err := groupList(rec.Params.OldMetadata)
		if err != nil {
			return model.Event{}, err
		}
		new_, err := groupList(rec.Params.NewMetadata)
		if err != nil {
			return model.Event{}, err
		}
		details = &model.RightsDiff{Old: old, New: new_}

	default:
		return model.Event{}, errUnsupportedLog
	}

	return model.Event{
		Category:  model.CategoryLog,
		Action:    action,
		Target:    target,
		Source:    src,
		Actor:     model.Account{Name: rec.User, ID: rec.UserID, Source: src},
		Summary:   RenderSummary(src, rec.Comment),
		Details:   details,
		Timestamp: ts,
	}, nil
}

func groupList(meta []wiki.GroupMeta) ([]model.Group, error) {
	groups := make([]model.Group, 0, len(meta))
	for _, g := range meta {
		expiry, err := parseExpiry(g.Expiry)
		if err != nil {
			return nil, fmt.Errorf("group expiry: %w", err)
		}
		groups = append(groups, model.Group{Name: g.Group, Expiry: expiry})
	}
	return groups, nil
}

// titleSuffix strips the namespace prefix from titles like "User:Bob".
func titleSuffix(title string) string {
	if i := strings.IndexByte(title, ':'); i >= 0 {
		return title[i+1:]
	}
	return title
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
