package dispatch

import (
	"fmt"
	"time"
	"unicode/utf8"

	"wikiwatch/internal/model"
)

// actionPhrases turn an action into a headline; %s is the linked target.
var actionPhrases = map[model.Action]string{
	model.ActionCreatePage:       "created page %s",
	model.ActionEditPage:         "edited page %s",
	model.ActionDeletePage:       "deleted page %s",
	model.ActionUndeletePage:     "restored page %s",
	model.ActionProtectPage:      "protected page %s",
	model.ActionChangeProtection: "changed protection of %s",
	model.ActionUnprotectPage:    "unprotected page %s",
	model.ActionRenamePage:       "renamed page %s",
	model.ActionUploadFile:       "uploaded file %s",
	model.ActionReuploadFile:     "uploaded a new version of %s",
	model.ActionRevertFile:       "reverted file %s",
	model.ActionBlockUser:        "blocked %s",
	model.ActionChangeBlock:      "changed block settings of %s",
	model.ActionUnblockUser:      "unblocked %s",
	model.ActionChangeUserRights: "changed user rights of %s",
	model.ActionCreatePost:       "posted %s",
	model.ActionEditPost:         "edited post %s",
	model.ActionCreateReply:      "replied to %s",
	model.ActionEditReply:        "edited a reply to %s",
}

// headline builds the leading line of any rendered message with the
// target as a markdown link.
func headline(ev model.Event) string {
	phrase, ok := actionPhrases[ev.Action]
	if !ok {
		phrase = "acted on %s"
	}

	var target string
	if ren, ok := ev.Details.(*model.RenameDetails); ok {
		target = fmt.Sprintf("*%s* → **[%s](%s)**", ren.Old.Name, ren.New.Name, ren.New.URL())
	} else {
		target = fmt.Sprintf("**[%s](%s)**", ev.Target.Label(), ev.Target.URL())
	}
	return fmt.Sprintf(phrase, target)
}

// postBody digs the message text out of a post-category event target.
func postBody(ev model.Event) string {
	switch target := ev.Target.(type) {
	case *model.Post:
		return target.Text
	case *model.Thread:
		if target.FirstPost != nil {
			return target.FirstPost.Text
		}
	}
	return ""
}

// containerNote describes where a post landed (category, wall, article).
func containerNote(ev model.Event) string {
	var container model.ThreadContainer
	switch target := ev.Target.(type) {
	case *model.Thread:
		container = target.Container
	case *model.Post:
		if target.Thread != nil {
			container = target.Thread.Container
		}
	}
	if container == nil {
		return ""
	}
	switch c := container.(type) {
	case *model.Account:
		return fmt.Sprintf("on [%s](%s)'s wall", c.Name, c.URL())
	case *model.ForumCategory:
		return fmt.Sprintf("in [%s](%s)", c.Title, c.URL())
	case *model.Page:
		return fmt.Sprintf("on [%s](%s)", c.Name, c.URL())
	default:
		return ""
	}
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// truncate bounds s to maxN bytes. The cut never lands inside a
// multi-byte rune; both chat APIs reject payloads with invalid UTF-8.
func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	cut := maxN
	if maxN >= 4 {
		cut = maxN - 3
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if maxN < 4 {
		return s[:cut]
	}
	return s[:cut] + "..."
}
