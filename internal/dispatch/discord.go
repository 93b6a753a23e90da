package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wikiwatch/internal/model"
	"wikiwatch/internal/storage"
	logx "wikiwatch/pkg/logx"
)

// Discord embed limits we actually hit in practice.
const (
	embedDescriptionMax = 2048
	embedFieldValueMax  = 1024
)

// Embed colors by action class.
const (
	colorEdit   = 0x2ECC71
	colorDelete = 0xE74C3C
	colorAdmin  = 0xF1C40F
	colorUpload = 0x3498DB
	colorLog    = 0xE67E22
	colorPost   = 0x9B59B6
)

type embedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Author      *embedAuthor `json:"author,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// discordChannel posts events to a Discord webhook as embeds.
type discordChannel struct {
	url    string
	filter model.Category
	http   *http.Client
	log    logx.Logger
}

func newDiscordChannel(rec storage.ChannelRecord, hc *http.Client, log logx.Logger) (*discordChannel, error) {
	if !strings.HasPrefix(rec.URL, "https://") {
		return nil, fmt.Errorf("discord webhook url must be https, got %q", rec.URL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &discordChannel{
		url:    rec.URL,
		filter: model.Category(rec.Filter),
		http:   hc,
		log:    log.With(logx.String("channel", "discord")),
	}, nil
}

func (c *discordChannel) Kind() string           { return "discord" }
func (c *discordChannel) Filter() model.Category { return c.filter }

func (c *discordChannel) Deliver(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(webhookPayload{Embeds: []embed{renderEmbed(ev)}})
	if err != nil {
		return fmt.Errorf("encode embed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook post: status %s", resp.Status)
	}
	return nil
}

// renderEmbed turns an event into one Discord embed. The description
// always opens with the headline; detail variants add their own lines
// and fields below it.
func renderEmbed(ev model.Event) embed {
	e := embed{
		Color:     actionColor(ev.Action),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}

	lines := []string{headline(ev)}
	if note := containerNote(ev); note != "" {
		lines[0] += " " + note
	}

	switch det := ev.Details.(type) {
	case *model.EditDiff:
		lines = append(lines, fmt.Sprintf("%s bytes ([diff](%s))", signedDelta(det.Delta()), det.DiffURL(ev.Source)))
	case *model.RenameDetails:
		if det.SuppressRedirect {
			lines = append(lines, "No redirect was left behind.")
		}
	case *model.ProtectionDetails:
		for _, entry := range det.Entries {
			lines = append(lines, fmt.Sprintf("%s: %s (until %s)", entry.Type, entry.Level, formatExpiry(entry.Expiry)))
		}
		if det.Cascade {
			lines = append(lines, "Protection is cascading.")
		}
	case *model.BlockDetails:
		lines = append(lines, "Expires: "+formatExpiry(det.Expiry))
		if restr := blockRestrictions(det); restr != "" {
			lines = append(lines, restr)
		}
	case *model.RightsDiff:
		if added := det.Added(); len(added) > 0 {
			e.Fields = append(e.Fields, embedField{Name: "Added", Value: groupLines(added), Inline: true})
		}
		if removed := det.Removed(); len(removed) > 0 {
			e.Fields = append(e.Fields, embedField{Name: "Removed", Value: groupLines(removed), Inline: true})
		}
	}

	if ev.Summary != "" {
		e.Fields = append(e.Fields, embedField{Name: "Summary", Value: truncate(ev.Summary, embedFieldValueMax)})
	}
	if text := postBody(ev); text != "" {
		e.Fields = append(e.Fields, embedField{Name: "Message", Value: truncate(text, embedFieldValueMax)})
	}
	if file, ok := ev.Target.(*model.File); ok {
		e.Image = &embedImage{URL: file.URL()}
	}

	if ev.Actor.Name != "" {
		author := &embedAuthor{Name: ev.Actor.Name, URL: ev.Actor.URL()}
		if ev.Actor.Resolved() {
			author.IconURL = ev.Actor.AvatarURL()
		}
		e.Author = author
	}

	e.Description = truncate(strings.Join(lines, "\n"), embedDescriptionMax)
	return e
}

func actionColor(a model.Action) int {
	switch a {
	case model.ActionCreatePage, model.ActionEditPage:
		return colorEdit
	case model.ActionDeletePage:
		return colorDelete
	case model.ActionUndeletePage, model.ActionRenamePage,
		model.ActionProtectPage, model.ActionChangeProtection, model.ActionUnprotectPage:
		return colorAdmin
	case model.ActionUploadFile, model.ActionReuploadFile, model.ActionRevertFile:
		return colorUpload
	case model.ActionCreatePost, model.ActionEditPost, model.ActionCreateReply, model.ActionEditReply:
		return colorPost
	default:
		return colorLog
	}
}

func signedDelta(n int64) string {
	if n >= 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func blockRestrictions(det *model.BlockDetails) string {
	var parts []string
	if det.AutoblockDisabled {
		parts = append(parts, "autoblock disabled")
	}
	if det.CannotEditTalkpage {
		parts = append(parts, "cannot edit own talk page")
	}
	if det.CannotCreateAccount {
		parts = append(parts, "cannot create accounts")
	}
	if len(parts) == 0 {
		return ""
	}
	return "Restrictions: " + strings.Join(parts, ", ")
}

func groupLines(groups []model.Group) string {
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(g.Name)
		if !g.Expiry.IsZero() {
			b.WriteString(" (until " + formatExpiry(g.Expiry) + ")")
		}
	}
	return b.String()
}
