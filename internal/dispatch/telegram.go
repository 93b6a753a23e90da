package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"wikiwatch/internal/model"
	"wikiwatch/internal/storage"
	logx "wikiwatch/pkg/logx"
)

const telegramTextLimit = 4096

// sender is the slice of *tele.Bot the channel uses; tests stub it.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// telegramChannel sends events as HTML messages through a bot. The
// channel URL is "<bot token>/<chat id>".
type telegramChannel struct {
	bot    sender
	chat   *tele.Chat
	filter model.Category
	log    logx.Logger
}

func newTelegramChannel(rec storage.ChannelRecord, log logx.Logger) (*telegramChannel, error) {
	token, chatID, err := splitTelegramURL(rec.URL)
	if err != nil {
		return nil, err
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &telegramChannel{
		bot:    bot,
		chat:   &tele.Chat{ID: chatID},
		filter: model.Category(rec.Filter),
		log:    log.With(logx.String("channel", "telegram")),
	}, nil
}

func splitTelegramURL(raw string) (token string, chatID int64, err error) {
	i := strings.LastIndexByte(raw, '/')
	if i <= 0 || i == len(raw)-1 {
		return "", 0, errors.New(`telegram channel url must be "<token>/<chat id>"`)
	}
	chatID, err = strconv.ParseInt(raw[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("telegram chat id: %w", err)
	}
	return raw[:i], chatID, nil
}

func (c *telegramChannel) Kind() string           { return "telegram" }
func (c *telegramChannel) Filter() model.Category { return c.filter }

func (c *telegramChannel) Deliver(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Send(c.chat, renderTelegram(ev), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}

// renderTelegram builds the HTML message body. Telegram has no embed
// structure, so detail lines follow the headline as plain lines.
func renderTelegram(ev model.Event) string {
	var b strings.Builder

	actor := html.EscapeString(ev.Actor.Name)
	if actor != "" {
		fmt.Fprintf(&b, `<a href="%s">%s</a> `, ev.Actor.URL(), actor)
	}
	b.WriteString(telegramHeadline(ev))

	if note := containerNote(ev); note != "" {
		b.WriteString(" " + markdownLinksToHTML(note))
	}

	switch det := ev.Details.(type) {
	case *model.EditDiff:
		fmt.Fprintf(&b, "\n%s bytes, <a href=\"%s\">diff</a>", signedDelta(det.Delta()), det.DiffURL(ev.Source))
	case *model.RenameDetails:
		if det.SuppressRedirect {
			b.WriteString("\nNo redirect was left behind.")
		}
	case *model.ProtectionDetails:
		for _, entry := range det.Entries {
			fmt.Fprintf(&b, "\n%s: %s (until %s)", entry.Type, entry.Level, formatExpiry(entry.Expiry))
		}
		if det.Cascade {
			b.WriteString("\nProtection is cascading.")
		}
	case *model.BlockDetails:
		b.WriteString("\nExpires: " + formatExpiry(det.Expiry))
		if restr := blockRestrictions(det); restr != "" {
			b.WriteString("\n" + restr)
		}
	case *model.RightsDiff:
		if added := det.Added(); len(added) > 0 {
			b.WriteString("\nAdded: " + html.EscapeString(groupList(added)))
		}
		if removed := det.Removed(); len(removed) > 0 {
			b.WriteString("\nRemoved: " + html.EscapeString(groupList(removed)))
		}
	}

	if ev.Summary != "" {
		b.WriteString("\n<i>" + markdownLinksToHTML(ev.Summary) + "</i>")
	}
	if text := postBody(ev); text != "" {
		b.WriteString("\n" + html.EscapeString(truncate(text, telegramTextLimit/4)))
	}

	b.WriteString("\n" + ev.Timestamp.UTC().Format(time.RFC1123))
	return truncate(b.String(), telegramTextLimit)
}

// telegramHeadline is headline() with HTML links instead of markdown.
func telegramHeadline(ev model.Event) string {
	phrase, ok := actionPhrases[ev.Action]
	if !ok {
		phrase = "acted on %s"
	}
	var target string
	if ren, ok := ev.Details.(*model.RenameDetails); ok {
		target = fmt.Sprintf(`<i>%s</i> to <a href="%s">%s</a>`,
			html.EscapeString(ren.Old.Name), ren.New.URL(), html.EscapeString(ren.New.Name))
	} else {
		target = fmt.Sprintf(`<a href="%s">%s</a>`, ev.Target.URL(), html.EscapeString(ev.Target.Label()))
	}
	return fmt.Sprintf(phrase, target)
}

func groupList(groups []model.Group) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		s := g.Name
		if !g.Expiry.IsZero() {
			s += " (until " + formatExpiry(g.Expiry) + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

var markdownLinkRE = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)

// markdownLinksToHTML converts the [label](url) links produced by the
// summary renderer into anchors and escapes everything else.
func markdownLinksToHTML(s string) string {
	var b strings.Builder
	for {
		m := markdownLinkRE.FindStringSubmatchIndex(s)
		if m == nil {
			b.WriteString(html.EscapeString(s))
			return b.String()
		}
		b.WriteString(html.EscapeString(s[:m[0]]))
		label := s[m[2]:m[3]]
		href := strings.Trim(s[m[4]:m[5]], "<>")
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, href, html.EscapeString(label))
		s = s[m[1]:]
	}
}
