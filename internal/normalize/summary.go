package normalize

import (
	"regexp"
	"strings"

	"wikiwatch/internal/model"
)

// wikiLinkRE matches [[Target]], [[Target|Title]] and a trailing word
// fragment glued to the closing brackets ([[cat]]s).
var wikiLinkRE = regexp.MustCompile(`\[\[(.+?)(?:\|(.*?))?\]\]([^ ` + "`" + `\n]+)?`)

// RenderSummary converts wiki links inside an edit/log comment into
// markdown hyperlinks against the owning source.
func RenderSummary(src model.SourceRef, text string) string {
	if text == "" {
		return ""
	}
	return wikiLinkRE.ReplaceAllStringFunc(text, func(match string) string {
		m := wikiLinkRE.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		target, title, suffix := m[1], m[2], m[3]

		if title == "" {
			title = target
			// [[Namespace:Page|]] renders as the bare page name.
			if strings.Contains(match, "|") {
				parts := strings.Split(target, ":")
				title = parts[len(parts)-1]
			}
		}
		return "[" + title + suffix + "](<" + src.PageURL(target) + ">)"
	})
}
