package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"wikiwatch/internal/model"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

// activityDateFormat is the day-bucket header, e.g. "2 January 2024".
const activityDateFormat = "2 January 2006"

// Activity turns the day-bucketed HTML activity feed into canonical
// events, pairing each created post with the next unconsumed body from
// the raw-post feed to recover full message text.
//
// The feed exposes no discrete fields for actor/target/ids; tagged
// fragments inside the HTML snippet act as field markers. A parse
// failure on one entry skips that entry only.
//
// Entry times carry no zone; they are interpreted in loc, which the
// deployment configures explicitly (UTC by default).
func Activity(src model.SourceRef, days wiki.RawActivity, bodies []string, loc *time.Location, log logx.Logger) []model.Event {
	if loc == nil {
		loc = time.UTC
	}

	var events []model.Event
	bodyIdx := 0
	for _, day := range days {
		date, err := time.ParseInLocation(activityDateFormat, day.Date, loc)
		if err != nil {
			log.Warn("skipping activity bucket with malformed date",
				logx.String("date", day.Date), logx.Err(err))
			// The bucket's creations still consumed bodies from the
			// raw-post feed; skip those so later pairs stay aligned.
			for _, entry := range day.Actions {
				if entry.ActionType == "create" {
					bodyIdx++
				}
			}
			continue
		}
		for _, entry := range day.Actions {
			// Edits announce no fresh post, so only creations advance
			// the post-body cursor.
			body := ""
			if entry.ActionType == "create" {
				if bodyIdx < len(bodies) {
					body = bodies[bodyIdx]
				}
				bodyIdx++
			}

			ev, err := activityEvent(src, entry, date, loc, body)
			if err != nil {
				log.Warn("skipping malformed activity entry",
					logx.String("content_type", entry.ContentType), logx.Err(err))
				continue
			}
			events = append(events, ev)
		}
	}
	return events
}

func activityEvent(src model.SourceRef, entry wiki.ActivityEntry, date time.Time, loc *time.Location, body string) (model.Event, error) {
	hhmm, err := time.Parse("15:04", entry.Time)
	if err != nil {
		return model.Event{}, fmt.Errorf("time of day: %w", err)
	}
	ts := time.Date(date.Year(), date.Month(), date.Day(), hhmm.Hour(), hhmm.Minute(), 0, 0, loc)

	reply := strings.HasSuffix(entry.ContentType, "-reply") || strings.HasSuffix(entry.ContentType, "_reply")
	var action model.Action
	switch entry.ActionType {
	case "create":
		if reply {
			action = model.ActionCreateReply
		} else {
			action = model.ActionCreatePost
		}
	case "update":
		if reply {
			action = model.ActionEditReply
		} else {
			action = model.ActionEditPost
		}
	default:
		return model.Event{}, fmt.Errorf("unknown action type %q", entry.ActionType)
	}

	frag, err := html.Parse(strings.NewReader(entry.Label))
	if err != nil {
		return model.Event{}, fmt.Errorf("label html: %w", err)
	}

	actorName, err := trackingText(frag, "action-username__"+entry.ContentType)
	if err != nil {
		return model.Event{}, err
	}
	actor := model.Account{Name: actorName, ID: 0, Source: src}

	var target model.Target
	switch entry.ContentType {
	case "post", "post-reply":
		target, err = forumTarget(src, frag, entry.ContentType, actor, body)
	case "message", "message-reply":
		target, err = wallTarget(src, frag, entry.ContentType, body)
	case "comment", "comment_reply":
		target, err = commentTarget(src, frag, entry.ContentType, body)
	default:
		err = fmt.Errorf("unknown content type %q", entry.ContentType)
	}
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		Category:  model.CategoryPost,
		Action:    action,
		Target:    target,
		Source:    src,
		Actor:     actor,
		Timestamp: ts,
	}, nil
}

// forumTarget handles forum posts and their replies. The category link
// carries catId in its query, the thread link ends in the thread id, and
// the view link ends in the post id.
func forumTarget(src model.SourceRef, frag *html.Node, contentType string, actor model.Account, body string) (model.Target, error) {
	categoryClass := "action-category__post"
	if contentType == "post-reply" {
		categoryClass = "action-post-reply-category__post-reply"
	}
	catNode, err := findTracking(frag, categoryClass)
	if err != nil {
		return nil, err
	}
	catID, err := queryID(attrVal(catNode, "href"), "catId")
	if err != nil {
		return nil, err
	}
	category := &model.ForumCategory{ID: catID, Title: nodeText(catNode), Source: src}

	threadNode, err := findTracking(frag, "action-"+contentType+"__"+contentType)
	if err != nil {
		return nil, err
	}
	threadID, err := trailingID(attrVal(threadNode, "href"))
	if err != nil {
		return nil, err
	}
	thread := &model.Thread{
		ID:        threadID,
		Title:     nodeText(threadNode),
		Container: category,
		Source:    src,
	}

	viewNode, err := findTracking(frag, "action-view__"+contentType)
	if err != nil {
		return nil, err
	}
	postID, err := trailingID(attrVal(viewNode, "href"))
	if err != nil {
		return nil, err
	}
	post := &model.Post{
		ID:       postID,
		ThreadID: thread.ID,
		Text:     postText(frag, body),
		Thread:   thread,
		Source:   src,
	}

	if contentType == "post" {
		thread.FirstPost = post
		return thread, nil
	}
	return post, nil
}

// wallTarget handles message-wall threads. The view link's path names
// the wall owner and its fragment is the post id; the thread link
// carries threadId in its query.
func wallTarget(src model.SourceRef, frag *html.Node, contentType string, body string) (model.Target, error) {
	viewNode, err := findTracking(frag, "action-view__"+contentType)
	if err != nil {
		return nil, err
	}
	viewURL, err := url.Parse(attrVal(viewNode, "href"))
	if err != nil {
		return nil, fmt.Errorf("view href: %w", err)
	}
	ownerName := viewURL.Path
	if i := strings.LastIndexByte(ownerName, ':'); i >= 0 {
		ownerName = ownerName[i+1:]
	}
	owner := &model.Account{Name: wiki.NormalizeUserName(ownerName), ID: 0, Source: src}

	threadClass := "action-wall-message__message"
	if contentType == "message-reply" {
		threadClass = "action-reply-message-wall-parent__message-reply"
	}
	threadNode, err := findTracking(frag, threadClass)
	if err != nil {
		return nil, err
	}
	threadID, err := queryID(attrVal(threadNode, "href"), "threadId")
	if err != nil {
		return nil, err
	}
	thread := &model.Thread{
		ID:        threadID,
		Title:     nodeText(threadNode),
		Container: owner,
		Source:    src,
	}

	postID, err := strconv.ParseInt(viewURL.Fragment, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("post id fragment: %w", err)
	}
	post := &model.Post{
		ID:       postID,
		ThreadID: thread.ID,
		Text:     postText(frag, body),
		Thread:   thread,
		Source:   src,
	}

	if contentType == "message" {
		thread.FirstPost = post
		return thread, nil
	}
	return post, nil
}

// commentTarget handles article comments. The thread id arrives as the
// commentId query parameter of the view link; for replies the fragment
// holds the reply id.
func commentTarget(src model.SourceRef, frag *html.Node, contentType string, body string) (model.Target, error) {
	pageClass := "action-comment-article-name__comment"
	if contentType == "comment_reply" {
		pageClass = "action-reply-article-name__comment-reply"
	}
	pageNode, err := findTracking(frag, pageClass)
	if err != nil {
		return nil, err
	}
	page := &model.Page{Name: nodeText(pageNode), Source: src}

	viewNode, err := findTracking(frag, "action-view__"+contentType)
	if err != nil {
		return nil, err
	}
	viewURL, err := url.Parse(attrVal(viewNode, "href"))
	if err != nil {
		return nil, fmt.Errorf("view href: %w", err)
	}
	threadID, err := queryID(viewURL.String(), "commentId")
	if err != nil {
		return nil, err
	}
	thread := &model.Thread{ID: threadID, Container: page, Source: src}

	if contentType == "comment" {
		// The comment itself opens the thread.
		thread.Title = page.Name
		thread.FirstPost = &model.Post{
			ID:       thread.ID,
			ThreadID: thread.ID,
			Text:     postText(frag, body),
			Thread:   thread,
			Source:   src,
		}
		return thread, nil
	}

	replyID, err := strconv.ParseInt(viewURL.Fragment, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("reply id fragment: %w", err)
	}
	post := &model.Post{
		ID:       replyID,
		ThreadID: thread.ID,
		Text:     postText(frag, body),
		Thread:   thread,
		Source:   src,
	}
	return post, nil
}

// postText prefers the paired raw-post body; the <em> snippet inside
// the fragment is the truncated fallback.
func postText(frag *html.Node, body string) string {
	if body != "" {
		return body
	}
	if em := findElement(frag, "em"); em != nil {
		return nodeText(em)
	}
	return ""
}

// PostBodies extracts the ordered message texts from the raw-post feed.
// Plain bodies are used as-is; structured-document bodies are flattened
// to their text nodes.
func PostBodies(raw *wiki.RawPosts) []string {
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw.Embedded.Posts))
	for _, p := range raw.Embedded.Posts {
		if p.RawContent != "" {
			out = append(out, p.RawContent)
			continue
		}
		out = append(out, docText(p.JSONModel))
	}
	return out
}

type docNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []docNode `json:"content"`
}

func docText(jsonModel string) string {
	if jsonModel == "" {
		return ""
	}
	var root docNode
	if err := json.Unmarshal([]byte(jsonModel), &root); err != nil {
		return ""
	}
	var b strings.Builder
	walkDoc(&b, root)
	return strings.TrimSpace(b.String())
}

func walkDoc(b *strings.Builder, n docNode) {
	if len(n.Content) == 0 {
		if n.Type == "text" {
			b.WriteString(n.Text)
		}
		return
	}
	for _, c := range n.Content {
		walkDoc(b, c)
	}
}

// ---- HTML fragment helpers ----

var errMarkerMissing = errors.New("tracking marker not found")

// trackingText returns the text content of the node carrying the given
// data-tracking marker.
func trackingText(n *html.Node, value string) (string, error) {
	node, err := findTracking(n, value)
	if err != nil {
		return "", err
	}
	return nodeText(node), nil
}

func findTracking(n *html.Node, value string) (*html.Node, error) {
	found := findNode(n, func(node *html.Node) bool {
		return attrVal(node, "data-tracking") == value
	})
	if found == nil {
		return nil, fmt.Errorf("%w: %s", errMarkerMissing, value)
	}
	return found, nil
}

func findElement(n *html.Node, tag string) *html.Node {
	return findNode(n, func(node *html.Node) bool { return node.Data == tag })
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// queryID pulls a numeric query parameter out of a link.
func queryID(rawURL, param string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("%s url: %w", param, err)
	}
	v := u.Query().Get(param)
	if v == "" {
		return 0, fmt.Errorf("missing query param %s", param)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query param %s: %w", param, err)
	}
	return id, nil
}

// trailingID pulls the numeric last path segment out of a link.
func trailingID(rawURL string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("link url: %w", err)
	}
	path := strings.TrimRight(u.Path, "/")
	seg := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		seg = path[i+1:]
	}
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("trailing id %q: %w", seg, err)
	}
	return id, nil
}
