package normalize

import (
	"testing"
	"time"

	"wikiwatch/internal/model"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

const postLabel = `<div>` +
	`<a data-tracking="action-username__post" href="/wiki/User:Bob">Bob</a> posted ` +
	`<a data-tracking="action-post__post" href="https://example.fandom.com/f/p/123">Cool thread</a> in ` +
	`<a data-tracking="action-category__post" href="https://example.fandom.com/f?catId=9">General</a> ` +
	`<a data-tracking="action-view__post" href="https://example.fandom.com/f/p/123/r/456">View</a> ` +
	`<em>snippet text</em></div>`

const replyLabel = `<div>` +
	`<a data-tracking="action-username__post-reply" href="/wiki/User:Eve">Eve</a> replied to ` +
	`<a data-tracking="action-post-reply__post-reply" href="https://example.fandom.com/f/p/123">Cool thread</a> in ` +
	`<a data-tracking="action-post-reply-category__post-reply" href="https://example.fandom.com/f?catId=9">General</a> ` +
	`<a data-tracking="action-view__post-reply" href="https://example.fandom.com/f/p/123/r/457">View</a> ` +
	`<em>reply snippet</em></div>`

const wallLabel = `<div>` +
	`<a data-tracking="action-username__message" href="/wiki/User:Bob">Bob</a> left ` +
	`<a data-tracking="action-wall-message__message" href="https://example.fandom.com/wiki/Message_Wall:Alice?threadId=777">Hello there</a> ` +
	`<a data-tracking="action-view__message" href="https://example.fandom.com/wiki/Message_Wall:Alice?threadId=777#888">View</a> ` +
	`<em>wall snippet</em></div>`

const commentReplyLabel = `<div>` +
	`<a data-tracking="action-username__comment_reply" href="/wiki/User:Eve">Eve</a> replied to a comment on ` +
	`<a data-tracking="action-reply-article-name__comment-reply" href="/wiki/Some_Article">Some Article</a> ` +
	`<a data-tracking="action-view__comment_reply" href="https://example.fandom.com/wiki/Some_Article?commentId=555#666">View</a> ` +
	`<em>comment reply snippet</em></div>`

func day(date string, entries ...wiki.ActivityEntry) wiki.ActivityDay {
	return wiki.ActivityDay{Date: date, Actions: entries}
}

func TestForumPostPairsWithBody(t *testing.T) {
	days := wiki.RawActivity{day("2 January 2024",
		wiki.ActivityEntry{Time: "13:45", ActionType: "create", ContentType: "post", Label: postLabel},
	)}

	events := Activity(testSrc, days, []string{"full body text"}, time.UTC, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Category != model.CategoryPost || ev.Action != model.ActionCreatePost {
		t.Fatalf("category/action: %v/%v", ev.Category, ev.Action)
	}
	if ev.Actor.Name != "Bob" || ev.Actor.ID != 0 {
		t.Fatalf("actor: %+v", ev.Actor)
	}
	if want := time.Date(2024, 1, 2, 13, 45, 0, 0, time.UTC); !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp: got %v want %v", ev.Timestamp, want)
	}

	thread, ok := ev.Target.(*model.Thread)
	if !ok {
		t.Fatalf("target: %T", ev.Target)
	}
	if thread.ID != 123 || thread.Title != "Cool thread" {
		t.Fatalf("thread: %+v", thread)
	}
	cat, ok := thread.Container.(*model.ForumCategory)
	if !ok || cat.ID != 9 || cat.Title != "General" {
		t.Fatalf("category: %#v", thread.Container)
	}
	if thread.FirstPost == nil || thread.FirstPost.Text != "full body text" {
		t.Fatalf("first post: %+v", thread.FirstPost)
	}
}

func TestReplyTargetsPostAndUsesBodyOrder(t *testing.T) {
	days := wiki.RawActivity{day("2 January 2024",
		wiki.ActivityEntry{Time: "10:00", ActionType: "create", ContentType: "post", Label: postLabel},
		wiki.ActivityEntry{Time: "10:05", ActionType: "create", ContentType: "post-reply", Label: replyLabel},
	)}

	events := Activity(testSrc, days, []string{"first body", "second body"}, time.UTC, logx.Nop())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Action != model.ActionCreateReply {
		t.Fatalf("reply action: %v", events[1].Action)
	}
	post, ok := events[1].Target.(*model.Post)
	if !ok {
		t.Fatalf("reply target: %T", events[1].Target)
	}
	if post.ID != 457 || post.ThreadID != 123 {
		t.Fatalf("post ids: %+v", post)
	}
	if post.Text != "second body" {
		t.Fatalf("body pairing broken: %q", post.Text)
	}
}

func TestEditsDoNotConsumePostBodies(t *testing.T) {
	days := wiki.RawActivity{day("2 January 2024",
		wiki.ActivityEntry{Time: "10:00", ActionType: "update", ContentType: "post", Label: postLabel},
		wiki.ActivityEntry{Time: "10:05", ActionType: "create", ContentType: "post", Label: postLabel},
	)}

	events := Activity(testSrc, days, []string{"the only body"}, time.UTC, logx.Nop())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Action != model.ActionEditPost {
		t.Fatalf("first action: %v", events[0].Action)
	}
	// The edit fell back to the snippet; the creation got the body.
	if got := events[1].Target.(*model.Thread); got.ID != 123 {
		t.Fatalf("created thread: %+v", got)
	}
}

func TestMalformedEntryRemovesAtMostOneEvent(t *testing.T) {
	days := wiki.RawActivity{day("2 January 2024",
		wiki.ActivityEntry{Time: "10:00", ActionType: "create", ContentType: "post", Label: postLabel},
		wiki.ActivityEntry{Time: "10:01", ActionType: "create", ContentType: "post", Label: "<div>no markers at all</div>"},
		wiki.ActivityEntry{Time: "10:02", ActionType: "create", ContentType: "post-reply", Label: replyLabel},
	)}

	events := Activity(testSrc, days, nil, time.UTC, logx.Nop())
	if len(events) != 2 {
		t.Fatalf("one bad entry must remove at most one event: got %d of 3", len(events))
	}
}

func TestActorComesFromUsernameMarker(t *testing.T) {
	days := wiki.RawActivity{day("2 January 2024",
		wiki.ActivityEntry{Time: "10:00", ActionType: "create", ContentType: "post", Label: postLabel},
	)}
	events := Activity(testSrc, days, nil, time.UTC, logx.Nop())
	if len(events) != 1 || events[0].Actor.Name != "Bob" {
		t.Fatalf("events: %+v", events)
	}

	// An entry whose label lacks the username marker is skipped, not fatal.
	noActor := `<div>` +
		`<a data-tracking="action-post__post" href="https://example.fandom.com/f/p/123">Cool thread</a>` +
		`</div>`
	days = wiki.RawActivity{day("2 January 2024",
		wiki.ActivityEntry{Time: "10:00", ActionType: "create", ContentType: "post", Label: noActor},
	)}
	if events := Activity(testSrc, days, nil, time.UTC, logx.Nop()); len(events) != 0 {
		t.Fatalf("entry without a username marker produced %d events", len(events))
	}
}

func TestSkippedBucketStillConsumesCreateBodies(t *testing.T) {
	days := wiki.RawActivity{
		day("Somederday 2024",
			wiki.ActivityEntry{Time: "09:00", ActionType: "create", ContentType: "post", Label: postLabel},
			wiki.ActivityEntry{Time: "09:05", ActionType: "update", ContentType: "post", Label: postLabel},
		),
		day("3 January 2024",
			wiki.ActivityEntry{Time: "10:00", ActionType: "create", ContentType: "post", Label: postLabel},
		),
	}

	events := Activity(testSrc, days, []string{"lost body", "surviving body"}, time.UTC, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event from the valid bucket, got %d", len(events))
	}
	thread := events[0].Target.(*model.Thread)
	if thread.FirstPost == nil || thread.FirstPost.Text != "surviving body" {
		t.Fatalf("body pairing shifted after a skipped bucket: %+v", thread.FirstPost)
	}
}

func TestWallMessage(t *testing.T) {
	days := wiki.RawActivity{day("15 March 2024",
		wiki.ActivityEntry{Time: "09:30", ActionType: "create", ContentType: "message", Label: wallLabel},
	)}

	events := Activity(testSrc, days, nil, time.UTC, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	thread, ok := events[0].Target.(*model.Thread)
	if !ok || thread.ID != 777 {
		t.Fatalf("target: %#v", events[0].Target)
	}
	owner, ok := thread.Container.(*model.Account)
	if !ok || owner.Name != "Alice" {
		t.Fatalf("wall owner: %#v", thread.Container)
	}
}

func TestCommentReply(t *testing.T) {
	days := wiki.RawActivity{day("15 March 2024",
		wiki.ActivityEntry{Time: "09:30", ActionType: "create", ContentType: "comment_reply", Label: commentReplyLabel},
	)}

	events := Activity(testSrc, days, []string{"reply body"}, time.UTC, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	post, ok := events[0].Target.(*model.Post)
	if !ok || post.ID != 666 || post.ThreadID != 555 {
		t.Fatalf("target: %#v", events[0].Target)
	}
	if post.Text != "reply body" {
		t.Fatalf("text: %q", post.Text)
	}
	page, ok := post.Thread.Container.(*model.Page)
	if !ok || page.Name != "Some Article" {
		t.Fatalf("article: %#v", post.Thread.Container)
	}
}

func TestActivityTimezonePolicy(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	days := wiki.RawActivity{day("2 January 2024",
		wiki.ActivityEntry{Time: "13:45", ActionType: "create", ContentType: "post", Label: postLabel},
	)}

	events := Activity(testSrc, days, nil, loc, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	want := time.Date(2024, 1, 2, 13, 45, 0, 0, loc)
	if !events[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp: got %v want %v", events[0].Timestamp, want)
	}
}

func TestPostBodies(t *testing.T) {
	raw := &wiki.RawPosts{}
	raw.Embedded.Posts = []wiki.RawPost{
		{RawContent: "plain body"},
		{JSONModel: `{"type":"doc","content":[{"type":"paragraph","content":[` +
			`{"type":"text","text":"structured "},{"type":"text","text":"body"}]}]}`},
		{},
	}
	got := PostBodies(raw)
	if len(got) != 3 {
		t.Fatalf("len: %d", len(got))
	}
	if got[0] != "plain body" || got[1] != "structured body" || got[2] != "" {
		t.Fatalf("bodies: %q", got)
	}
}
