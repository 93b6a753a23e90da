package model

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceRef identifies the origin site of an event. Targets carry it by
// value so they can build canonical URLs without a live back-pointer.
type SourceRef struct {
	ID      int64
	BaseURL string
}

// PageURL returns the canonical URL of a page on this source.
func (s SourceRef) PageURL(title string) string {
	return s.BaseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// ThreadURL returns the URL of a discussion thread, optionally pointing
// at one reply within it.
func (s SourceRef) ThreadURL(threadID, replyID int64) string {
	u := fmt.Sprintf("%s/f/p/%d", s.BaseURL, threadID)
	if replyID != 0 {
		u += fmt.Sprintf("/r/%d", replyID)
	}
	return u
}

// Target is the entity an action was performed against.
// Implementations are small per-cycle value holders; dispatch code
// type-switches over the concrete types.
type Target interface {
	// URL returns the canonical link for the target.
	URL() string
	// Label returns a short human-readable name for the target.
	Label() string

	isTarget()
}

// Account is a user on a source. ID == 0 is the valid "unresolved"
// sentinel filled in by the identity resolver before dispatch.
type Account struct {
	Name   string
	ID     int64
	Source SourceRef
}

func (a *Account) URL() string { return a.Source.PageURL("User:" + a.Name) }
func (a *Account) Label() string {
	return a.Name
}

// AvatarURL returns the avatar endpoint for the account; it is only
// meaningful once the id has been resolved.
func (a *Account) AvatarURL() string {
	return fmt.Sprintf("https://services.fandom.com/user-avatar/user/%d/avatar", a.ID)
}

func (a *Account) Resolved() bool { return a.ID != 0 }

func (*Account) isTarget() {}

// Page identifies a content page.
type Page struct {
	Name      string
	ID        int64
	Namespace int
	Source    SourceRef
}

func (p *Page) URL() string   { return p.Source.PageURL(p.Name) }
func (p *Page) Label() string { return p.Name }
func (*Page) isTarget()       {}

// File is a page in the file namespace; URL points at the media blob,
// PageURL at the description page.
type File struct {
	Page Page
}

func (f *File) URL() string {
	name := f.Page.Name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return f.Page.Source.BaseURL + "/wiki/Special:Redirect/file/" + url.PathEscape(strings.ReplaceAll(name, " ", "_"))
}
func (f *File) PageURL() string { return f.Page.URL() }
func (f *File) Label() string   { return f.Page.Name }
func (*File) isTarget()         {}

// ForumCategory groups discussion threads.
type ForumCategory struct {
	ID     int64
	Title  string
	Source SourceRef
}

func (c *ForumCategory) URL() string {
	return fmt.Sprintf("%s/f?catId=%d", c.Source.BaseURL, c.ID)
}
func (c *ForumCategory) Label() string { return c.Title }
func (*ForumCategory) isTarget()       {}

// ThreadContainer is where a thread lives: a forum category, a user's
// message wall, or an article (comments).
type ThreadContainer interface {
	URL() string
	Label() string
}

// Thread is a discussion thread (forum post, wall conversation or
// article comment chain). FirstPost carries the opening message when the
// event announced the thread itself.
type Thread struct {
	ID        int64
	Title     string
	Container ThreadContainer
	FirstPost *Post
	Source    SourceRef
}

func (t *Thread) URL() string { return t.Source.ThreadURL(t.ID, 0) }
func (t *Thread) Label() string {
	if t.Title != "" {
		return t.Title
	}
	if t.Container != nil {
		return t.Container.Label()
	}
	return fmt.Sprintf("thread %d", t.ID)
}
func (*Thread) isTarget() {}

// Post is one message inside a thread.
type Post struct {
	ID       int64
	ThreadID int64
	Text     string
	Thread   *Thread
	Source   SourceRef
}

func (p *Post) URL() string { return p.Source.ThreadURL(p.ThreadID, p.ID) }
func (p *Post) Label() string {
	if p.Thread != nil {
		return p.Thread.Label()
	}
	return fmt.Sprintf("post %d", p.ID)
}
func (*Post) isTarget() {}
