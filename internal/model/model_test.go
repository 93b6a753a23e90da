package model

import (
	"testing"
	"time"
)

var src = SourceRef{ID: 1, BaseURL: "https://example.fandom.com"}

func TestPageURL(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Main Page", "https://example.fandom.com/wiki/Main_Page"},
		{"C++ (language)", "https://example.fandom.com/wiki/C++_%28language%29"},
		{"Talk:Main Page", "https://example.fandom.com/wiki/Talk:Main_Page"},
	}
	for _, tc := range cases {
		if got := src.PageURL(tc.title); got != tc.want {
			t.Fatalf("PageURL(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestThreadURL(t *testing.T) {
	if got := src.ThreadURL(42, 0); got != "https://example.fandom.com/f/p/42" {
		t.Fatalf("thread url = %q", got)
	}
	if got := src.ThreadURL(42, 7); got != "https://example.fandom.com/f/p/42/r/7" {
		t.Fatalf("reply url = %q", got)
	}
}

func TestFileURLStripsNamespace(t *testing.T) {
	f := &File{Page: Page{Name: "File:Map of the world.png", Source: src}}
	want := "https://example.fandom.com/wiki/Special:Redirect/file/Map_of_the_world.png"
	if got := f.URL(); got != want {
		t.Fatalf("file url = %q, want %q", got, want)
	}
	if got := f.PageURL(); got != src.PageURL("File:Map of the world.png") {
		t.Fatalf("file page url = %q", got)
	}
}

func TestAccountURLAndAvatar(t *testing.T) {
	a := &Account{Name: "Alice Example", ID: 42, Source: src}
	if got := a.URL(); got != "https://example.fandom.com/wiki/User:Alice_Example" {
		t.Fatalf("account url = %q", got)
	}
	if got := a.AvatarURL(); got != "https://services.fandom.com/user-avatar/user/42/avatar" {
		t.Fatalf("avatar url = %q", got)
	}
	if !a.Resolved() {
		t.Fatalf("id 42 should be resolved")
	}
	if (&Account{Name: "Bob"}).Resolved() {
		t.Fatalf("id 0 must be the unresolved sentinel")
	}
}

func TestSortChronologicalIsStable(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Action: ActionDeletePage, Timestamp: at.Add(time.Minute)},
		{Action: ActionCreatePage, Timestamp: at, Summary: "first"},
		{Action: ActionEditPage, Timestamp: at, Summary: "second"},
	}
	SortChronological(events)

	if events[0].Summary != "first" || events[1].Summary != "second" {
		t.Fatalf("equal timestamps reordered: %v, %v", events[0].Action, events[1].Action)
	}
	if events[2].Action != ActionDeletePage {
		t.Fatalf("later event not last")
	}
}

func TestRightsDiff(t *testing.T) {
	expiry := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	d := &RightsDiff{
		Old: []Group{{Name: "rollback"}, {Name: "chatmod"}},
		New: []Group{{Name: "rollback"}, {Name: "sysop", Expiry: expiry}},
	}

	added := d.Added()
	if len(added) != 1 || added[0].Name != "sysop" || !added[0].Expiry.Equal(expiry) {
		t.Fatalf("added = %+v", added)
	}
	removed := d.Removed()
	if len(removed) != 1 || removed[0].Name != "chatmod" {
		t.Fatalf("removed = %+v", removed)
	}

	// Same group with a different expiry counts as a change on both sides.
	d = &RightsDiff{
		Old: []Group{{Name: "sysop"}},
		New: []Group{{Name: "sysop", Expiry: expiry}},
	}
	if len(d.Added()) != 1 || len(d.Removed()) != 1 {
		t.Fatalf("expiry change not reported: added=%v removed=%v", d.Added(), d.Removed())
	}
}

func TestEditDiff(t *testing.T) {
	d := &EditDiff{Old: PageVersion{ID: 10, Size: 100}, New: PageVersion{ID: 11, Size: 80}}
	if got := d.Delta(); got != -20 {
		t.Fatalf("delta = %d", got)
	}
	if got := d.DiffURL(src); got != "https://example.fandom.com/?diff=11" {
		t.Fatalf("diff url = %q", got)
	}
}

func TestCategoryBitmask(t *testing.T) {
	filter := CategoryEdit | CategoryPost
	if !filter.Has(CategoryEdit) || !filter.Has(CategoryPost) {
		t.Fatalf("filter missing its own bits")
	}
	if filter.Has(CategoryLog) {
		t.Fatalf("filter matched an excluded category")
	}
}

func TestThreadLabelFallbacks(t *testing.T) {
	th := &Thread{ID: 5, Source: src}
	if got := th.Label(); got != "thread 5" {
		t.Fatalf("label = %q", got)
	}
	th.Container = &ForumCategory{ID: 1, Title: "General", Source: src}
	if got := th.Label(); got != "General" {
		t.Fatalf("label = %q", got)
	}
	th.Title = "Patch notes"
	if got := th.Label(); got != "Patch notes" {
		t.Fatalf("label = %q", got)
	}
}
