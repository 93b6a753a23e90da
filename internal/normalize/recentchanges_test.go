package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"wikiwatch/internal/model"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

var testSrc = model.SourceRef{ID: 1, BaseURL: "https://example.fandom.com"}

func decodeChanges(t *testing.T, payload string) *wiki.RawChanges {
	t.Helper()
	var raw wiki.RawChanges
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return &raw
}

func TestNewPageEdit(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[
		{"type":"new","pageid":7,"ns":0,"title":"Foo","user":"Bob","userid":0,
		 "revid":100,"old_revid":0,"oldlen":0,"newlen":500,"comment":"init",
		 "timestamp":"2024-01-01T00:00:00Z"}
	],"logevents":[]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Action != model.ActionCreatePage {
		t.Fatalf("action: got %v want create_page", ev.Action)
	}
	if ev.Category != model.CategoryEdit {
		t.Fatalf("category: got %v", ev.Category)
	}
	diff, ok := ev.Details.(*model.EditDiff)
	if !ok {
		t.Fatalf("details: got %T", ev.Details)
	}
	if diff.New.Size != 500 || diff.Old.Size != 0 {
		t.Fatalf("sizes: old=%d new=%d", diff.Old.Size, diff.New.Size)
	}
	if diff.New.ID != 100 {
		t.Fatalf("new revid: got %d", diff.New.ID)
	}
	if !ev.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp: got %v", ev.Timestamp)
	}
	page, ok := ev.Target.(*model.Page)
	if !ok || page.ID != 7 || page.Name != "Foo" {
		t.Fatalf("target: got %#v", ev.Target)
	}
}

func TestRevisionEdit(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[
		{"type":"edit","pageid":7,"ns":0,"title":"Foo","user":"Bob","userid":5,
		 "revid":101,"old_revid":100,"oldlen":500,"newlen":450,"comment":"",
		 "timestamp":"2024-01-01T01:00:00Z"}
	],"logevents":[]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	if len(events) != 1 || events[0].Action != model.ActionEditPage {
		t.Fatalf("expected one edit_page event, got %+v", events)
	}
	if delta := events[0].Details.(*model.EditDiff).Delta(); delta != -50 {
		t.Fatalf("delta: got %d want -50", delta)
	}
}

func TestRightsDiff(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[],"logevents":[
		{"type":"rights","action":"rights","title":"User:Bob","pageid":0,"ns":2,
		 "user":"Admin","userid":1,"comment":"","timestamp":"2024-05-01T00:00:00Z",
		 "params":{
			"oldmetadata":[{"group":"user","expiry":"infinity"}],
			"newmetadata":[{"group":"user","expiry":"infinity"},
			               {"group":"sysop","expiry":"2024-06-01T00:00:00Z"}]}}
	]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Action != model.ActionChangeUserRights {
		t.Fatalf("action: got %v", ev.Action)
	}
	diff := ev.Details.(*model.RightsDiff)

	added := diff.Added()
	if len(added) != 1 || added[0].Name != "sysop" {
		t.Fatalf("added: got %+v", added)
	}
	if want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC); !added[0].Expiry.Equal(want) {
		t.Fatalf("sysop expiry: got %v", added[0].Expiry)
	}
	if removed := diff.Removed(); len(removed) != 0 {
		t.Fatalf("user group present in both sides must not be reported: %+v", removed)
	}
	acct := ev.Target.(*model.Account)
	if acct.Name != "Bob" || acct.ID != 0 {
		t.Fatalf("target account: %+v", acct)
	}
}

func TestRenameWithSuppressedRedirect(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[],"logevents":[
		{"type":"move","action":"move","title":"Old name","pageid":3,"ns":0,
		 "user":"Bob","userid":5,"comment":"","timestamp":"2024-05-01T00:00:00Z",
		 "params":{"target_title":"New name","target_ns":0,"suppressredirect":""}}
	]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ren := events[0].Details.(*model.RenameDetails)
	if !ren.SuppressRedirect {
		t.Fatal("suppressredirect flag lost")
	}
	if ren.Old.Name != "Old name" || ren.New.Name != "New name" {
		t.Fatalf("rename diff: %+v", ren)
	}
}

func TestBlockFlagsAndInfiniteExpiry(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[],"logevents":[
		{"type":"block","action":"block","title":"User:Vandal","ns":2,
		 "user":"Admin","userid":1,"comment":"","timestamp":"2024-05-01T00:00:00Z",
		 "params":{"expiry":"infinite","flags":["noautoblock","nocreate"]}}
	]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	bd := events[0].Details.(*model.BlockDetails)
	if !bd.Expiry.IsZero() {
		t.Fatalf("infinite expiry must map to zero time, got %v", bd.Expiry)
	}
	if !bd.AutoblockDisabled || !bd.CannotCreateAccount || bd.CannotEditTalkpage {
		t.Fatalf("flags: %+v", bd)
	}
}

func TestUnblockHasNoDetails(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[],"logevents":[
		{"type":"block","action":"unblock","title":"User:Vandal","ns":2,
		 "user":"Admin","userid":1,"comment":"","timestamp":"2024-05-01T00:00:00Z","params":{}}
	]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	if len(events) != 1 || events[0].Action != model.ActionUnblockUser {
		t.Fatalf("events: %+v", events)
	}
	if events[0].Details != nil {
		t.Fatalf("unblock should carry no details, got %T", events[0].Details)
	}
}

func TestProtectionEntries(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[],"logevents":[
		{"type":"protect","action":"protect","title":"Foo","pageid":7,"ns":0,
		 "user":"Admin","userid":1,"comment":"","timestamp":"2024-05-01T00:00:00Z",
		 "params":{"cascade":"","details":[
			{"type":"edit","level":"sysop","expiry":"infinite"},
			{"type":"move","level":"autoconfirmed","expiry":"2024-08-01T00:00:00Z"}]}}
	]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	pd := events[0].Details.(*model.ProtectionDetails)
	if !pd.Cascade {
		t.Fatal("cascade flag lost")
	}
	if len(pd.Entries) != 2 {
		t.Fatalf("entries: %+v", pd.Entries)
	}
	if !pd.Entries[0].Expiry.IsZero() {
		t.Fatalf("edit protection expiry should be zero, got %v", pd.Entries[0].Expiry)
	}
	if pd.Entries[1].Level != "autoconfirmed" || pd.Entries[1].Expiry.IsZero() {
		t.Fatalf("move protection: %+v", pd.Entries[1])
	}
}

func TestUploadVariants(t *testing.T) {
	cases := []struct {
		action string
		want   model.Action
	}{
		{"upload", model.ActionUploadFile},
		{"overwrite", model.ActionReuploadFile},
		{"revert", model.ActionRevertFile},
	}
	for _, tc := range cases {
		raw := decodeChanges(t, `{"query":{"recentchanges":[],"logevents":[
			{"type":"upload","action":"`+tc.action+`","title":"File:Pic.png","pageid":9,"ns":6,
			 "user":"Bob","userid":5,"comment":"","timestamp":"2024-05-01T00:00:00Z","params":{}}
		]}}`)
		events := Changes(testSrc, raw, logx.Nop())
		if len(events) != 1 || events[0].Action != tc.want {
			t.Fatalf("%s: %+v", tc.action, events)
		}
		if _, ok := events[0].Target.(*model.File); !ok {
			t.Fatalf("%s: target is %T", tc.action, events[0].Target)
		}
	}
}

func TestUnknownLogTypeIsSkippedNotFatal(t *testing.T) {
	raw := decodeChanges(t, `{"query":{"recentchanges":[],"logevents":[
		{"type":"newusers","action":"create","title":"User:Fresh","ns":2,
		 "user":"Fresh","userid":9,"comment":"","timestamp":"2024-05-01T00:00:00Z","params":{}},
		{"type":"delete","action":"delete","title":"Foo","pageid":7,"ns":0,
		 "user":"Admin","userid":1,"comment":"","timestamp":"2024-05-01T00:01:00Z","params":{}}
	]}}`)

	events := Changes(testSrc, raw, logx.Nop())
	if len(events) != 1 {
		t.Fatalf("unknown type must be skipped, the rest processed; got %d events", len(events))
	}
	if events[0].Action != model.ActionDeletePage {
		t.Fatalf("surviving event: %+v", events[0])
	}
}
