package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wikiwatch/internal/model"
	logx "wikiwatch/pkg/logx"
)

const (
	// mwTimestamp is the ISO form the action API accepts and emits.
	mwTimestamp = "2006-01-02T15:04:05Z"

	defaultFetchMax = 50

	rcProps = "title|ids|sizes|user|userid|comment|timestamp"
	leProps = "ids|title|type|user|userid|comment|timestamp|details"
)

// Source is one monitored site. It owns the mutable cursor for the site
// and exposes the three independent fetch capabilities plus the batched
// user-id lookup.
//
// A Source is driven by exactly one cycle at a time; the relay never
// starts a new cycle for a source before the previous one committed.
type Source struct {
	ID      int64
	BaseURL string
	Cursor  time.Time

	FetchMax int

	client *Client
	log    logx.Logger
}

func NewSource(id int64, baseURL string, cursor time.Time, client *Client, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{
		ID:       id,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Cursor:   cursor,
		FetchMax: defaultFetchMax,
		client:   client,
		log:      log.With(logx.Int64("source", id)),
	}
}

// Ref returns the immutable reference targets carry instead of a live
// back-pointer.
func (s *Source) Ref() model.SourceRef {
	return model.SourceRef{ID: s.ID, BaseURL: s.BaseURL}
}

// FetchWindow captures the exclusive upper bound of this cycle BEFORE any
// network call goes out, so events created while requests are in flight
// fall into the next window instead of being silently dropped.
//
// On a fresh source (zero cursor) the window is empty: the bootstrap
// cycle establishes the cursor without replaying site history.
func (s *Source) FetchWindow() (since, until time.Time) {
	until = s.client.Now()
	since = s.Cursor
	if since.IsZero() {
		since = until
	}
	return since, until
}

func (s *Source) api(ctx context.Context, params url.Values, out any) error {
	return s.client.GetJSON(ctx, s.BaseURL+"/api.php", params, out)
}

func (s *Source) nirvana(ctx context.Context, controller, method string, params url.Values, out any) error {
	params.Set("controller", controller)
	params.Set("method", method)
	params.Set("format", "json")
	return s.client.GetJSON(ctx, s.BaseURL+"/wikia.php", params, out)
}

// FetchChanges retrieves edits and log actions inside [since, until).
func (s *Source) FetchChanges(ctx context.Context, since, until time.Time) (*RawChanges, error) {
	limit := strconv.Itoa(s.fetchMax())
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "recentchanges|logevents")
	params.Set("format", "json")
	params.Set("rclimit", limit)
	params.Set("lelimit", limit)
	params.Set("rcprop", rcProps)
	params.Set("leprop", leProps)
	// The API iterates newest-first: "start" is the newer bound, "end"
	// the older one.
	params.Set("rcstart", until.UTC().Format(mwTimestamp))
	params.Set("lestart", until.UTC().Format(mwTimestamp))
	params.Set("rcend", since.UTC().Format(mwTimestamp))
	params.Set("leend", since.UTC().Format(mwTimestamp))

	var out RawChanges
	if err := s.api(ctx, params, &out); err != nil {
		return nil, fmt.Errorf("fetch changes: %w", err)
	}
	return &out, nil
}

// FetchActivity retrieves the day-bucketed social activity feed with
// entries newer than since.
func (s *Source) FetchActivity(ctx context.Context, since time.Time) (RawActivity, error) {
	params := url.Values{}
	params.Set("uselang", "en")
	params.Set("lastUpdateTime", strconv.FormatInt(since.Unix(), 10))

	var out RawActivity
	if err := s.nirvana(ctx, "ActivityApiController", "getSocialActivity", params, &out); err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	return out, nil
}

// FetchRecentPosts retrieves the ordered raw-post-body feed. It takes no
// window parameters; the activity normalizer consumes bodies in order.
func (s *Source) FetchRecentPosts(ctx context.Context) (*RawPosts, error) {
	var out RawPosts
	if err := s.nirvana(ctx, "DiscussionPost", "getPosts", url.Values{}, &out); err != nil {
		return nil, fmt.Errorf("fetch recent posts: %w", err)
	}
	return &out, nil
}

// LookupUserIDs resolves usernames to numeric ids with a single batched
// request. Names absent from the result are simply missing from the map.
func (s *Source) LookupUserIDs(ctx context.Context, names []string) (map[string]int64, error) {
	if len(names) == 0 {
		return map[string]int64{}, nil
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "users")
	params.Set("format", "json")
	params.Set("ususers", strings.Join(names, "|"))

	var out struct {
		Query struct {
			Users []struct {
				ID   int64  `json:"userid"`
				Name string `json:"name"`
			} `json:"users"`
		} `json:"query"`
	}
	if err := s.api(ctx, params, &out); err != nil {
		return nil, fmt.Errorf("lookup user ids: %w", err)
	}

	ids := make(map[string]int64, len(out.Query.Users))
	for _, u := range out.Query.Users {
		if u.ID != 0 {
			ids[NormalizeUserName(u.Name)] = u.ID
		}
	}
	return ids, nil
}

func (s *Source) fetchMax() int {
	if s.FetchMax <= 0 {
		return defaultFetchMax
	}
	return s.FetchMax
}

// NormalizeUserName canonicalizes a username for map keying: underscores
// become spaces and surrounding whitespace is dropped.
func NormalizeUserName(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
}
