// Package resolve back-fills numeric account ids the normalizers could
// not recover from their feeds.
package resolve

import (
	"context"

	"wikiwatch/internal/model"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

// Lookup is the single batched user-id capability of a source.
type Lookup interface {
	LookupUserIDs(ctx context.Context, names []string) (map[string]int64, error)
}

// Accounts resolves every unresolved (id == 0) account reachable from the
// cycle's events with one batched lookup: actors, account targets and
// wall owners. Running it again on resolved events is a no-op. Names the
// lookup does not return stay at the sentinel.
func Accounts(ctx context.Context, src Lookup, events []model.Event, log logx.Logger) error {
	var pending []*model.Account
	for i := range events {
		if events[i].Actor.ID == 0 && events[i].Actor.Name != "" {
			pending = append(pending, &events[i].Actor)
		}
		switch target := events[i].Target.(type) {
		case *model.Account:
			if target.ID == 0 && target.Name != "" {
				pending = append(pending, target)
			}
		case *model.Thread:
			if owner, ok := target.Container.(*model.Account); ok && owner.ID == 0 && owner.Name != "" {
				pending = append(pending, owner)
			}
		case *model.Post:
			if target.Thread != nil {
				if owner, ok := target.Thread.Container.(*model.Account); ok && owner.ID == 0 && owner.Name != "" {
					pending = append(pending, owner)
				}
			}
		}
	}
	if len(pending) == 0 {
		return nil
	}

	seen := map[string]bool{}
	names := make([]string, 0, len(pending))
	for _, acct := range pending {
		key := wiki.NormalizeUserName(acct.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, key)
	}

	ids, err := src.LookupUserIDs(ctx, names)
	if err != nil {
		return err
	}

	filled := 0
	for _, acct := range pending {
		if id, ok := ids[wiki.NormalizeUserName(acct.Name)]; ok {
			acct.ID = id
			filled++
		}
	}
	log.Debug("resolved account ids",
		logx.Int("requested", len(names)), logx.Int("filled", filled))
	return nil
}
