package identity

import "github.com/dukerupert/basket/internal/model"

// MergeResult is the outcome of merging local and remote collections.
type MergeResult struct {
	Lists []model.ShoppingList
	// Create holds local-only lists the remote side has never seen.
	Create []string
	// Update holds lists whose local version won over the remote one.
	Update []string
}

// Merge combines local and remote lists. Lists are matched on id or remote
// id. A local list wins only when its updatedAt is strictly newer. Local
// lists without a remote id are kept; local lists whose remote counterpart
// has disappeared are dropped. Remote-only lists are appended.
func Merge(local, remote []model.ShoppingList) MergeResult {
	byID := make(map[string]int, len(remote))
	byRemoteID := make(map[string]int, len(remote))
	for i, r := range remote {
		byID[r.ID] = i
		if r.RemoteID != "" {
			byRemoteID[r.RemoteID] = i
		}
	}

	matched := make([]bool, len(remote))
	var res MergeResult
	for _, l := range local {
		ri, ok := byID[l.ID]
		if !ok && l.RemoteID != "" {
			ri, ok = byRemoteID[l.RemoteID]
		}
		if !ok {
			if l.RemoteID == "" {
				res.Lists = append(res.Lists, l.Clone())
				res.Create = append(res.Create, l.ID)
			}
			continue
		}
		if matched[ri] {
			continue
		}
		matched[ri] = true

		r := remote[ri]
		if l.UpdatedAt > r.UpdatedAt {
			winner := l.Clone()
			if winner.RemoteID == "" {
				winner.RemoteID = r.RemoteID
			}
			res.Lists = append(res.Lists, winner)
			res.Update = append(res.Update, winner.ID)
			continue
		}
		winner := r.Clone()
		winner.ID = l.ID
		res.Lists = append(res.Lists, winner)
	}

	for i, r := range remote {
		if !matched[i] {
			res.Lists = append(res.Lists, r.Clone())
		}
	}
	if res.Lists == nil {
		res.Lists = []model.ShoppingList{}
	}
	return res
}

// Union overlays extra onto base by id, keeping the newer copy of lists
// present in both.
func Union(base, extra []model.ShoppingList) []model.ShoppingList {
	out := model.CloneLists(base)
	if out == nil {
		out = []model.ShoppingList{}
	}
	index := make(map[string]int, len(out))
	for i, l := range out {
		index[l.ID] = i
	}
	for _, l := range extra {
		if i, ok := index[l.ID]; ok {
			if l.UpdatedAt > out[i].UpdatedAt {
				out[i] = l.Clone()
			}
			continue
		}
		index[l.ID] = len(out)
		out = append(out, l.Clone())
	}
	return out
}
