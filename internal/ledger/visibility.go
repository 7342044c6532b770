package ledger

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// VisibilityLedger tracks, per device, the set of apps hidden from the picker.
type VisibilityLedger struct {
	store BlobStore
	codec AppIDCodec

	mu     sync.RWMutex
	hidden map[string]map[uuid.UUID]struct{}
}

// NewVisibilityLedger loads the persisted hidden sets, dropping ids that do not parse
// individually.
func NewVisibilityLedger(ctx context.Context, store BlobStore) (*VisibilityLedger, error) {
	l := &VisibilityLedger{store: store, hidden: make(map[string]map[uuid.UUID]struct{})}
	raw, err := store.Load(ctx, KeyHiddenApps)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return l, nil
	}
	var persisted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &persisted); err != nil {
		log.Printf("ledger: hidden apps unreadable, starting empty: %v", err)
		return l, nil
	}
	for deviceKey, rawIDs := range persisted {
		var ids []json.RawMessage
		if err := json.Unmarshal(rawIDs, &ids); err != nil {
			log.Printf("ledger: dropping hidden apps of %s: %v", deviceKey, err)
			continue
		}
		for _, rawID := range ids {
			var idStr string
			if err := json.Unmarshal(rawID, &idStr); err != nil {
				log.Printf("ledger: dropping hidden entry %s/%s", deviceKey, rawID)
				continue
			}
			id, err := l.codec.Decode(idStr)
			if err != nil {
				log.Printf("ledger: dropping hidden entry %s/%q", deviceKey, idStr)
				continue
			}
			if l.hidden[deviceKey] == nil {
				l.hidden[deviceKey] = make(map[uuid.UUID]struct{})
			}
			l.hidden[deviceKey][id] = struct{}{}
		}
	}
	return l, nil
}

// HiddenApps returns the device's hidden app ids in a stable order.
func (l *VisibilityLedger) HiddenApps(deviceKey string) []uuid.UUID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedIDs(l.hidden[deviceKey])
}

// IsHidden reports whether appID is hidden on the device.
func (l *VisibilityLedger) IsHidden(deviceKey string, appID uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.hidden[deviceKey][appID]
	return ok
}

// Hide adds appID to the device's hidden set.
func (l *VisibilityLedger) Hide(ctx context.Context, deviceKey string, appID uuid.UUID) error {
	return l.mutate(ctx, deviceKey, func(set map[uuid.UUID]struct{}) bool {
		if _, ok := set[appID]; ok {
			return false
		}
		set[appID] = struct{}{}
		return true
	})
}

// Show removes appID from the device's hidden set.
func (l *VisibilityLedger) Show(ctx context.Context, deviceKey string, appID uuid.UUID) error {
	return l.mutate(ctx, deviceKey, func(set map[uuid.UUID]struct{}) bool {
		if _, ok := set[appID]; !ok {
			return false
		}
		delete(set, appID)
		return true
	})
}

// Toggle flips appID's visibility and reports whether it is now hidden.
func (l *VisibilityLedger) Toggle(ctx context.Context, deviceKey string, appID uuid.UUID) (bool, error) {
	var hidden bool
	err := l.mutate(ctx, deviceKey, func(set map[uuid.UUID]struct{}) bool {
		if _, ok := set[appID]; ok {
			delete(set, appID)
			hidden = false
		} else {
			set[appID] = struct{}{}
			hidden = true
		}
		return true
	})
	if err != nil {
		return l.IsHidden(deviceKey, appID), err
	}
	return hidden, nil
}

// ClearAll unhides every app of the device.
func (l *VisibilityLedger) ClearAll(ctx context.Context, deviceKey string) error {
	return l.mutate(ctx, deviceKey, func(set map[uuid.UUID]struct{}) bool {
		if len(set) == 0 {
			return false
		}
		for id := range set {
			delete(set, id)
		}
		return true
	})
}

// PurgeOrphaned keeps only the hidden ids present in validIDs and returns how many were removed.
func (l *VisibilityLedger) PurgeOrphaned(ctx context.Context, deviceKey string, validIDs []uuid.UUID) (int, error) {
	valid := make(map[uuid.UUID]struct{}, len(validIDs))
	for _, id := range validIDs {
		valid[id] = struct{}{}
	}
	removed := 0
	err := l.mutate(ctx, deviceKey, func(set map[uuid.UUID]struct{}) bool {
		for id := range set {
			if _, ok := valid[id]; !ok {
				delete(set, id)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// mutate applies fn to a copy of the device's set and persists it when fn reports a change.
func (l *VisibilityLedger) mutate(ctx context.Context, deviceKey string, fn func(set map[uuid.UUID]struct{}) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := make(map[uuid.UUID]struct{}, len(l.hidden[deviceKey])+1)
	for id := range l.hidden[deviceKey] {
		set[id] = struct{}{}
	}
	if !fn(set) {
		return nil
	}
	next := make(map[string]map[uuid.UUID]struct{}, len(l.hidden)+1)
	for k, v := range l.hidden {
		next[k] = v
	}
	if len(set) == 0 {
		delete(next, deviceKey)
	} else {
		next[deviceKey] = set
	}
	if err := l.persist(ctx, next); err != nil {
		return err
	}
	l.hidden = next
	return nil
}

func (l *VisibilityLedger) persist(ctx context.Context, hidden map[string]map[uuid.UUID]struct{}) error {
	flat := make(map[string][]string, len(hidden))
	for deviceKey, set := range hidden {
		ids := sortedIDs(set)
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = l.codec.Encode(id)
		}
		flat[deviceKey] = strs
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return err
	}
	return l.store.Save(ctx, KeyHiddenApps, raw)
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
