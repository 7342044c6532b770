package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// AppCount is one app's selection count on a device.
type AppCount struct {
	AppID uuid.UUID
	Count int
}

// SelectionLedger counts, per device, how many times each app was locked. Every mutation
// is written through to the store before it becomes visible.
type SelectionLedger struct {
	store BlobStore
	codec AppIDCodec

	mu     sync.RWMutex
	counts map[string]map[uuid.UUID]int
}

// NewSelectionLedger loads the persisted counts. Entries whose app id does not parse, or
// whose count is not a non-negative integer, are dropped and logged; the rest load.
func NewSelectionLedger(ctx context.Context, store BlobStore) (*SelectionLedger, error) {
	l := &SelectionLedger{store: store, counts: make(map[string]map[uuid.UUID]int)}
	raw, err := store.Load(ctx, KeySelectionCounts)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return l, nil
	}
	var persisted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &persisted); err != nil {
		log.Printf("ledger: selection counts unreadable, starting empty: %v", err)
		return l, nil
	}
	for deviceKey, rawApps := range persisted {
		var apps map[string]json.RawMessage
		if err := json.Unmarshal(rawApps, &apps); err != nil {
			log.Printf("ledger: dropping selection counts of %s: %v", deviceKey, err)
			continue
		}
		for idStr, rawN := range apps {
			var n int
			id, err := l.codec.Decode(idStr)
			if err == nil {
				err = json.Unmarshal(rawN, &n)
			}
			if err != nil || n < 0 {
				log.Printf("ledger: dropping selection entry %s/%q", deviceKey, idStr)
				continue
			}
			if l.counts[deviceKey] == nil {
				l.counts[deviceKey] = make(map[uuid.UUID]int)
			}
			l.counts[deviceKey][id] = n
		}
	}
	return l, nil
}

// IncrementCount adds one to (deviceKey, appID) and returns the new count.
func (l *SelectionLedger) IncrementCount(ctx context.Context, deviceKey string, appID uuid.UUID) (int, error) {
	if deviceKey == "" || appID == uuid.Nil {
		return 0, fmt.Errorf("ledger: device key and app id are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next := cloneCounts(l.counts)
	if next[deviceKey] == nil {
		next[deviceKey] = make(map[uuid.UUID]int)
	}
	next[deviceKey][appID]++
	if err := l.persist(ctx, next); err != nil {
		return l.counts[deviceKey][appID], err
	}
	l.counts = next
	return next[deviceKey][appID], nil
}

// GetCount returns the count for (deviceKey, appID), 0 when never selected.
func (l *SelectionLedger) GetCount(deviceKey string, appID uuid.UUID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[deviceKey][appID]
}

// GetAllCounts returns a copy of the device's counts.
func (l *SelectionLedger) GetAllCounts(deviceKey string) map[uuid.UUID]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[uuid.UUID]int, len(l.counts[deviceKey]))
	for id, n := range l.counts[deviceKey] {
		out[id] = n
	}
	return out
}

// ResetCounts removes every count of the device.
func (l *SelectionLedger) ResetCounts(ctx context.Context, deviceKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.counts[deviceKey]; !ok {
		return nil
	}
	next := cloneCounts(l.counts)
	delete(next, deviceKey)
	if err := l.persist(ctx, next); err != nil {
		return err
	}
	l.counts = next
	return nil
}

// TotalCount sums all counts across devices.
func (l *SelectionLedger) TotalCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, apps := range l.counts {
		for _, n := range apps {
			total += n
		}
	}
	return total
}

// DeviceTotal sums the counts of one device.
func (l *SelectionLedger) DeviceTotal(deviceKey string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, n := range l.counts[deviceKey] {
		total += n
	}
	return total
}

// AppTotal sums one app's counts across devices.
func (l *SelectionLedger) AppTotal(appID uuid.UUID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, apps := range l.counts {
		total += apps[appID]
	}
	return total
}

// TopApps returns up to n apps of the device ordered by count (descending), ties by id.
// n <= 0 returns all.
func (l *SelectionLedger) TopApps(deviceKey string, n int) []AppCount {
	l.mu.RLock()
	out := make([]AppCount, 0, len(l.counts[deviceKey]))
	for id, c := range l.counts[deviceKey] {
		out = append(out, AppCount{AppID: id, Count: c})
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].AppID.String() < out[j].AppID.String()
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (l *SelectionLedger) persist(ctx context.Context, counts map[string]map[uuid.UUID]int) error {
	flat := make(map[string]map[string]int, len(counts))
	for deviceKey, apps := range counts {
		m := make(map[string]int, len(apps))
		for id, n := range apps {
			m[l.codec.Encode(id)] = n
		}
		flat[deviceKey] = m
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return err
	}
	return l.store.Save(ctx, KeySelectionCounts, raw)
}

func cloneCounts(in map[string]map[uuid.UUID]int) map[string]map[uuid.UUID]int {
	out := make(map[string]map[uuid.UUID]int, len(in))
	for k, apps := range in {
		m := make(map[uuid.UUID]int, len(apps))
		for id, n := range apps {
			m[id] = n
		}
		out[k] = m
	}
	return out
}
