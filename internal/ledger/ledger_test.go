package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

var (
	appA = uuid.MustParse("6f1c0a52-3d4e-4b8a-9a0f-1b2c3d4e5f60")
	appB = uuid.MustParse("7a2d1b63-4e5f-4c9b-8b1a-2c3d4e5f6071")
	appC = uuid.MustParse("8b3e2c74-5f60-4dac-9c2b-3d4e5f607182")
)

// failingStore fails every Save after failAfter successful ones.
type failingStore struct {
	mu        sync.Mutex
	inner     *MemoryBlobStore
	failAfter int
	saves     int
}

func (s *failingStore) Load(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Load(ctx, key)
}

func (s *failingStore) Save(ctx context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saves >= s.failAfter {
		return errors.New("disk full")
	}
	s.saves++
	return s.inner.Save(ctx, key, blob)
}

func newSelection(t *testing.T, store BlobStore) *SelectionLedger {
	t.Helper()
	l, err := NewSelectionLedger(context.Background(), store)
	if err != nil {
		t.Fatalf("NewSelectionLedger: %v", err)
	}
	return l
}

func newVisibility(t *testing.T, store BlobStore) *VisibilityLedger {
	t.Helper()
	l, err := NewVisibilityLedger(context.Background(), store)
	if err != nil {
		t.Fatalf("NewVisibilityLedger: %v", err)
	}
	return l
}

func TestSelectionLedger_IncrementN(t *testing.T) {
	ctx := context.Background()
	l := newSelection(t, NewMemoryBlobStore())
	const n = 5
	for i := 1; i <= n; i++ {
		got, err := l.IncrementCount(ctx, "U1", appA)
		if err != nil {
			t.Fatalf("IncrementCount: %v", err)
		}
		if got != i {
			t.Errorf("IncrementCount #%d = %d, want %d", i, got, i)
		}
	}
	if got := l.GetCount("U1", appA); got != n {
		t.Errorf("GetCount = %d, want %d", got, n)
	}
	if got := l.GetCount("U1", appB); got != 0 {
		t.Errorf("GetCount(untouched) = %d, want 0", got)
	}
	if got := l.GetCount("U2", appA); got != 0 {
		t.Errorf("GetCount(other device) = %d, want 0", got)
	}
}

func TestSelectionLedger_IncrementValidation(t *testing.T) {
	l := newSelection(t, NewMemoryBlobStore())
	if _, err := l.IncrementCount(context.Background(), "", appA); err == nil {
		t.Error("IncrementCount with empty device key should fail")
	}
	if _, err := l.IncrementCount(context.Background(), "U1", uuid.Nil); err == nil {
		t.Error("IncrementCount with nil app id should fail")
	}
}

func TestSelectionLedger_Reset(t *testing.T) {
	ctx := context.Background()
	l := newSelection(t, NewMemoryBlobStore())
	_, _ = l.IncrementCount(ctx, "U1", appA)
	_, _ = l.IncrementCount(ctx, "U1", appB)
	_, _ = l.IncrementCount(ctx, "U2", appA)

	if err := l.ResetCounts(ctx, "U1"); err != nil {
		t.Fatalf("ResetCounts: %v", err)
	}
	if got := l.GetAllCounts("U1"); len(got) != 0 {
		t.Errorf("GetAllCounts after reset = %v, want empty", got)
	}
	if got := l.GetCount("U2", appA); got != 1 {
		t.Errorf("other device count = %d, want 1", got)
	}
	if err := l.ResetCounts(ctx, "missing"); err != nil {
		t.Errorf("ResetCounts(missing) = %v, want nil", err)
	}
}

func TestSelectionLedger_Aggregates(t *testing.T) {
	ctx := context.Background()
	l := newSelection(t, NewMemoryBlobStore())
	for i := 0; i < 3; i++ {
		_, _ = l.IncrementCount(ctx, "U1", appA)
	}
	_, _ = l.IncrementCount(ctx, "U1", appB)
	_, _ = l.IncrementCount(ctx, "U1", appC)
	_, _ = l.IncrementCount(ctx, "U2", appA)

	if got := l.TotalCount(); got != 6 {
		t.Errorf("TotalCount = %d, want 6", got)
	}
	if got := l.DeviceTotal("U1"); got != 5 {
		t.Errorf("DeviceTotal(U1) = %d, want 5", got)
	}
	if got := l.AppTotal(appA); got != 4 {
		t.Errorf("AppTotal(appA) = %d, want 4", got)
	}
	top := l.TopApps("U1", 2)
	if len(top) != 2 {
		t.Fatalf("TopApps len = %d, want 2", len(top))
	}
	if top[0].AppID != appA || top[0].Count != 3 {
		t.Errorf("TopApps[0] = %+v, want appA x3", top[0])
	}
	// appB and appC tie at 1; ordered by id.
	if top[1].AppID != appB {
		t.Errorf("TopApps[1] = %+v, want appB", top[1])
	}
	if all := l.TopApps("U1", 0); len(all) != 3 {
		t.Errorf("TopApps(0) len = %d, want 3", len(all))
	}
}

func TestSelectionLedger_RoundTripDropsCorruptKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore()
	l := newSelection(t, store)
	_, _ = l.IncrementCount(ctx, "U1", appA)
	_, _ = l.IncrementCount(ctx, "U1", appA)
	_, _ = l.IncrementCount(ctx, "U2", appB)

	reloaded := newSelection(t, store)
	if got := reloaded.GetCount("U1", appA); got != 2 {
		t.Errorf("reloaded U1/appA = %d, want 2", got)
	}
	if got := reloaded.GetCount("U2", appB); got != 1 {
		t.Errorf("reloaded U2/appB = %d, want 1", got)
	}

	raw := map[string]map[string]int{
		"U1": {appA.String(): 4, "not-a-uuid": 9, appB.String(): -1},
		"U3": {"00000000-0000-0000-0000-000000000000": 2},
	}
	b, _ := json.Marshal(raw)
	_ = store.Save(ctx, KeySelectionCounts, b)
	corrupt := newSelection(t, store)
	if got := corrupt.GetAllCounts("U1"); len(got) != 1 || got[appA] != 4 {
		t.Errorf("GetAllCounts(U1) = %v, want only appA=4", got)
	}
	if got := corrupt.GetAllCounts("U3"); len(got) != 0 {
		t.Errorf("GetAllCounts(U3) = %v, want empty", got)
	}
}

func TestSelectionLedger_UnreadableBlobStartsEmpty(t *testing.T) {
	store := NewMemoryBlobStore()
	_ = store.Save(context.Background(), KeySelectionCounts, []byte("{not json"))
	l := newSelection(t, store)
	if got := l.TotalCount(); got != 0 {
		t.Errorf("TotalCount = %d, want 0", got)
	}
}

func TestSelectionLedger_BadValueTypesDropOnlyThatEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore()
	blob := `{"U1":{"` + appA.String() + `":4,"` + appC.String() + `":1.5},` +
		`"U2":{"` + appB.String() + `":"oops"},` +
		`"U3":["not","a","map"],` +
		`"U4":{"` + appB.String() + `":2}}`
	_ = store.Save(ctx, KeySelectionCounts, []byte(blob))

	l := newSelection(t, store)
	if got := l.GetCount("U1", appA); got != 4 {
		t.Errorf("GetCount(U1, appA) = %d, want 4", got)
	}
	if got := l.GetCount("U1", appC); got != 0 {
		t.Errorf("GetCount(U1, appC) = %d, want 0 for fractional count", got)
	}
	if got := l.GetAllCounts("U2"); len(got) != 0 {
		t.Errorf("GetAllCounts(U2) = %v, want empty", got)
	}
	if got := l.GetCount("U4", appB); got != 2 {
		t.Errorf("GetCount(U4, appB) = %d, want 2", got)
	}
	if got := l.TotalCount(); got != 6 {
		t.Errorf("TotalCount = %d, want 6", got)
	}
}

func TestSelectionLedger_SaveFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{inner: NewMemoryBlobStore(), failAfter: 1}
	l := newSelection(t, store)
	if _, err := l.IncrementCount(ctx, "U1", appA); err != nil {
		t.Fatalf("first IncrementCount: %v", err)
	}
	got, err := l.IncrementCount(ctx, "U1", appA)
	if err == nil {
		t.Fatal("IncrementCount should fail when the store fails")
	}
	if got != 1 || l.GetCount("U1", appA) != 1 {
		t.Errorf("count after failed save = %d/%d, want 1", got, l.GetCount("U1", appA))
	}
}

func TestVisibilityLedger_HideShowToggle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore()
	l := newVisibility(t, store)

	if err := l.Hide(ctx, "U1", appA); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if !l.IsHidden("U1", appA) {
		t.Error("IsHidden = false after Hide")
	}
	if l.IsHidden("U2", appA) {
		t.Error("hidden set leaked to another device")
	}
	saves := store.Saves()
	if err := l.Hide(ctx, "U1", appA); err != nil {
		t.Fatalf("Hide again: %v", err)
	}
	if store.Saves() != saves {
		t.Error("repeated Hide wrote to the store")
	}

	hidden, err := l.Toggle(ctx, "U1", appB)
	if err != nil || !hidden {
		t.Errorf("Toggle(appB) = %v, %v; want true, nil", hidden, err)
	}
	hidden, err = l.Toggle(ctx, "U1", appA)
	if err != nil || hidden {
		t.Errorf("Toggle(appA) = %v, %v; want false, nil", hidden, err)
	}
	if got := l.HiddenApps("U1"); len(got) != 1 || got[0] != appB {
		t.Errorf("HiddenApps = %v, want [appB]", got)
	}

	if err := l.Show(ctx, "U1", appB); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if got := l.HiddenApps("U1"); len(got) != 0 {
		t.Errorf("HiddenApps after Show = %v, want empty", got)
	}
}

func TestVisibilityLedger_ClearAll(t *testing.T) {
	ctx := context.Background()
	l := newVisibility(t, NewMemoryBlobStore())
	_ = l.Hide(ctx, "U1", appA)
	_ = l.Hide(ctx, "U1", appB)
	_ = l.Hide(ctx, "U2", appC)

	if err := l.ClearAll(ctx, "U1"); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if got := l.HiddenApps("U1"); len(got) != 0 {
		t.Errorf("HiddenApps(U1) = %v, want empty", got)
	}
	if !l.IsHidden("U2", appC) {
		t.Error("ClearAll touched another device")
	}
}

func TestVisibilityLedger_PurgeOrphaned(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore()
	l := newVisibility(t, store)
	_ = l.Hide(ctx, "U1", appA)
	_ = l.Hide(ctx, "U1", appB)
	_ = l.Hide(ctx, "U1", appC)

	removed, err := l.PurgeOrphaned(ctx, "U1", []uuid.UUID{appA, appC, uuid.New()})
	if err != nil {
		t.Fatalf("PurgeOrphaned: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	got := l.HiddenApps("U1")
	if len(got) != 2 || !l.IsHidden("U1", appA) || !l.IsHidden("U1", appC) {
		t.Errorf("HiddenApps = %v, want [appA appC]", got)
	}

	saves := store.Saves()
	removed, err = l.PurgeOrphaned(ctx, "U1", []uuid.UUID{appA, appC})
	if err != nil || removed != 0 {
		t.Errorf("second PurgeOrphaned = %d, %v; want 0, nil", removed, err)
	}
	if store.Saves() != saves {
		t.Error("idempotent purge wrote to the store")
	}
	if got2 := l.HiddenApps("U1"); len(got2) != 2 {
		t.Errorf("HiddenApps after second purge = %v", got2)
	}
}

func TestVisibilityLedger_RoundTripDropsCorruptIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore()
	l := newVisibility(t, store)
	_ = l.Hide(ctx, "U1", appA)
	_ = l.Hide(ctx, "U2", appB)

	reloaded := newVisibility(t, store)
	if !reloaded.IsHidden("U1", appA) || !reloaded.IsHidden("U2", appB) {
		t.Error("reloaded ledger lost hidden ids")
	}

	b, _ := json.Marshal(map[string][]string{"U1": {appC.String(), "garbage"}})
	_ = store.Save(ctx, KeyHiddenApps, b)
	corrupt := newVisibility(t, store)
	if got := corrupt.HiddenApps("U1"); len(got) != 1 || got[0] != appC {
		t.Errorf("HiddenApps = %v, want [appC]", got)
	}
}

func TestVisibilityLedger_BadValueTypesDropOnlyThatEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore()
	blob := `{"U1":["` + appA.String() + `",7,null],"U2":{"x":1},"U3":["` + appB.String() + `"]}`
	_ = store.Save(ctx, KeyHiddenApps, []byte(blob))

	l := newVisibility(t, store)
	if got := l.HiddenApps("U1"); len(got) != 1 || got[0] != appA {
		t.Errorf("HiddenApps(U1) = %v, want [appA]", got)
	}
	if got := l.HiddenApps("U2"); len(got) != 0 {
		t.Errorf("HiddenApps(U2) = %v, want empty", got)
	}
	if !l.IsHidden("U3", appB) {
		t.Error("U3/appB lost alongside a corrupt device entry")
	}
}

func TestVisibilityLedger_SaveFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	l := newVisibility(t, &failingStore{inner: NewMemoryBlobStore(), failAfter: 0})
	if err := l.Hide(ctx, "U1", appA); err == nil {
		t.Fatal("Hide should fail when the store fails")
	}
	if l.IsHidden("U1", appA) {
		t.Error("IsHidden = true after failed save")
	}
	hidden, err := l.Toggle(ctx, "U1", appA)
	if err == nil || hidden {
		t.Errorf("Toggle = %v, %v; want false and an error", hidden, err)
	}
}

func TestAppIDCodec(t *testing.T) {
	var c AppIDCodec
	s := c.Encode(appA)
	got, err := c.Decode(s)
	if err != nil || got != appA {
		t.Errorf("Decode(Encode) = %v, %v; want %v", got, err, appA)
	}
	for _, bad := range []string{"", "xyz", uuid.Nil.String()} {
		if _, err := c.Decode(bad); err == nil {
			t.Errorf("Decode(%q) should fail", bad)
		}
	}
}
