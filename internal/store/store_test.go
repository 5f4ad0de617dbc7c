package store_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"latdyn/internal/services"
	"latdyn/internal/store"
	"latdyn/internal/testsupport"
)

func TestNextSequenceStartsAtOne(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, err := st.NextSequence(ctx, store.FittingIDCounter)
	if err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first id 1, got %d", first)
	}
	second, err := st.NextSequence(ctx, store.FittingIDCounter)
	if err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	if second != 2 {
		t.Fatalf("expected second id 2, got %d", second)
	}
	other, err := st.NextSequence(ctx, "other")
	if err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	if other != 1 {
		t.Fatalf("counters should be independent, got %d", other)
	}
}

func TestNextSequenceConcurrentCallersGetDistinctIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// Two handles on one file stand in for two pipeline processes.
	a := testsupport.MustOpenStore(t, cfg)
	b := testsupport.MustOpenStore(t, cfg)

	const n = 24
	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		st := a
		if i%2 == 1 {
			st = b
		}
		wg.Add(1)
		go func(i int, st *store.Store) {
			defer wg.Done()
			ids[i], errs[i] = st.NextSequence(context.Background(), store.FittingIDCounter)
		}(i, st)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("expected consecutive ids 1..%d, got %v", n, ids)
		}
	}
}

func TestInsertAndFindDocuments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	type doc struct {
		FittingID int64     `json:"fc_fitting_id"`
		Formula   string    `json:"formula_pretty"`
		Values    []float64 `json:"values"`
	}
	for i, formula := range []string{"Si", "NaCl"} {
		if _, err := st.InsertDocument(ctx, store.CollectionLatticeDynamics, doc{
			FittingID: int64(i + 1),
			Formula:   formula,
			Values:    []float64{1, math.NaN()},
		}); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	docs, err := st.FindDocuments(ctx, store.CollectionLatticeDynamics, "fc_fitting_id", 2)
	if err != nil {
		t.Fatalf("FindDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 match, got %d", len(docs))
	}
	var got map[string]any
	if err := docs[0].Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{
		"fc_fitting_id":  float64(2),
		"formula_pretty": "NaCl",
		"values":         []any{float64(1), nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
	if docs[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	all, err := st.FindDocuments(ctx, store.CollectionLatticeDynamics, "", nil)
	if err != nil {
		t.Fatalf("FindDocuments all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(all))
	}

	if _, err := st.GetDocument(ctx, 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlobsAreContentAddressed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	payload := []byte(`{"frequencies":[1,2,3]}`)
	id1, err := st.PutBlob(ctx, store.BlobPhononDOS, payload)
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	id2, err := st.PutBlob(ctx, store.BlobPhononDOS, payload)
	if err != nil {
		t.Fatalf("PutBlob again: %v", err)
	}
	if id1 != id2 || len(id1) != 64 {
		t.Fatalf("expected identical sha256 ids, got %q and %q", id1, id2)
	}
	got, err := st.GetBlob(ctx, store.BlobPhononDOS, id1)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("blob mismatch: %q", got)
	}
	if _, err := st.GetBlob(ctx, store.BlobPhononBandStructure, id1); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("blob collections should be separate, got %v", err)
	}
}

func TestSanitize(t *testing.T) {
	type inner struct {
		Note string `json:"note,omitempty"`
	}
	type record struct {
		Name    string             `json:"name"`
		Skip    string             `json:"-"`
		Score   float64            `json:"score"`
		Ptr     *float64           `json:"ptr"`
		Grid    [2][2]int          `json:"grid"`
		Extra   map[string]float64 `json:"extra"`
		Inner   inner              `json:"inner"`
		When    time.Time          `json:"when"`
		private int
	}
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := store.Sanitize(record{
		Name:    "Si",
		Skip:    "x",
		Score:   math.Inf(1),
		Grid:    [2][2]int{{1, 0}, {0, 1}},
		Extra:   map[string]float64{"a": 1.5, "b": math.NaN()},
		When:    when,
		private: 3,
	})
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	want := map[string]any{
		"name":  "Si",
		"score": nil,
		"ptr":   nil,
		"grid":  []any{[]any{int64(1), int64(0)}, []any{int64(0), int64(1)}},
		"extra": map[string]any{"a": 1.5, "b": nil},
		"inner": map[string]any{},
		"when":  "2026-01-02T03:04:05Z",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Sanitize mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := store.OpenPath(" "); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
