package gateway_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/cache"
	"github.com/scanzie/smeal/internal/gateway"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/store"
	"github.com/scanzie/smeal/internal/testutil"
)

// countingStore records how often reads reach the database.
type countingStore struct {
	*store.Store
	mu    sync.Mutex
	reads int
}

func (c *countingStore) hit() {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
}

func (c *countingStore) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *countingStore) GetAnalysisByURL(ctx context.Context, userID, url string) (*model.AnalysisRecord, error) {
	c.hit()
	return c.Store.GetAnalysisByURL(ctx, userID, url)
}

func (c *countingStore) ListAnalyses(ctx context.Context, userID string) ([]*model.AnalysisRecord, error) {
	c.hit()
	return c.Store.ListAnalyses(ctx, userID)
}

type fakeArchive struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeArchive) Remove(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID+"/"+id)
	return nil
}

type fixture struct {
	gw     *gateway.Gateway
	store  *countingStore
	cache  *cache.MemoryCache
	logger *testutil.DummyLogger
	alice  *auth.Session
	bob    *auth.Session
}

func newTestGateway(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "gw.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	alice := &model.User{Name: "Alice", Email: "alice@example.com"}
	bob := &model.User{Name: "Bob", Email: "bob@example.com"}
	for _, u := range []*model.User{alice, bob} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	cs := &countingStore{Store: st}
	mc := cache.NewMemoryCache()
	logger := &testutil.DummyLogger{}
	return &fixture{
		gw:     gateway.New(cs, mc, gateway.DefaultConfig(), logger),
		store:  cs,
		cache:  mc,
		logger: logger,
		alice:  &auth.Session{UserID: alice.ID, User: alice},
		bob:    &auth.Session{UserID: bob.ID, User: bob},
	}
}

func (f *fixture) seed(t *testing.T, sess *auth.Session, url string, score float64) *model.AnalysisRecord {
	t.Helper()
	rec, err := f.store.UpsertAnalysis(context.Background(), &model.AnalysisRecord{
		UserID:    sess.UserID,
		URL:       url,
		Technical: &model.TechnicalAnalysis{Score: model.Score(score)},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec
}

// ─── Authentication ────────────────────────────────────────────────────

func TestGateway_Unauthenticated(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	ctx := context.Background()

	if _, err := f.gw.FetchAnalysisDetails(ctx, nil, "https://a.example/"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("FetchAnalysisDetails: %v", err)
	}
	if _, err := f.gw.FetchUserAnalysis(ctx, nil); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("FetchUserAnalysis: %v", err)
	}
	if err := f.gw.DeleteAnalysis(ctx, nil, "x"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("DeleteAnalysis: %v", err)
	}
	if err := f.gw.InvalidateUserAnalysisCache(ctx, nil); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("InvalidateUserAnalysisCache: %v", err)
	}
	if f.store.Reads() != 0 {
		t.Errorf("unauthenticated calls reached the store %d times", f.store.Reads())
	}
}

// ─── Reads ─────────────────────────────────────────────────────────────

func TestFetchAnalysisDetails_FoundAndMissing(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	ctx := context.Background()
	f.seed(t, f.alice, "https://a.example/page", 80)

	rec, err := f.gw.FetchAnalysisDetails(ctx, f.alice, "https://a.example/page")
	if err != nil || rec == nil {
		t.Fatalf("FetchAnalysisDetails = %v, %v", rec, err)
	}

	missing, err := f.gw.FetchAnalysisDetails(ctx, f.alice, "https://nothing.example/")
	if err != nil || missing != nil {
		t.Fatalf("missing record = %v, %v; want nil, nil", missing, err)
	}

	other, err := f.gw.FetchAnalysisDetails(ctx, f.bob, "https://a.example/page")
	if err != nil || other != nil {
		t.Fatalf("bob sees alice's record: %v, %v", other, err)
	}
}

func TestFetchAnalysisDetails_CanonicalFallback(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	f.seed(t, f.alice, "https://a.example/page", 80)

	rec, err := f.gw.FetchAnalysisDetails(context.Background(), f.alice, "HTTPS://A.example/page/?utm_source=x")
	if err != nil || rec == nil {
		t.Fatalf("canonical lookup = %v, %v", rec, err)
	}
}

func TestFetchAnalysisChanges(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	ctx := context.Background()
	url := "https://a.example/page"

	if _, err := f.gw.FetchAnalysisChanges(ctx, f.alice, url); !errors.Is(err, gateway.ErrAnalysisNotFound) {
		t.Fatalf("no record: expected ErrAnalysisNotFound, got %v", err)
	}
	f.seed(t, f.alice, url, 40)
	if _, err := f.gw.FetchAnalysisChanges(ctx, f.alice, url); !errors.Is(err, gateway.ErrNoPreviousAnalysis) {
		t.Fatalf("single version: expected ErrNoPreviousAnalysis, got %v", err)
	}

	// Warm the detail cache with the first version, then re-analyze.
	if _, err := f.gw.FetchAnalysisDetails(ctx, f.alice, url); err != nil {
		t.Fatal(err)
	}
	f.seed(t, f.alice, url, 85)

	ch, err := f.gw.FetchAnalysisChanges(ctx, f.alice, url)
	if err != nil {
		t.Fatalf("FetchAnalysisChanges: %v", err)
	}
	if ch.Previous.Technical != 40 || ch.Current.Technical != 85 || ch.Delta.Overall != 45 {
		t.Errorf("changes = %+v", ch)
	}

	if _, err := f.gw.FetchAnalysisChanges(ctx, f.bob, url); !errors.Is(err, gateway.ErrAnalysisNotFound) {
		t.Errorf("bob: expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestFetchUserAnalysis_CachedUntilInvalidated(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	ctx := context.Background()
	f.seed(t, f.alice, "https://a.example/", 80)

	first, err := f.gw.FetchUserAnalysis(ctx, f.alice)
	if err != nil || len(first) != 1 {
		t.Fatalf("FetchUserAnalysis = %d records, %v", len(first), err)
	}
	f.seed(t, f.alice, "https://b.example/", 60)

	cached, _ := f.gw.FetchUserAnalysis(ctx, f.alice)
	if len(cached) != 1 {
		t.Fatalf("expected cached list of 1, got %d", len(cached))
	}
	if f.store.Reads() != 1 {
		t.Fatalf("store reads = %d, want 1", f.store.Reads())
	}

	if err := f.gw.InvalidateUserAnalysisCache(ctx, f.alice); err != nil {
		t.Fatal(err)
	}
	fresh, _ := f.gw.FetchUserAnalysis(ctx, f.alice)
	if len(fresh) != 2 {
		t.Fatalf("after invalidation got %d records, want 2", len(fresh))
	}
}

func TestFetchUserAnalysisPage(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	for _, u := range []string{"https://1.example/", "https://2.example/", "https://3.example/"} {
		f.seed(t, f.alice, u, 50)
	}
	page, err := f.gw.FetchUserAnalysisPage(context.Background(), f.alice, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Records) != 2 || page.Limit != 2 {
		t.Fatalf("page = %+v", page)
	}
}

func TestInvalidateAnalysisDetailsCache(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	ctx := context.Background()
	url := "https://a.example/"

	// cache the miss, then create the record behind the cache's back
	if rec, _ := f.gw.FetchAnalysisDetails(ctx, f.alice, url); rec != nil {
		t.Fatal("expected no record yet")
	}
	f.seed(t, f.alice, url, 70)
	if rec, _ := f.gw.FetchAnalysisDetails(ctx, f.alice, url); rec != nil {
		t.Fatal("expected cached miss before invalidation")
	}

	if err := f.gw.InvalidateAnalysisDetailsCache(ctx, f.alice, url); err != nil {
		t.Fatal(err)
	}
	if rec, _ := f.gw.FetchAnalysisDetails(ctx, f.alice, url); rec == nil {
		t.Fatal("expected record after invalidation")
	}
}

// ─── Delete ────────────────────────────────────────────────────────────

func TestDeleteAnalysis_CrossUserIsolation(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	ctx := context.Background()
	bobs := f.seed(t, f.bob, "https://shared.example/", 90)

	err := f.gw.DeleteAnalysis(ctx, f.alice, bobs.ID)
	if !errors.Is(err, gateway.ErrAnalysisNotFound) {
		t.Fatalf("cross-user delete = %v, want ErrAnalysisNotFound", err)
	}
	still, err := f.store.GetAnalysisByID(ctx, f.bob.UserID, bobs.ID)
	if err != nil || still == nil {
		t.Fatalf("bob's record must survive: %v", err)
	}
}

func TestDeleteAnalysis_InvalidatesAndArchives(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	archive := &fakeArchive{}
	f.gw.SetArchive(archive)
	ctx := context.Background()

	rec := f.seed(t, f.alice, "https://a.example/", 80)
	if list, _ := f.gw.FetchUserAnalysis(ctx, f.alice); len(list) != 1 {
		t.Fatal("expected one record")
	}
	if d, _ := f.gw.FetchAnalysisDetails(ctx, f.alice, rec.URL); d == nil {
		t.Fatal("expected detail")
	}

	if err := f.gw.DeleteAnalysis(ctx, f.alice, rec.ID); err != nil {
		t.Fatalf("DeleteAnalysis: %v", err)
	}

	if list, _ := f.gw.FetchUserAnalysis(ctx, f.alice); len(list) != 0 {
		t.Errorf("stale list served after delete: %d records", len(list))
	}
	if d, _ := f.gw.FetchAnalysisDetails(ctx, f.alice, rec.URL); d != nil {
		t.Errorf("stale detail served after delete")
	}
	if len(archive.removed) != 1 || archive.removed[0] != f.alice.UserID+"/"+rec.ID {
		t.Errorf("archive removals = %v", archive.removed)
	}
}

// ─── Profile ───────────────────────────────────────────────────────────

func TestUpdateProfileName(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	ctx := context.Background()

	u, err := f.gw.UpdateProfileName(ctx, f.alice, "  Alice Liddell ")
	if err != nil {
		t.Fatalf("UpdateProfileName: %v", err)
	}
	if u.Name != "Alice Liddell" || u.Initials() != "AL" {
		t.Errorf("user = %+v", u)
	}
	if _, err := f.gw.UpdateProfileName(ctx, f.alice, "   "); !errors.Is(err, gateway.ErrInvalidName) {
		t.Errorf("blank name: %v", err)
	}
}

func TestStoreFailure_IsOpaque(t *testing.T) {
	t.Parallel()
	f := newTestGateway(t)
	_ = f.store.Close()

	_, err := f.gw.FetchUserAnalysis(context.Background(), f.alice)
	if !errors.Is(err, gateway.ErrDataAccess) {
		t.Fatalf("expected ErrDataAccess, got %v", err)
	}
	if f.logger.ErrorCount() == 0 {
		t.Error("store failure should be logged")
	}
}
