package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/store"
	"github.com/scanzie/smeal/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "scanzie.db")
	s, err := store.Open(context.Background(), store.DriverSQLite, dsn, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(userID, url string, score float64) *model.AnalysisRecord {
	return &model.AnalysisRecord{
		UserID:    userID,
		URL:       url,
		Title:     "Home",
		Technical: &model.TechnicalAnalysis{Score: model.Score(score), SSL: &model.SSLResult{Enabled: true}},
		Content:   &model.ContentAnalysis{WordCount: 420, Issues: model.Issues{"thin content"}},
	}
}

// ─── Open / Migrate ────────────────────────────────────────────────────

func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Parallel()
	_, err := store.Open(context.Background(), "mysql", "x", nil)
	if !errors.Is(err, store.ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

// ─── Analyses ──────────────────────────────────────────────────────────

func TestUpsertAnalysis_InsertThenOverwrite(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertAnalysis(ctx, record("u1", "https://example.com/", 50))
	if err != nil {
		t.Fatalf("UpsertAnalysis: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if first.SchemaVersion != model.CurrentSchemaVersion {
		t.Errorf("schema version = %d", first.SchemaVersion)
	}
	if first.Content == nil || first.Content.Issues[0] != "thin content" {
		t.Errorf("content not round-tripped: %+v", first.Content)
	}
	if first.OnPage != nil {
		t.Errorf("absent on_page should stay nil, got %+v", first.OnPage)
	}

	second, err := s.UpsertAnalysis(ctx, record("u1", "https://example.com/", 90))
	if err != nil {
		t.Fatalf("UpsertAnalysis overwrite: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("overwrite changed id: %s -> %s", first.ID, second.ID)
	}
	if *second.Technical.Score != 90 {
		t.Errorf("technical score = %v, want 90", *second.Technical.Score)
	}

	all, err := s.ListAnalyses(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one record per (user, url), got %d", len(all))
	}
}

func TestUpsertAnalysis_KeepsPreviousVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertAnalysis(ctx, record("u1", "https://example.com/", 50))
	if err != nil {
		t.Fatalf("UpsertAnalysis: %v", err)
	}
	if _, err := s.GetPreviousAnalysis(ctx, "u1", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("fresh record: expected ErrNotFound, got %v", err)
	}

	for _, sc := range []float64{70, 90} {
		if _, err := s.UpsertAnalysis(ctx, record("u1", "https://example.com/", sc)); err != nil {
			t.Fatalf("UpsertAnalysis(%v): %v", sc, err)
		}
	}
	prev, err := s.GetPreviousAnalysis(ctx, "u1", first.ID)
	if err != nil {
		t.Fatalf("GetPreviousAnalysis: %v", err)
	}
	if *prev.Technical.Score != 70 {
		t.Errorf("previous technical score = %v, want 70", *prev.Technical.Score)
	}
	if _, err := s.GetPreviousAnalysis(ctx, "u2", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("other user: expected ErrNotFound, got %v", err)
	}

	if _, err := s.DeleteAnalysis(ctx, "u1", first.ID); err != nil {
		t.Fatalf("DeleteAnalysis: %v", err)
	}
	if _, err := s.GetPreviousAnalysis(ctx, "u1", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("after delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAnalysis_RollsBackWhenArchiveDeleteFails(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.UpsertAnalysis(ctx, record("u1", "https://example.com/", 50))
	if err != nil {
		t.Fatalf("UpsertAnalysis: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `DROP TABLE seo_analysis_previous`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	n, err := s.DeleteAnalysis(ctx, "u1", rec.ID)
	if err == nil {
		t.Fatal("expected an error when the archived version cannot be deleted")
	}
	if n != 0 {
		t.Errorf("rows affected = %d on failure, want 0", n)
	}
	if _, err := s.GetAnalysisByID(ctx, "u1", rec.ID); err != nil {
		t.Errorf("record should survive a failed delete: %v", err)
	}
}

func TestGetAnalysisByURL_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.GetAnalysisByURL(context.Background(), "u1", "https://missing.example/")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAnalyses_ScopedToUser(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	for _, r := range []*model.AnalysisRecord{
		record("alice", "https://a.example/", 10),
		record("alice", "https://b.example/", 20),
		record("bob", "https://a.example/", 30),
	} {
		if _, err := s.UpsertAnalysis(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	alice, err := s.ListAnalyses(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(alice) != 2 {
		t.Fatalf("alice has %d records, want 2", len(alice))
	}
	for _, r := range alice {
		if r.UserID != "alice" {
			t.Errorf("leaked record of %s", r.UserID)
		}
	}

	none, err := s.ListAnalyses(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", none)
	}
}

func TestListAnalysesPage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	for _, u := range []string{"https://1.example/", "https://2.example/", "https://3.example/"} {
		if _, err := s.UpsertAnalysis(ctx, record("u1", u, 50)); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := s.ListAnalysesPage(ctx, "u1", 2, 0)
	if err != nil {
		t.Fatalf("ListAnalysesPage: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("page = %d records, total = %d; want 2, 3", len(page), total)
	}

	rest, _, err := s.ListAnalysesPage(ctx, "u1", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 {
		t.Fatalf("second page has %d records, want 1", len(rest))
	}
	for _, r := range page {
		if r.ID == rest[0].ID {
			t.Fatal("pages overlap")
		}
	}
}

func TestDeleteAnalysis_OnlyOwner(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.UpsertAnalysis(ctx, record("alice", "https://a.example/", 10))
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteAnalysis(ctx, "bob", rec.ID)
	if err != nil {
		t.Fatalf("DeleteAnalysis as bob: %v", err)
	}
	if n != 0 {
		t.Fatalf("bob deleted %d rows of alice's", n)
	}
	if _, err := s.GetAnalysisByID(ctx, "alice", rec.ID); err != nil {
		t.Fatalf("alice's record should survive: %v", err)
	}

	n, err = s.DeleteAnalysis(ctx, "alice", rec.ID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteAnalysis as alice = %d, %v", n, err)
	}
	if _, err := s.GetAnalysisByID(ctx, "alice", rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

// ─── Users / Sessions ──────────────────────────────────────────────────

func TestUsersAndSessions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{Name: "Ada Lovelace", Email: "ada@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil || got.Email != "ada@example.com" {
		t.Fatalf("GetUser = %+v, %v", got, err)
	}

	updated, err := s.UpdateUserName(ctx, u.ID, "Ada King")
	if err != nil || updated.Name != "Ada King" {
		t.Fatalf("UpdateUserName = %+v, %v", updated, err)
	}
	if _, err := s.UpdateUserName(ctx, "ghost", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}

	sess := &store.Session{Token: "tok-1", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	gotSess, gotUser, err := s.GetSessionByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetSessionByToken: %v", err)
	}
	if gotSess.UserID != u.ID || gotUser.Name != "Ada King" {
		t.Errorf("session/user mismatch: %+v %+v", gotSess, gotUser)
	}
	if _, _, err := s.GetSessionByToken(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	expired := &store.Session{Token: "tok-old", UserID: u.ID, ExpiresAt: time.Now().Add(-time.Hour)}
	if err := s.CreateSession(ctx, expired); err != nil {
		t.Fatal(err)
	}
	n, err := s.DeleteExpiredSessions(ctx, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions = %d, %v", n, err)
	}
}
