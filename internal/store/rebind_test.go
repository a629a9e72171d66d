package store

import "testing"

func TestRebind(t *testing.T) {
	t.Parallel()
	q := `SELECT * FROM seo_analysis WHERE user_id = ? AND url = ? LIMIT ?`

	pg := &Store{driver: DriverPostgres}
	if got, want := pg.rebind(q), `SELECT * FROM seo_analysis WHERE user_id = $1 AND url = $2 LIMIT $3`; got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}

	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind(q); got != q {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}
}
