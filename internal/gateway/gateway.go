// Package gateway is the user-scoped data access layer for analysis
// records. Every call takes the caller's session explicitly; reads are
// cached under per-user tags that mutations invalidate.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/cache"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/report"
	"github.com/scanzie/smeal/internal/store"
	"github.com/scanzie/smeal/internal/utils"
)

var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	// ErrDataAccess hides storage failures from callers. The cause is logged.
	ErrDataAccess  = errors.New("data access failed")
	ErrInvalidName = errors.New("invalid name: must be 1-100 characters")
	// ErrNoPreviousAnalysis means the record was never re-analyzed.
	ErrNoPreviousAnalysis = errors.New("no previous analysis to compare with")
)

const maxNameLength = 100

// Store is the persistence the gateway reads and mutates.
type Store interface {
	GetAnalysisByURL(ctx context.Context, userID, url string) (*model.AnalysisRecord, error)
	GetAnalysisByID(ctx context.Context, userID, id string) (*model.AnalysisRecord, error)
	GetPreviousAnalysis(ctx context.Context, userID, id string) (*model.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, userID string) ([]*model.AnalysisRecord, error)
	ListAnalysesPage(ctx context.Context, userID string, limit, offset int) ([]*model.AnalysisRecord, int, error)
	DeleteAnalysis(ctx context.Context, userID, id string) (int64, error)
	UpdateUserName(ctx context.Context, id, name string) (*model.User, error)
}

// ReportArchive removes exported reports when their record is deleted.
type ReportArchive interface {
	Remove(ctx context.Context, userID, analysisID string) error
}

type Config struct {
	CacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{CacheTTL: 60 * time.Second}
}

// Page is one slice of a user's records.
type Page struct {
	Records []*model.AnalysisRecord `json:"records"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

type Gateway struct {
	store   Store
	cache   cache.Cache
	archive ReportArchive
	cfg     Config
	logger  logging.Logger
}

// New returns a Gateway. A nil cache disables caching.
func New(st Store, c cache.Cache, cfg Config, logger logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	return &Gateway{
		store:  st,
		cache:  c,
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "gateway"}),
	}
}

// SetArchive enables report cleanup on delete.
func (g *Gateway) SetArchive(a ReportArchive) { g.archive = a }

// Cache tags.
func userAnalysisTag(uid string) string     { return "user-analysis:" + uid }
func analysisDetailsTag(uid string) string  { return "analysis-details:" + uid }
func analysisURLTag(uid, url string) string { return "analysis-details:" + uid + ":" + url }

// FetchAnalysisDetails returns the user's record for url, or nil when there
// is none.
func (g *Gateway) FetchAnalysisDetails(ctx context.Context, sess *auth.Session, url string) (*model.AnalysisRecord, error) {
	uid, err := auth.UserID(sess)
	if err != nil {
		return nil, err
	}

	key := analysisURLTag(uid, url)
	var cached *model.AnalysisRecord
	if g.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	rec, err := g.lookupByURL(ctx, uid, url)
	if err != nil {
		g.logger.Error("fetch analysis details failed",
			logging.Field{Key: "user_id", Value: uid},
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err})
		return nil, ErrDataAccess
	}

	g.cacheSet(ctx, key, rec, analysisDetailsTag(uid), analysisURLTag(uid, url))
	return rec, nil
}

// lookupByURL tries url as given, then its canonical form.
func (g *Gateway) lookupByURL(ctx context.Context, uid, url string) (*model.AnalysisRecord, error) {
	rec, err := g.store.GetAnalysisByURL(ctx, uid, url)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	canonical, cerr := utils.Canonicalize(url, utils.AnalysisURLOptions)
	if cerr != nil || canonical == url {
		return nil, nil
	}
	rec, err = g.store.GetAnalysisByURL(ctx, uid, canonical)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// FetchAnalysisChanges compares the user's record for url with the version
// its latest re-analysis replaced.
func (g *Gateway) FetchAnalysisChanges(ctx context.Context, sess *auth.Session, url string) (*report.Changes, error) {
	uid, err := auth.UserID(sess)
	if err != nil {
		return nil, err
	}
	// Read through: a cached detail may predate the latest re-analysis.
	cur, err := g.lookupByURL(ctx, uid, url)
	if err != nil {
		g.logger.Error("fetch analysis changes failed",
			logging.Field{Key: "user_id", Value: uid},
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err})
		return nil, ErrDataAccess
	}
	if cur == nil {
		return nil, ErrAnalysisNotFound
	}

	prev, err := g.store.GetPreviousAnalysis(ctx, uid, cur.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPreviousAnalysis
	}
	if err != nil {
		g.logger.Error("fetch previous analysis failed",
			logging.Field{Key: "analysis_id", Value: cur.ID},
			logging.Field{Key: "error", Value: err})
		return nil, ErrDataAccess
	}
	return report.Compare(prev, cur)
}

// FetchUserAnalysis returns every record the user owns, newest first.
func (g *Gateway) FetchUserAnalysis(ctx context.Context, sess *auth.Session) ([]*model.AnalysisRecord, error) {
	uid, err := auth.UserID(sess)
	if err != nil {
		return nil, err
	}

	key := userAnalysisTag(uid)
	var cached []*model.AnalysisRecord
	if g.cacheGet(ctx, key, &cached) && cached != nil {
		return cached, nil
	}

	recs, err := g.store.ListAnalyses(ctx, uid)
	if err != nil {
		g.logger.Error("fetch user analysis failed",
			logging.Field{Key: "user_id", Value: uid},
			logging.Field{Key: "error", Value: err})
		return nil, ErrDataAccess
	}

	g.cacheSet(ctx, key, recs, userAnalysisTag(uid))
	return recs, nil
}

// FetchUserAnalysisPage is the bounded form of FetchUserAnalysis.
func (g *Gateway) FetchUserAnalysisPage(ctx context.Context, sess *auth.Session, limit, offset int) (*Page, error) {
	uid, err := auth.UserID(sess)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	key := fmt.Sprintf("%s:page:%d:%d", userAnalysisTag(uid), limit, offset)
	var cached Page
	if g.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	recs, total, err := g.store.ListAnalysesPage(ctx, uid, limit, offset)
	if err != nil {
		g.logger.Error("fetch user analysis page failed",
			logging.Field{Key: "user_id", Value: uid},
			logging.Field{Key: "error", Value: err})
		return nil, ErrDataAccess
	}

	page := &Page{Records: recs, Total: total, Limit: limit, Offset: offset}
	g.cacheSet(ctx, key, page, userAnalysisTag(uid))
	return page, nil
}

// DeleteAnalysis removes the user's record with id. Records of other users
// are never touched; deleting one yields ErrAnalysisNotFound.
func (g *Gateway) DeleteAnalysis(ctx context.Context, sess *auth.Session, id string) error {
	uid, err := auth.UserID(sess)
	if err != nil {
		return err
	}

	n, err := g.store.DeleteAnalysis(ctx, uid, id)
	if err != nil {
		g.logger.Error("delete analysis failed",
			logging.Field{Key: "user_id", Value: uid},
			logging.Field{Key: "analysis_id", Value: id},
			logging.Field{Key: "error", Value: err})
		return ErrDataAccess
	}
	if n == 0 {
		return ErrAnalysisNotFound
	}

	if g.archive != nil {
		if err := g.archive.Remove(ctx, uid, id); err != nil {
			g.logger.Warn("remove archived report failed",
				logging.Field{Key: "analysis_id", Value: id},
				logging.Field{Key: "error", Value: err})
		}
	}

	g.invalidate(ctx, userAnalysisTag(uid), analysisDetailsTag(uid))
	g.logger.Info("analysis deleted",
		logging.Field{Key: "user_id", Value: uid},
		logging.Field{Key: "analysis_id", Value: id})
	return nil
}

// InvalidateUserAnalysisCache drops the user's cached record lists.
func (g *Gateway) InvalidateUserAnalysisCache(ctx context.Context, sess *auth.Session) error {
	uid, err := auth.UserID(sess)
	if err != nil {
		return err
	}
	g.invalidate(ctx, userAnalysisTag(uid))
	return nil
}

// InvalidateAnalysisDetailsCache drops the cached detail for url, or every
// cached detail of the user when url is empty.
func (g *Gateway) InvalidateAnalysisDetailsCache(ctx context.Context, sess *auth.Session, url string) error {
	uid, err := auth.UserID(sess)
	if err != nil {
		return err
	}
	if url == "" {
		g.invalidate(ctx, analysisDetailsTag(uid))
		return nil
	}
	g.invalidate(ctx, analysisURLTag(uid, url))
	return nil
}

// UpdateProfileName sets the user's display name.
func (g *Gateway) UpdateProfileName(ctx context.Context, sess *auth.Session, name string) (*model.User, error) {
	uid, err := auth.UserID(sess)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return nil, ErrInvalidName
	}

	u, err := g.store.UpdateUserName(ctx, uid, name)
	if err != nil {
		g.logger.Error("update profile failed",
			logging.Field{Key: "user_id", Value: uid},
			logging.Field{Key: "error", Value: err})
		return nil, ErrDataAccess
	}
	return u, nil
}

func (g *Gateway) cacheGet(ctx context.Context, key string, dst any) bool {
	if g.cache == nil {
		return false
	}
	b, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("cache read failed", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err})
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		g.logger.Warn("cache entry unreadable", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err})
		return false
	}
	return true
}

func (g *Gateway) cacheSet(ctx context.Context, key string, v any, tags ...string) {
	if g.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, b, g.cfg.CacheTTL, tags...); err != nil {
		g.logger.Warn("cache write failed", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err})
	}
}

func (g *Gateway) invalidate(ctx context.Context, tags ...string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.InvalidateTags(ctx, tags...); err != nil {
		g.logger.Warn("cache invalidation failed", logging.Field{Key: "tags", Value: tags}, logging.Field{Key: "error", Value: err})
	}
}
