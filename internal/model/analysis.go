package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentSchemaVersion is the AnalysisRecord shape this service writes.
//
//	v1: content.issues may hold objects; on_page has no favicon/openGraph/twitterCard.
//	v2: issues are plain strings; on_page carries favicon, openGraph and twitterCard.
const CurrentSchemaVersion = 2

// AnalysisRecord is the persisted result of one SEO scan for a user and URL.
// Exactly one record exists per (UserID, URL); a re-analysis overwrites it.
type AnalysisRecord struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	URL    string `json:"url"`
	Title  string `json:"title"`

	// SchemaVersion records the payload shape the record was written with.
	// Zero is treated as v1 by Upgrade.
	SchemaVersion int `json:"schemaVersion,omitempty"`

	Technical *TechnicalAnalysis `json:"technical,omitempty"`
	Content   *ContentAnalysis   `json:"content,omitempty"`
	OnPage    *OnPageAnalysis    `json:"on_page,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Upgrade lifts an older record to CurrentSchemaVersion in place.
// Issue lists are already normalized by Issues.UnmarshalJSON; the v2-only
// on-page sections stay nil when the backend never produced them.
func (r *AnalysisRecord) Upgrade() {
	if r.SchemaVersion <= 0 {
		r.SchemaVersion = 1
	}
	if r.SchemaVersion < CurrentSchemaVersion {
		r.SchemaVersion = CurrentSchemaVersion
	}
}

// DecodeAnalysisRecord parses a JSON record of any known schema version
// and upgrades it.
func DecodeAnalysisRecord(data []byte) (*AnalysisRecord, error) {
	var r AnalysisRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode analysis record: %w", err)
	}
	if r.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("decode analysis record: unsupported schema version %d", r.SchemaVersion)
	}
	r.Upgrade()
	return &r, nil
}

// Issues is a list of human-readable problems. It decodes from a list of
// strings or, for v1 payloads, from objects with a message-like field.
type Issues []string

func (is *Issues) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*is = nil
		return nil
	}
	out := make(Issues, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("issue entry: %w", err)
		}
		out = append(out, issueText(obj))
	}
	*is = out
	return nil
}

func issueText(obj map[string]any) string {
	for _, k := range []string{"message", "description", "text", "title", "issue"} {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	b, _ := json.Marshal(obj)
	return string(b)
}

// Score returns a pointer to v for building records in code and tests.
func Score(v float64) *float64 { return &v }

// ─── Technical ─────────────────────────────────────────────────────────

type TechnicalAnalysis struct {
	PageSpeed *PageSpeedResult `json:"pageSpeed,omitempty"`
	Mobile    *MobileResult    `json:"mobile,omitempty"`
	SSL       *SSLResult       `json:"ssl,omitempty"`
	Structure *StructureResult `json:"structure,omitempty"`
	Robots    *RobotsResult    `json:"robots,omitempty"`
	Sitemap   *SitemapResult   `json:"sitemap,omitempty"`
	Score     *float64         `json:"score,omitempty"`
	Issues    Issues           `json:"issues,omitempty"`
}

type PageSpeedResult struct {
	LoadTime        float64  `json:"loadTime"`
	Score           *float64 `json:"score,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type MobileResult struct {
	Responsive bool     `json:"responsive"`
	Score      *float64 `json:"score,omitempty"`
	Issues     Issues   `json:"issues,omitempty"`
}

type SSLResult struct {
	Enabled bool     `json:"enabled"`
	Score   *float64 `json:"score,omitempty"`
}

type StructureResult struct {
	ValidHTML bool     `json:"validHTML"`
	Score     *float64 `json:"score,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

type RobotsResult struct {
	Exists     bool   `json:"exists"`
	Accessible bool   `json:"accessible"`
	Issues     Issues `json:"issues,omitempty"`
}

type SitemapResult struct {
	Exists     bool   `json:"exists"`
	Accessible bool   `json:"accessible"`
	Issues     Issues `json:"issues,omitempty"`
}

// ─── Content ───────────────────────────────────────────────────────────

type ContentAnalysis struct {
	WordCount        int                `json:"wordCount"`
	ReadabilityScore *float64           `json:"readabilityScore,omitempty"`
	KeywordDensity   map[string]float64 `json:"keywordDensity,omitempty"`
	DuplicateContent *DuplicateContent  `json:"duplicateContent,omitempty"`
	ContentQuality   *ContentQuality    `json:"contentQuality,omitempty"`
	Score            *float64           `json:"score,omitempty"`
	Issues           Issues             `json:"issues,omitempty"`
}

type DuplicateContent struct {
	Percentage float64 `json:"percentage"`
	Issues     Issues  `json:"issues,omitempty"`
}

type ContentQuality struct {
	Score   *float64 `json:"score,omitempty"`
	Factors struct {
		Length     float64 `json:"length"`
		Uniqueness float64 `json:"uniqueness"`
		Structure  float64 `json:"structure"`
	} `json:"factors"`
}

// ─── On-page ───────────────────────────────────────────────────────────

type OnPageAnalysis struct {
	Title           *TextResult     `json:"title,omitempty"`
	MetaDescription *TextResult     `json:"metaDescription,omitempty"`
	Headings        *HeadingsResult `json:"headings,omitempty"`
	Images          *ImagesResult   `json:"images,omitempty"`
	Links           *LinksResult    `json:"links,omitempty"`

	// v2 sections.
	Favicon     *FaviconResult `json:"favicon,omitempty"`
	OpenGraph   *OpenGraph     `json:"openGraph,omitempty"`
	TwitterCard *TwitterCard   `json:"twitterCard,omitempty"`

	Score *float64 `json:"score,omitempty"`
}

// TextResult describes the page title or meta description.
type TextResult struct {
	Exists bool     `json:"exists"`
	Length int      `json:"length"`
	Text   string   `json:"text"`
	Score  *float64 `json:"score,omitempty"`
	Issues Issues   `json:"issues,omitempty"`
}

type HeadingsResult struct {
	H1Count   int      `json:"h1Count"`
	H2Count   int      `json:"h2Count"`
	Structure []string `json:"structure,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Issues    Issues   `json:"issues,omitempty"`
}

type ImagesResult struct {
	Total      int      `json:"total"`
	WithoutAlt int      `json:"withoutAlt"`
	Score      *float64 `json:"score,omitempty"`
	Issues     Issues   `json:"issues,omitempty"`
}

type LinksResult struct {
	Internal int      `json:"internal"`
	External int      `json:"external"`
	Broken   int      `json:"broken"`
	Score    *float64 `json:"score,omitempty"`
	Issues   Issues   `json:"issues,omitempty"`
}

type FaviconResult struct {
	Exists bool     `json:"exists"`
	URL    string   `json:"url,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	Issues Issues   `json:"issues,omitempty"`
}

type OpenGraph struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Image       string   `json:"image,omitempty"`
	URL         string   `json:"url,omitempty"`
	Type        string   `json:"type,omitempty"`
	SiteName    string   `json:"siteName,omitempty"`
	ImageWidth  int      `json:"imageWidth,omitempty"`
	ImageHeight int      `json:"imageHeight,omitempty"`
	ImageAlt    string   `json:"imageAlt,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Issues      Issues   `json:"issues,omitempty"`
}

type TwitterCard struct {
	Card        string   `json:"card,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Image       string   `json:"image,omitempty"`
	ImageAlt    string   `json:"imageAlt,omitempty"`
	Site        string   `json:"site,omitempty"`
	Creator     string   `json:"creator,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Issues      Issues   `json:"issues,omitempty"`
}
