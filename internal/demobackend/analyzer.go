package demobackend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"

	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/utils"
	"github.com/scanzie/smeal/internal/webclient"
)

// Page is a fetched and parsed target.
type Page struct {
	URL      string
	Status   int
	Headers  http.Header
	Body     []byte
	LoadTime time.Duration
	Doc      *goquery.Document
}

// Title returns the trimmed <title> text.
func (p *Page) Title() string {
	return strings.TrimSpace(p.Doc.Find("title").First().Text())
}

// Analyzer runs the three category analyses against live pages.
type Analyzer struct {
	web       webclient.WebClient
	userAgent string
	logger    logging.Logger
	now       func() time.Time
}

func NewAnalyzer(web webclient.WebClient, userAgent string, logger logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Analyzer{
		web:       web,
		userAgent: userAgent,
		logger:    logger.With(logging.Field{Key: "component", Value: "analyzer"}),
		now:       time.Now,
	}
}

// Fetch downloads and parses target. Non-2xx answers are errors.
func (a *Analyzer) Fetch(ctx context.Context, target string) (*Page, error) {
	start := a.now()
	resp, err := a.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}
	return &Page{
		URL:      target,
		Status:   resp.StatusCode,
		Headers:  resp.Headers,
		Body:     resp.Body,
		LoadTime: a.now().Sub(start),
		Doc:      doc,
	}, nil
}

func (a *Analyzer) get(ctx context.Context, target string) (*webclient.Response, error) {
	h := http.Header{}
	if a.userAgent != "" {
		h.Set("User-Agent", a.userAgent)
	}
	return a.web.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: target, Headers: h})
}

// ─── On-page ───────────────────────────────────────────────────────────

func (a *Analyzer) OnPage(p *Page) *model.OnPageAnalysis {
	op := &model.OnPageAnalysis{
		Title:           titleResult(p.Title()),
		MetaDescription: metaDescriptionResult(metaContent(p.Doc, "name", "description")),
		Headings:        headingsResult(p.Doc),
		Images:          imagesResult(p.Doc),
		Links:           linksResult(p.Doc, p.URL),
		Favicon:         faviconResult(p.Doc, p.URL),
		OpenGraph:       openGraph(p.Doc),
		TwitterCard:     twitterCard(p.Doc),
	}
	op.Score = model.Score(average(
		*op.Title.Score, *op.MetaDescription.Score, *op.Headings.Score, *op.Images.Score, *op.Links.Score,
	))
	return op
}

func titleResult(title string) *model.TextResult {
	n := len([]rune(title))
	r := &model.TextResult{Exists: title != "", Length: n, Text: title}
	switch {
	case n == 0:
		r.Score = model.Score(0)
	case n >= 30 && n <= 60:
		r.Score = model.Score(100)
	default:
		r.Score = model.Score(70)
	}
	return r
}

func metaDescriptionResult(desc string) *model.TextResult {
	n := len([]rune(desc))
	r := &model.TextResult{Exists: desc != "", Length: n, Text: desc}
	switch {
	case n == 0:
		r.Score = model.Score(0)
	case n >= 70 && n <= 160:
		r.Score = model.Score(100)
	default:
		r.Score = model.Score(60)
	}
	return r
}

func headingsResult(doc *goquery.Document) *model.HeadingsResult {
	r := &model.HeadingsResult{
		H1Count: doc.Find("h1").Length(),
		H2Count: doc.Find("h2").Length(),
	}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		r.Structure = append(r.Structure, goquery.NodeName(s)+": "+strings.TrimSpace(s.Text()))
	})
	switch {
	case r.H1Count == 1:
		r.Score = model.Score(100)
	case r.H1Count > 1:
		r.Score = model.Score(60)
		r.Issues = append(r.Issues, fmt.Sprintf("Page has %d H1 headings; use exactly one", r.H1Count))
	default:
		r.Score = model.Score(20)
		r.Issues = append(r.Issues, "Page has no H1 heading")
	}
	if r.H2Count == 0 {
		r.Issues = append(r.Issues, "No H2 headings to structure the content")
	}
	return r
}

func imagesResult(doc *goquery.Document) *model.ImagesResult {
	r := &model.ImagesResult{}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		r.Total++
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			r.WithoutAlt++
		}
	})
	if r.Total == 0 {
		r.Score = model.Score(100)
		return r
	}
	r.Score = model.Score(100 * float64(r.Total-r.WithoutAlt) / float64(r.Total))
	if r.WithoutAlt > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d of %d images have no alt text", r.WithoutAlt, r.Total))
	}
	return r
}

func linksResult(doc *goquery.Document, pageURL string) *model.LinksResult {
	r := &model.LinksResult{}
	base, _ := url.Parse(pageURL)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "tel:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			r.Broken++
			return
		}
		abs := ref.String()
		if base != nil {
			abs = base.ResolveReference(ref).String()
		}
		if utils.SameHost(abs, pageURL) {
			r.Internal++
		} else {
			r.External++
		}
	})
	switch {
	case r.Internal == 0 && r.External == 0:
		r.Score = model.Score(30)
		r.Issues = append(r.Issues, "Page has no links")
	case r.Internal == 0:
		r.Score = model.Score(60)
		r.Issues = append(r.Issues, "No internal links to the rest of the site")
	default:
		r.Score = model.Score(100)
	}
	if r.Broken > 0 {
		*r.Score = max(*r.Score-float64(10*r.Broken), 0)
		r.Issues = append(r.Issues, fmt.Sprintf("%d malformed links", r.Broken))
	}
	return r
}

func faviconResult(doc *goquery.Document, pageURL string) *model.FaviconResult {
	r := &model.FaviconResult{}
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		if !strings.Contains(strings.ToLower(rel), "icon") {
			return true
		}
		href, _ := s.Attr("href")
		r.Exists = href != ""
		r.URL = resolve(pageURL, href)
		return false
	})
	if r.Exists {
		r.Score = model.Score(100)
	} else {
		r.Score = model.Score(0)
		r.Issues = append(r.Issues, "No favicon declared")
	}
	return r
}

func openGraph(doc *goquery.Document) *model.OpenGraph {
	og := &model.OpenGraph{
		Title:       metaContent(doc, "property", "og:title"),
		Description: metaContent(doc, "property", "og:description"),
		Image:       metaContent(doc, "property", "og:image"),
		URL:         metaContent(doc, "property", "og:url"),
		Type:        metaContent(doc, "property", "og:type"),
		SiteName:    metaContent(doc, "property", "og:site_name"),
		ImageAlt:    metaContent(doc, "property", "og:image:alt"),
		Locale:      metaContent(doc, "property", "og:locale"),
	}
	og.Score, og.Issues = presenceScore(map[string]string{
		"og:title": og.Title, "og:description": og.Description, "og:image": og.Image, "og:url": og.URL,
	})
	return og
}

func twitterCard(doc *goquery.Document) *model.TwitterCard {
	tc := &model.TwitterCard{
		Card:        metaContent(doc, "name", "twitter:card"),
		Title:       metaContent(doc, "name", "twitter:title"),
		Description: metaContent(doc, "name", "twitter:description"),
		Image:       metaContent(doc, "name", "twitter:image"),
		ImageAlt:    metaContent(doc, "name", "twitter:image:alt"),
		Site:        metaContent(doc, "name", "twitter:site"),
		Creator:     metaContent(doc, "name", "twitter:creator"),
	}
	tc.Score, tc.Issues = presenceScore(map[string]string{
		"twitter:card": tc.Card, "twitter:title": tc.Title, "twitter:description": tc.Description,
	})
	return tc
}

// presenceScore scores the share of required tags that are set.
func presenceScore(required map[string]string) (*float64, model.Issues) {
	var missing []string
	for name, v := range required {
		if v == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	var issues model.Issues
	for _, m := range missing {
		issues = append(issues, "Missing "+m)
	}
	return model.Score(100 * float64(len(required)-len(missing)) / float64(len(required))), issues
}

func metaContent(doc *goquery.Document, attr, name string) string {
	var out string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr(attr); strings.EqualFold(v, name) {
			out, _ = s.Attr("content")
			out = strings.TrimSpace(out)
			return false
		}
		return true
	})
	return out
}

// ─── Content ───────────────────────────────────────────────────────────

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "from": {},
	"your": {}, "you": {}, "are": {}, "was": {}, "have": {}, "has": {}, "not": {},
	"but": {}, "all": {}, "can": {}, "our": {}, "will": {}, "into": {}, "about": {},
}

func (a *Analyzer) Content(p *Page) *model.ContentAnalysis {
	body := p.Doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	text := body.Text()
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	c := &model.ContentAnalysis{
		WordCount:        len(words),
		ReadabilityScore: model.Score(readability(text, words)),
		KeywordDensity:   keywordDensity(words, 5),
		ContentQuality:   &model.ContentQuality{},
	}

	distinct := map[string]struct{}{}
	for _, w := range words {
		distinct[w] = struct{}{}
	}
	q := c.ContentQuality
	q.Factors.Length = min(float64(len(words))/600, 1) * 100
	if len(words) > 0 {
		q.Factors.Uniqueness = 100 * float64(len(distinct)) / float64(len(words))
	}
	blocks := p.Doc.Find("p, h2, h3, ul, ol").Length()
	q.Factors.Structure = min(float64(blocks)/8, 1) * 100
	q.Score = model.Score(average(q.Factors.Length, q.Factors.Uniqueness, q.Factors.Structure))

	c.Score = model.Score(average(q.Factors.Length, *q.Score, *c.ReadabilityScore))

	if c.WordCount < 300 {
		c.Issues = append(c.Issues, fmt.Sprintf("Content is thin (%d words); aim for at least 300", c.WordCount))
	}
	if *c.ReadabilityScore < 30 {
		c.Issues = append(c.Issues, "Text is hard to read; use shorter sentences and words")
	}
	if q.Factors.Structure < 50 {
		c.Issues = append(c.Issues, "Break the text into more paragraphs, lists or subheadings")
	}
	return c
}

// readability is the Flesch reading ease clamped to 0..100, with syllables
// approximated by vowel groups.
func readability(text string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	sentences := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	nSentences := 0
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			nSentences++
		}
	}
	nSentences = max(nSentences, 1)
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}
	score := 206.835 - 1.015*float64(len(words))/float64(nSentences) - 84.6*float64(syllables)/float64(len(words))
	return min(max(score, 0), 100)
}

func countSyllables(word string) int {
	n, prevVowel := 0, false
	for _, r := range word {
		v := strings.ContainsRune("aeiouy", r)
		if v && !prevVowel {
			n++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && n > 1 {
		n--
	}
	return max(n, 1)
}

func keywordDensity(words []string, top int) map[string]float64 {
	if len(words) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, w := range words {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		counts[w]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > top {
		keys = keys[:top]
	}
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		out[k] = 100 * float64(counts[k]) / float64(len(words))
	}
	return out
}

// ─── Technical ─────────────────────────────────────────────────────────

// Technical checks transport, speed, markup and crawler files. robots.txt
// and the sitemap are fetched concurrently.
func (a *Analyzer) Technical(ctx context.Context, p *Page) *model.TechnicalAnalysis {
	t := &model.TechnicalAnalysis{
		SSL:       sslResult(p.URL),
		PageSpeed: pageSpeedResult(p.LoadTime),
		Mobile:    mobileResult(p.Doc),
		Structure: structureResult(p),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.Robots = a.robots(gctx, p.URL)
		return nil
	})
	g.Go(func() error {
		t.Sitemap = a.sitemap(gctx, p.URL)
		return nil
	})
	_ = g.Wait()

	crawl := []float64{0, 0}
	if t.Robots.Exists && t.Robots.Accessible {
		crawl[0] = 100
	}
	if t.Sitemap.Exists && t.Sitemap.Accessible {
		crawl[1] = 100
	}
	t.Score = model.Score(average(*t.SSL.Score, *t.PageSpeed.Score, *t.Mobile.Score, *t.Structure.Score, crawl[0], crawl[1]))

	if !t.SSL.Enabled {
		t.Issues = append(t.Issues, "Site is not served over HTTPS")
	}
	t.Issues = append(t.Issues, t.Robots.Issues...)
	t.Issues = append(t.Issues, t.Sitemap.Issues...)
	return t
}

func sslResult(pageURL string) *model.SSLResult {
	u, err := url.Parse(pageURL)
	r := &model.SSLResult{Enabled: err == nil && u.Scheme == "https"}
	if r.Enabled {
		r.Score = model.Score(100)
	} else {
		r.Score = model.Score(0)
	}
	return r
}

func pageSpeedResult(load time.Duration) *model.PageSpeedResult {
	r := &model.PageSpeedResult{LoadTime: load.Seconds()}
	switch {
	case load < time.Second:
		r.Score = model.Score(100)
	case load < 2500*time.Millisecond:
		r.Score = model.Score(80)
		r.Recommendations = append(r.Recommendations, "Reduce server response time")
	case load < 4*time.Second:
		r.Score = model.Score(50)
		r.Recommendations = append(r.Recommendations, "Reduce server response time", "Compress and cache static assets")
	default:
		r.Score = model.Score(20)
		r.Recommendations = append(r.Recommendations, "Page takes over 4s to load; profile the backend and trim page weight")
	}
	return r
}

func mobileResult(doc *goquery.Document) *model.MobileResult {
	vp := metaContent(doc, "name", "viewport")
	r := &model.MobileResult{Responsive: strings.Contains(vp, "width=device-width")}
	switch {
	case r.Responsive:
		r.Score = model.Score(100)
	case vp != "":
		r.Score = model.Score(60)
		r.Issues = append(r.Issues, "Viewport does not use width=device-width")
	default:
		r.Score = model.Score(30)
		r.Issues = append(r.Issues, "No viewport meta tag")
	}
	return r
}

func structureResult(p *Page) *model.StructureResult {
	r := &model.StructureResult{}
	head := bytes.ToLower(bytes.TrimSpace(p.Body))
	if !bytes.HasPrefix(head, []byte("<!doctype html")) {
		r.Errors = append(r.Errors, "Missing <!DOCTYPE html>")
	}
	if lang, _ := p.Doc.Find("html").Attr("lang"); lang == "" {
		r.Errors = append(r.Errors, "Missing lang attribute on <html>")
	}
	if p.Doc.Find("head").Length() == 0 || p.Doc.Find("meta[charset]").Length() == 0 {
		r.Errors = append(r.Errors, "Missing charset declaration")
	}
	r.ValidHTML = len(r.Errors) == 0
	r.Score = model.Score(max(100-float64(30*len(r.Errors)), 0))
	return r
}

func (a *Analyzer) robots(ctx context.Context, pageURL string) *model.RobotsResult {
	r := &model.RobotsResult{}
	resp, err := a.get(ctx, siteFile(pageURL, "/robots.txt"))
	if err != nil {
		a.logger.Warn("fetching robots.txt", logging.Field{Key: "url", Value: pageURL}, logging.Field{Key: "error", Value: err})
		r.Issues = append(r.Issues, "robots.txt could not be fetched")
		return r
	}
	r.Exists = resp.StatusCode == http.StatusOK
	if !r.Exists {
		r.Issues = append(r.Issues, "No robots.txt found")
		return r
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		r.Issues = append(r.Issues, "robots.txt could not be parsed")
		return r
	}
	path := "/"
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" {
		path = u.Path
	}
	r.Accessible = data.TestAgent(path, a.userAgent)
	if !r.Accessible {
		r.Issues = append(r.Issues, "robots.txt blocks crawlers from this page")
	}
	return r
}

func (a *Analyzer) sitemap(ctx context.Context, pageURL string) *model.SitemapResult {
	r := &model.SitemapResult{}
	resp, err := a.get(ctx, siteFile(pageURL, "/sitemap.xml"))
	if err != nil {
		r.Issues = append(r.Issues, "sitemap.xml could not be fetched")
		return r
	}
	r.Exists = resp.StatusCode == http.StatusOK
	if !r.Exists {
		r.Issues = append(r.Issues, "No sitemap.xml found")
		return r
	}
	r.Accessible = bytes.Contains(resp.Body, []byte("<urlset")) || bytes.Contains(resp.Body, []byte("<sitemapindex"))
	if !r.Accessible {
		r.Issues = append(r.Issues, "sitemap.xml is not a valid sitemap")
	}
	return r
}

func siteFile(pageURL, path string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return path
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}).String()
}

func resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func average(xs ...float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
