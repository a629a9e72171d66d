package demobackend

// SamplePage is one page of the bundled sample site.
type SamplePage struct {
	Path        string
	Description string
	ContentType string
	Body        string
}

// SamplePages returns the bundled sample site: a well-optimized home page,
// a blog post with gaps, and a deliberately poor page.
func SamplePages() []SamplePage {
	return []SamplePage{
		homePage(),
		blogPage(),
		thinPage(),
		{Path: "/robots.txt", Description: "Crawler rules", ContentType: "text/plain", Body: robotsTxt},
		{Path: "/sitemap.xml", Description: "Sitemap", ContentType: "application/xml", Body: sitemapXML},
	}
}

const robotsTxt = `User-agent: *
Disallow: /private/

Sitemap: /sitemap.xml
`

const sitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>/</loc></url>
  <url><loc>/blog/seo-basics</loc></url>
</urlset>
`

// ===== HOME PAGE =====
func homePage() SamplePage {
	return SamplePage{
		Path:        "/",
		Description: "Home page with complete metadata",
		ContentType: "text/html; charset=utf-8",
		Body: `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Acme Gardening Supplies - Tools for Every Garden</title>
    <meta name="description" content="Hand tools, seeds and soil for home gardeners. Free delivery on orders over fifty dollars and friendly advice from our growers.">
    <link rel="icon" href="/favicon.ico">
    <meta property="og:title" content="Acme Gardening Supplies">
    <meta property="og:description" content="Tools, seeds and soil for home gardeners.">
    <meta property="og:image" content="/static/og.png">
    <meta property="og:url" content="/">
    <meta property="og:type" content="website">
    <meta name="twitter:card" content="summary_large_image">
    <meta name="twitter:title" content="Acme Gardening Supplies">
    <meta name="twitter:description" content="Tools, seeds and soil for home gardeners.">
</head>
<body>
    <h1>Gardening supplies for every season</h1>
    <nav>
        <a href="/">Home</a>
        <a href="/blog/seo-basics">Blog</a>
        <a href="https://example.org/partners">Partners</a>
    </nav>
    <h2>Tools</h2>
    <p>Our trowels, pruners and forks are forged from carbon steel and fitted with ash handles.
    Each tool is sharpened by hand before it ships. Spare blades are stocked for every model we sell.</p>
    <img src="/static/trowel.jpg" alt="Carbon steel trowel with an ash handle">
    <h2>Seeds</h2>
    <p>We grow our own seed stock on a small farm outside town. Germination rates are tested every spring.
    Packets list sowing depth, spacing and days to harvest in plain language.</p>
    <ul><li>Heirloom tomatoes</li><li>Runner beans</li><li>Wildflower mixes</li></ul>
    <h2>Soil and compost</h2>
    <p>Peat free compost, worm castings and a sandy loam blend for raised beds are delivered by the bag or by the pallet.
    Ask our growers which mix suits your plot. They answer every message within a day.</p>
    <img src="/static/compost.jpg" alt="Bags of peat free compost">
</body>
</html>`,
	}
}

// ===== BLOG PAGE =====
func blogPage() SamplePage {
	return SamplePage{
		Path:        "/blog/seo-basics",
		Description: "Blog post missing social metadata and some alt text",
		ContentType: "text/html; charset=utf-8",
		Body: `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Planting Calendar</title>
    <meta name="description" content="When to sow.">
</head>
<body>
    <h1>Planting calendar</h1>
    <h1>Spring</h1>
    <p>Sow peas and broad beans as soon as the soil can be worked. Cover early sowings with fleece on cold nights.</p>
    <img src="/static/peas.jpg">
    <img src="/static/beans.jpg" alt="">
    <h2>Summer</h2>
    <p>Keep sowing salad leaves every two weeks for a steady supply. Water in the evening.</p>
    <a href="/">Back to the shop</a>
</body>
</html>`,
	}
}

// ===== THIN PAGE =====
func thinPage() SamplePage {
	return SamplePage{
		Path:        "/private/thin",
		Description: "Poor page blocked by robots.txt",
		ContentType: "text/html",
		Body: `<html>
<head></head>
<body>
    <p>Coming soon.</p>
</body>
</html>`,
	}
}
