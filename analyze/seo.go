package analyze

import (
	"fmt"
	nurl "net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/siteforge/siteforge/models"
)

// seoResult carries the SEO audit outcome: score plus the issues and
// recommendations that explain it.
type seoResult struct {
	score           int
	issues          []models.Issue
	recommendations []string
}

func (r *seoResult) flag(severity, message, recommendation string, deduction int) {
	r.issues = append(r.issues, models.Issue{
		Kind:     models.IssueSEO,
		Severity: severity,
		Message:  message,
	})
	if recommendation != "" {
		r.recommendations = append(r.recommendations, recommendation)
	}
	r.score -= deduction
	if r.score < 0 {
		r.score = 0
	}
}

// auditSEO checks the document against on-page SEO baselines. Each
// failed check deducts from a starting score of 100.
func auditSEO(pageURL, html string) (*seoResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.NewSoftError(models.ErrCodeAnalysis, "parse HTML for SEO audit", err)
	}

	res := &seoResult{score: 100}

	// Length bounds count characters, not bytes; CJK titles would
	// otherwise trip the upper bound at a third of the real length.
	title := strings.TrimSpace(doc.Find("head title").First().Text())
	titleLen := utf8.RuneCountInString(title)
	switch {
	case title == "":
		res.flag("error", "page has no <title>", "add a descriptive title of 10-60 characters", 15)
	case titleLen < 10:
		res.flag("warning", fmt.Sprintf("title is only %d characters", titleLen), "expand the title to at least 10 characters", 5)
	case titleLen > 60:
		res.flag("warning", fmt.Sprintf("title is %d characters and will truncate in results", titleLen), "shorten the title to 60 characters or fewer", 5)
	}

	desc, hasDesc := doc.Find(`head meta[name="description"]`).First().Attr("content")
	desc = strings.TrimSpace(desc)
	descLen := utf8.RuneCountInString(desc)
	switch {
	case !hasDesc || desc == "":
		res.flag("error", "page has no meta description", "add a meta description of 50-160 characters", 10)
	case descLen < 50:
		res.flag("warning", fmt.Sprintf("meta description is only %d characters", descLen), "expand the meta description to at least 50 characters", 5)
	case descLen > 160:
		res.flag("warning", fmt.Sprintf("meta description is %d characters and will truncate", descLen), "shorten the meta description to 160 characters or fewer", 3)
	}

	h1s := doc.Find("h1").Length()
	switch {
	case h1s == 0:
		res.flag("error", "page has no <h1>", "add exactly one <h1> naming the page topic", 10)
	case h1s > 1:
		res.flag("warning", fmt.Sprintf("page has %d <h1> elements", h1s), "keep a single <h1> and demote the rest", 5)
	}
	if skipped := skippedHeadingLevel(doc); skipped != "" {
		res.flag("warning", "heading hierarchy skips a level at "+skipped, "keep heading levels sequential", 3)
	}

	imgs := doc.Find("img")
	if n := imgs.Length(); n > 0 {
		missing := 0
		imgs.Each(func(_ int, s *goquery.Selection) {
			if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
				missing++
			}
		})
		if missing > 0 {
			res.flag("warning",
				fmt.Sprintf("%d of %d images have no alt text", missing, n),
				"add alt text to every content image", min(10, missing*2))
		}
	}

	if doc.Find(`head link[rel="canonical"]`).Length() == 0 {
		res.flag("info", "page declares no canonical URL", "add a rel=canonical link", 3)
	}
	if doc.Find(`head meta[name="viewport"]`).Length() == 0 {
		res.flag("warning", "page declares no viewport meta", "add a responsive viewport meta tag", 5)
	}
	if lang, ok := doc.Find("html").Attr("lang"); !ok || strings.TrimSpace(lang) == "" {
		res.flag("info", "html element declares no lang attribute", "declare the document language", 2)
	}
	if doc.Find(`script[type="application/ld+json"]`).Length() == 0 {
		res.flag("info", "page carries no structured data", "add JSON-LD structured data for rich results", 3)
	}
	if doc.Find(`head meta[property^="og:"]`).Length() == 0 {
		res.flag("info", "page has no Open Graph tags", "add og:title, og:description and og:image", 2)
	}

	// Readability-extracted body text, so nav chrome and footers do not
	// count toward content length.
	if words := contentWordCount(pageURL, html); words >= 0 && words < 300 {
		res.flag("warning",
			fmt.Sprintf("main content is only %d words", words),
			"thin content ranks poorly; aim for 300+ words of primary content", 5)
	}

	return res, nil
}

// skippedHeadingLevel returns a description of the first heading jump
// (e.g. "h2 to h4"), or empty when the hierarchy is sequential.
func skippedHeadingLevel(doc *goquery.Document) string {
	prev := 0
	skipped := ""
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if skipped != "" {
			return
		}
		level := int(goquery.NodeName(s)[1] - '0')
		if prev > 0 && level > prev+1 {
			skipped = fmt.Sprintf("h%d to h%d", prev, level)
		}
		prev = level
	})
	return skipped
}

// contentWordCount extracts the primary content and counts its words.
// Returns -1 when extraction fails; the caller skips the check rather
// than reporting on chrome text.
func contentWordCount(pageURL, html string) int {
	parsed, err := nurl.Parse(pageURL)
	if err != nil {
		return -1
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return -1
	}
	return len(strings.Fields(article.TextContent))
}
