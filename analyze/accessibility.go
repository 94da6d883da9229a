package analyze

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/siteforge/siteforge/models"
)

type accessibilityResult struct {
	score           int
	issues          []models.Issue
	recommendations []string
}

func (r *accessibilityResult) flag(severity, message, recommendation string, deduction int) {
	r.issues = append(r.issues, models.Issue{
		Kind:     models.IssueAccessibility,
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

// auditAccessibility runs the static checks a DOM inspection can
// support: labels, names, landmarks, and document metadata. Contrast
// and focus-order need a rendering pass and are out of reach here.
func auditAccessibility(html string) (*accessibilityResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.NewSoftError(models.ErrCodeAnalysis, "parse HTML for accessibility audit", err)
	}

	res := &accessibilityResult{score: 100}

	if lang, ok := doc.Find("html").Attr("lang"); !ok || strings.TrimSpace(lang) == "" {
		res.flag("warning", "document declares no language", "set the lang attribute on <html>", 5)
	}

	imgs := doc.Find("img")
	if n := imgs.Length(); n > 0 {
		missing := 0
		imgs.Each(func(_ int, s *goquery.Selection) {
			if _, ok := s.Attr("alt"); !ok {
				missing++
			}
		})
		if missing > 0 {
			res.flag("error",
				fmt.Sprintf("%d of %d images lack an alt attribute", missing, n),
				"every <img> needs an alt attribute, empty for decorative images", min(15, missing*3))
		}
	}

	unlabeled := 0
	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); t == "hidden" || t == "submit" || t == "button" {
			return
		}
		if _, ok := s.Attr("aria-label"); ok {
			return
		}
		if _, ok := s.Attr("aria-labelledby"); ok {
			return
		}
		id, hasID := s.Attr("id")
		if hasID && doc.Find(fmt.Sprintf(`label[for=%q]`, id)).Length() > 0 {
			return
		}
		if s.ParentsFiltered("label").Length() > 0 {
			return
		}
		unlabeled++
	})
	if unlabeled > 0 {
		res.flag("error",
			fmt.Sprintf("%d form controls have no accessible label", unlabeled),
			"associate every form control with a label or aria-label", min(15, unlabeled*3))
	}

	nameless := 0
	doc.Find("button, a").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) != "" {
			return
		}
		if v, ok := s.Attr("aria-label"); ok && strings.TrimSpace(v) != "" {
			return
		}
		if s.Find("img[alt]").Length() > 0 {
			return
		}
		nameless++
	})
	if nameless > 0 {
		res.flag("warning",
			fmt.Sprintf("%d links or buttons have no accessible name", nameless),
			"give icon-only controls an aria-label", min(10, nameless*2))
	}

	if doc.Find("main, [role=main]").Length() == 0 {
		res.flag("info", "page declares no main landmark", "wrap primary content in <main>", 3)
	}
	if doc.Find("nav, [role=navigation]").Length() == 0 && doc.Find("a").Length() > 5 {
		res.flag("info", "page declares no navigation landmark", "wrap site navigation in <nav>", 2)
	}

	positiveTabindex := doc.Find("[tabindex]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("tabindex")
		return v != "0" && v != "-1" && !strings.HasPrefix(v, "-")
	}).Length()
	if positiveTabindex > 0 {
		res.flag("warning",
			fmt.Sprintf("%d elements use a positive tabindex", positiveTabindex),
			"positive tabindex values break natural focus order; use 0 or restructure the DOM", 5)
	}

	return res, nil
}
