package analyze

import (
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/siteforge/siteforge/models"
)

type securityResult struct {
	score           int
	issues          []models.Issue
	recommendations []string
}

func (r *securityResult) flag(severity, message, recommendation string, deduction int) {
	r.issues = append(r.issues, models.Issue{
		Kind:     models.IssueSecurity,
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

// securityHeaders lists the response headers the audit expects, with
// the deduction applied when absent.
var securityHeaders = []struct {
	name      string
	deduction int
	advice    string
}{
	{"Content-Security-Policy", 10, "set a Content-Security-Policy to contain script injection"},
	{"Strict-Transport-Security", 8, "enable HSTS so clients never downgrade to HTTP"},
	{"X-Content-Type-Options", 5, "set X-Content-Type-Options: nosniff"},
	{"X-Frame-Options", 5, "set X-Frame-Options or frame-ancestors to block clickjacking"},
	{"Referrer-Policy", 3, "set a Referrer-Policy"},
	{"Permissions-Policy", 2, "set a Permissions-Policy restricting powerful features"},
}

var (
	reHTTPRef = regexp.MustCompile(`(?i)(?:src|href)\s*=\s*["']http://[^"']+["']`)

	// Assignments of long opaque strings to credential-shaped names.
	reCredential = regexp.MustCompile(`(?i)["']?(?:api[_-]?key|secret|token|password|private[_-]?key)["']?\s*[:=]\s*["']([A-Za-z0-9+/_\-]{20,})["']`)

	reObfuscation = regexp.MustCompile(`eval\s*\(\s*(?:atob|unescape|String\.fromCharCode)\s*\(`)
)

// vulnerableLibraries maps detected technologies to the version below
// which known exploitable CVEs exist.
var vulnerableLibraries = map[string]struct {
	below  string
	advice string
}{
	"jQuery":    {"3.5.0", "jQuery before 3.5.0 is vulnerable to XSS via htmlPrefilter (CVE-2020-11022)"},
	"Bootstrap": {"4.3.1", "Bootstrap before 4.3.1 is vulnerable to XSS in tooltip/popover (CVE-2019-8331)"},
	"WordPress": {"5.8.3", "WordPress before 5.8.3 carries known SQL injection and XSS fixes"},
	"Angular":   {"1.8.0", "AngularJS before 1.8.0 has known sandbox escape issues"},
}

// auditSecurity evaluates transport security, response headers, content
// hygiene, and the detected stack against known-vulnerable versions.
func auditSecurity(finalURL string, headers http.Header, html string, techs []models.Technology) *securityResult {
	res := &securityResult{score: 100}

	overHTTPS := strings.HasPrefix(strings.ToLower(finalURL), "https://")
	if !overHTTPS {
		res.flag("critical", "page is served over plain HTTP", "serve the site over HTTPS", 25)
	}

	if headers != nil {
		for _, h := range securityHeaders {
			if h.name == "Strict-Transport-Security" && !overHTTPS {
				continue
			}
			if headers.Get(h.name) == "" {
				res.flag("warning", "missing response header "+h.name, h.advice, h.deduction)
			}
		}
	}

	if overHTTPS {
		if n := len(reHTTPRef.FindAllString(html, -1)); n > 0 {
			res.flag("error",
				fmt.Sprintf("%d mixed-content references load over HTTP", n),
				"load every subresource over HTTPS", min(15, n*3))
		}
	}

	if reObfuscation.MatchString(html) {
		res.flag("warning",
			"inline script uses eval over decoded strings",
			"obfuscated eval chains are a common injection marker; review the inline scripts", 10)
	}

	for _, m := range reCredential.FindAllStringSubmatch(html, -1) {
		if shannonEntropy(m[1]) >= 4.0 {
			res.flag("critical",
				"a credential-shaped high-entropy string is embedded in the page",
				"remove embedded secrets; rotate any exposed key", 20)
			break
		}
	}

	for _, tech := range techs {
		vuln, ok := vulnerableLibraries[tech.Name]
		if !ok || tech.Version == "" {
			continue
		}
		if versionLess(tech.Version, vuln.below) {
			res.flag("error",
				fmt.Sprintf("%s %s has known vulnerabilities", tech.Name, tech.Version),
				vuln.advice, 10)
		}
	}

	return res
}

// shannonEntropy returns bits of entropy per character. Random tokens
// sit near 5-6; English text near 4 or below.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := map[rune]int{}
	for _, r := range s {
		freq[r]++
	}
	n := float64(len([]rune(s)))
	var h float64
	for _, c := range freq {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// versionLess reports whether a sorts before b by numeric dotted
// components. Non-numeric suffixes are ignored.
func versionLess(a, b string) bool {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		va, vb := 0, 0
		if i < len(pa) {
			va = pa[i]
		}
		if i < len(pb) {
			vb = pb[i]
		}
		if va != vb {
			return va < vb
		}
	}
	return false
}

func versionParts(v string) []int {
	var parts []int
	for _, p := range strings.Split(v, ".") {
		digits := p
		for j, r := range p {
			if r < '0' || r > '9' {
				digits = p[:j]
				break
			}
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	return parts
}
