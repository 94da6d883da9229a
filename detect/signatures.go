package detect

import "regexp"

// Confidence contributed by each independent pass. Overlapping signals
// combine multiplicatively in mergeConfidence, capped at 100.
const (
	confHeader     = 70
	confGenerator  = 90
	confHTML       = 50
	confScript     = 55
	confBehavioral = 60
)

// signature describes how one technology shows itself across the three
// detection passes.
type signature struct {
	Name     string
	Category string // matches models.Technology.Category

	// Headers maps canonical header names to value patterns. An empty
	// pattern matches mere presence of the header.
	Headers map[string]*regexp.Regexp

	// Generator matches the content of <meta name="generator">. A match
	// with a capture group also yields the version.
	Generator *regexp.Regexp

	// HTML patterns match anywhere in the raw document.
	HTML []*regexp.Regexp

	// Scripts patterns match script src URLs.
	Scripts []*regexp.Regexp

	// Globals are runtime bindings observed by the behavioral pass.
	Globals []string
}

var signatures = []signature{
	// --- CMS / page builders ---
	{
		Name: "WordPress", Category: "cms",
		Generator: regexp.MustCompile(`(?i)WordPress\s*([\d.]+)?`),
		HTML: []*regexp.Regexp{
			regexp.MustCompile(`/wp-content/`),
			regexp.MustCompile(`/wp-includes/`),
		},
		Scripts: []*regexp.Regexp{regexp.MustCompile(`/wp-(content|includes)/`)},
		Globals: []string{"wp", "wpApiSettings"},
		Headers: map[string]*regexp.Regexp{"X-Pingback": regexp.MustCompile(`xmlrpc\.php`)},
	},
	{
		Name: "Elementor", Category: "page-builder",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`elementor-(section|widget|element)`)},
		Scripts: []*regexp.Regexp{regexp.MustCompile(`/elementor/`)},
		Globals: []string{"elementorFrontend"},
	},
	{
		Name: "Divi", Category: "page-builder",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`et_pb_(section|row|column|module)`)},
		Globals: []string{"et_pb_custom"},
	},
	{
		Name: "Gutenberg", Category: "page-builder",
		HTML: []*regexp.Regexp{
			regexp.MustCompile(`<!-- wp:`),
			regexp.MustCompile(`wp-block-`),
		},
	},
	{
		Name: "Wix", Category: "cms",
		Generator: regexp.MustCompile(`(?i)Wix\.com`),
		HTML:      []*regexp.Regexp{regexp.MustCompile(`wix-code|wixui-|_wixCssStates`)},
		Scripts:   []*regexp.Regexp{regexp.MustCompile(`static\.parastorage\.com`)},
		Globals:   []string{"Wix"},
		Headers:   map[string]*regexp.Regexp{"X-Wix-Request-Id": nil},
	},
	{
		Name: "Squarespace", Category: "cms",
		Generator: regexp.MustCompile(`(?i)Squarespace`),
		Scripts:   []*regexp.Regexp{regexp.MustCompile(`squarespace\.com|squarespace-cdn\.com`)},
		Globals:   []string{"Squarespace"},
	},
	{
		Name: "Shopify", Category: "cms",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`cdn\.shopify\.com|Shopify\.theme`)},
		Globals: []string{"Shopify"},
		Headers: map[string]*regexp.Regexp{"X-Shopify-Stage": nil, "X-Shopid": nil},
	},
	{
		Name: "Webflow", Category: "cms",
		Generator: regexp.MustCompile(`(?i)Webflow`),
		HTML:      []*regexp.Regexp{regexp.MustCompile(`w-nav|w-container|data-wf-page`)},
		Scripts:   []*regexp.Regexp{regexp.MustCompile(`website-files\.com`)},
		Globals:   []string{"Webflow"},
	},
	{
		Name: "Framer", Category: "cms",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`framerusercontent\.com|__framer`)},
		Scripts: []*regexp.Regexp{regexp.MustCompile(`framerusercontent\.com`)},
	},
	{
		Name: "Drupal", Category: "cms",
		Generator: regexp.MustCompile(`(?i)Drupal\s*([\d.]+)?`),
		HTML:      []*regexp.Regexp{regexp.MustCompile(`/sites/default/files/`)},
		Headers:   map[string]*regexp.Regexp{"X-Drupal-Cache": nil, "X-Generator": regexp.MustCompile(`(?i)Drupal`)},
	},
	{
		Name: "Joomla", Category: "cms",
		Generator: regexp.MustCompile(`(?i)Joomla!?\s*([\d.]+)?`),
		HTML:      []*regexp.Regexp{regexp.MustCompile(`/media/jui/|/components/com_`)},
	},

	// --- JS frameworks / libraries ---
	{
		Name: "React", Category: "framework",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`data-reactroot|data-reactid`)},
		Globals: []string{"React"},
	},
	{
		Name: "Next.js", Category: "framework",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`id="__next"|/_next/static/`)},
		Scripts: []*regexp.Regexp{regexp.MustCompile(`/_next/static/`)},
		Globals: []string{"__NEXT_DATA__"},
		Headers: map[string]*regexp.Regexp{"X-Powered-By": regexp.MustCompile(`(?i)Next\.js\s*([\d.]+)?`)},
	},
	{
		Name: "Gatsby", Category: "framework",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`id="___gatsby"`)},
		Globals: []string{"___gatsby"},
	},
	{
		Name: "Vue.js", Category: "framework",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`data-v-[0-9a-f]{8}`)},
		Globals: []string{"Vue", "__NUXT__"},
	},
	{
		Name: "Angular", Category: "framework",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`ng-version="([\d.]+)"|ng-app`)},
		Globals: []string{"ng", "angular"},
	},
	{
		Name: "jQuery", Category: "library",
		Scripts: []*regexp.Regexp{regexp.MustCompile(`jquery[.-]?([\d.]+)?(\.min)?\.js`)},
		Globals: []string{"jQuery"},
	},
	{
		Name: "Bootstrap", Category: "library",
		HTML:    []*regexp.Regexp{regexp.MustCompile(`class="[^"]*\b(container-fluid|navbar-expand|col-(sm|md|lg|xl)-\d)`)},
		Scripts: []*regexp.Regexp{regexp.MustCompile(`bootstrap(\.bundle)?(\.min)?\.js`)},
	},
	{
		Name: "Tailwind CSS", Category: "library",
		HTML: []*regexp.Regexp{regexp.MustCompile(`class="[^"]*\b(md:|lg:|hover:)[a-z-]+`)},
	},

	// --- servers / hosting / CDN ---
	{
		Name: "Nginx", Category: "server",
		Headers: map[string]*regexp.Regexp{"Server": regexp.MustCompile(`(?i)nginx/?([\d.]+)?`)},
	},
	{
		Name: "Apache", Category: "server",
		Headers: map[string]*regexp.Regexp{"Server": regexp.MustCompile(`(?i)Apache/?([\d.]+)?`)},
	},
	{
		Name: "LiteSpeed", Category: "server",
		Headers: map[string]*regexp.Regexp{"Server": regexp.MustCompile(`(?i)LiteSpeed`)},
	},
	{
		Name: "Cloudflare", Category: "cdn",
		Headers: map[string]*regexp.Regexp{
			"Server":     regexp.MustCompile(`(?i)cloudflare`),
			"Cf-Ray":     nil,
			"Cf-Cache-Status": nil,
		},
	},
	{
		Name: "Fastly", Category: "cdn",
		Headers: map[string]*regexp.Regexp{"X-Served-By": regexp.MustCompile(`(?i)cache-.*-[A-Z]{3}`), "X-Fastly-Request-Id": nil},
	},
	{
		Name: "Amazon CloudFront", Category: "cdn",
		Headers: map[string]*regexp.Regexp{"Via": regexp.MustCompile(`(?i)cloudfront`), "X-Amz-Cf-Id": nil},
	},
	{
		Name: "Netlify", Category: "hosting",
		Headers: map[string]*regexp.Regexp{"Server": regexp.MustCompile(`(?i)Netlify`), "X-Nf-Request-Id": nil},
	},
	{
		Name: "Vercel", Category: "hosting",
		Headers: map[string]*regexp.Regexp{"Server": regexp.MustCompile(`(?i)Vercel`), "X-Vercel-Id": nil},
	},

	// --- analytics ---
	{
		Name: "Google Analytics", Category: "analytics",
		Scripts: []*regexp.Regexp{regexp.MustCompile(`google-analytics\.com/analytics\.js|googletagmanager\.com/gtag/js`)},
		Globals: []string{"ga", "gtag"},
	},
	{
		Name: "Google Tag Manager", Category: "analytics",
		Scripts: []*regexp.Regexp{regexp.MustCompile(`googletagmanager\.com/gtm\.js`)},
		Globals: []string{"dataLayer"},
	},
	{
		Name: "Meta Pixel", Category: "analytics",
		Scripts: []*regexp.Regexp{regexp.MustCompile(`connect\.facebook\.net/[^/]+/fbevents\.js`)},
		Globals: []string{"fbq"},
	},
}
