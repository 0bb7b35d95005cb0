// Package classify provides pure page-content detectors used to decide
// whether a fetch was blocked, needs a heavier strategy, or hit a
// procurement page at all.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

// MinTextLength is the smallest extracted-text size considered a real page.
const MinTextLength = 100

// DefaultMaxTextLength caps extracted text for storage.
const DefaultMaxTextLength = 50000

var cloudflareMarkers = []string{
	"just a moment...",
	"checking your browser",
	"ddos protection by cloudflare",
	"cf-browser-verification",
	"challenge-platform",
	"__cf_chl",
}

var captchaMarkers = []string{
	"recaptcha",
	"hcaptcha",
	"captcha",
	"i'm not a robot",
	"verify you are human",
}

var authMarkers = []string{
	"login",
	"sign in",
	"log in",
	"authentication required",
	"please sign in",
	"access denied",
	"unauthorized",
}

var errorPageMarkers = []string{
	"404 not found",
	"page not found",
	"500 internal server error",
	"service unavailable",
	"an error occurred",
}

var spaMarkers = []string{
	"data-reactroot",
	"__next_data__",
	"window.__initial_state__",
}

var spaRootSelectors = []string{
	"div#root",
	"div#app",
	"div#__next",
}

var loadingMarkers = []string{
	"loading...",
	"please wait",
	"please enable javascript",
	"you need to enable javascript",
}

var procurementKeywords = []string{
	"rfp",
	"rfq",
	"bid",
	"proposal",
	"procurement",
	"solicitation",
	"contract",
	"tender",
	"opportunity",
	"vendor",
}

var listKeywords = []string{
	"results",
	"search",
	"opportunities",
	"current bids",
	"open bids",
}

// IsCloudflareChallenge reports whether html/title carry a Cloudflare
// challenge fingerprint.
func IsCloudflareChallenge(html, title string) bool {
	return containsAny(strings.ToLower(html+" "+title), cloudflareMarkers)
}

// IsCaptcha reports whether the page embeds a CAPTCHA widget.
func IsCaptcha(html string) bool {
	return containsAny(strings.ToLower(html), captchaMarkers)
}

// RequiresAuth reports whether the page sits behind an auth wall. A 401 or
// 403 status is decisive on its own.
func RequiresAuth(html string, statusCode int) bool {
	if statusCode == 401 || statusCode == 403 {
		return true
	}
	return containsAny(strings.ToLower(html), authMarkers)
}

// RequiresJavaScript reports whether the page is client-rendered: lots of
// markup with almost no visible text, or known SPA fingerprints.
func RequiresJavaScript(html string, extractedTextLen int) bool {
	if len(html) > 5000 && extractedTextLen < 500 {
		return true
	}
	lower := strings.ToLower(html)
	if containsAny(lower, spaMarkers) || containsAny(lower, loadingMarkers) {
		return true
	}
	return hasSPARoot(html)
}

// hasSPARoot looks for the bare mount-point divs SPA frameworks render into.
// goquery tolerates attribute order and quoting variants that a substring
// match would miss.
func hasSPARoot(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range spaRootSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// DetectPageType classifies page intent. The priority order is load-bearing:
// a Cloudflare interstitial that mentions "opportunity" is still a
// cloudflare-challenge, never a procurement-list.
func DetectPageType(html string, statusCode, extractedTextLen int, title string) scraper.PageType {
	lower := strings.ToLower(html)
	switch {
	case IsCloudflareChallenge(html, title):
		return scraper.PageTypeCloudflare
	case IsCaptcha(html):
		return scraper.PageTypeCaptcha
	case statusCode >= 400 || containsAny(lower, errorPageMarkers):
		return scraper.PageTypeError
	case RequiresAuth(html, statusCode):
		return scraper.PageTypeLogin
	case extractedTextLen < MinTextLength:
		return scraper.PageTypeEmpty
	case containsAny(lower, procurementKeywords):
		if containsAny(lower, listKeywords) {
			return scraper.PageTypeProcurementList
		}
		return scraper.PageTypeProcurementDetail
	default:
		return scraper.PageTypeUnknown
	}
}

var (
	scriptRe   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptRe = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`\s+`)
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// ExtractText strips markup down to visible text, capped at max bytes. The
// cut backs up to a rune boundary so the output is always valid UTF-8. Zero
// or negative max applies DefaultMaxTextLength.
func ExtractText(html string, max int) string {
	if max <= 0 {
		max = DefaultMaxTextLength
	}
	text := scriptRe.ReplaceAllString(html, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = noscriptRe.ReplaceAllString(text, " ")
	text = commentRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = entityReplacer.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// Title returns the page <title> text, or "".
func Title(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(entityReplacer.Replace(m[1]), " "))
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
