package classify

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

func TestIsCloudflareChallenge(t *testing.T) {
	t.Parallel()

	require.True(t, IsCloudflareChallenge("<html>Checking your browser before accessing</html>", ""))
	require.True(t, IsCloudflareChallenge("<div class=\"challenge-platform\"></div>", ""))
	require.True(t, IsCloudflareChallenge("<html></html>", "Just a moment..."))
	require.False(t, IsCloudflareChallenge("<html><p>City of Austin bids</p></html>", "Bids"))
}

func TestIsCaptcha(t *testing.T) {
	t.Parallel()

	require.True(t, IsCaptcha(`<div class="g-recaptcha"></div>`))
	require.True(t, IsCaptcha("please verify you are human"))
	require.False(t, IsCaptcha("<p>open solicitations</p>"))
}

func TestRequiresAuth_StatusCodeIsDecisive(t *testing.T) {
	t.Parallel()

	require.True(t, RequiresAuth("<p>anything</p>", 401))
	require.True(t, RequiresAuth("<p>anything</p>", 403))
	require.True(t, RequiresAuth("<p>Please sign in to continue</p>", 200))
	require.False(t, RequiresAuth("<p>current bid opportunities</p>", 200))
}

func TestRequiresJavaScript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		html    string
		textLen int
		want    bool
	}{
		{
			name:    "big markup almost no text",
			html:    "<div>" + strings.Repeat("<span></span>", 600) + "</div>",
			textLen: 50,
			want:    true,
		},
		{
			name:    "react root",
			html:    `<html><body><div id="root"></div></body></html>`,
			textLen: 10,
			want:    true,
		},
		{
			name:    "next marker",
			html:    `<script id="__NEXT_DATA__" type="application/json">{}</script>`,
			textLen: 10,
			want:    true,
		},
		{
			name:    "server rendered page",
			html:    "<html><body><p>Current solicitations for the City of Boise</p></body></html>",
			textLen: 900,
			want:    false,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, RequiresJavaScript(tc.html, tc.textLen))
		})
	}
}

func TestDetectPageType_PriorityOrder(t *testing.T) {
	t.Parallel()

	// Cloudflare fingerprint plus procurement keywords must still classify
	// as a challenge page.
	html := "<html>Checking your browser... open bid opportunity rfp results</html>"
	require.Equal(t, scraper.PageTypeCloudflare, DetectPageType(html, 200, 500, ""))

	captcha := "<html>recaptcha bid opportunity</html>"
	require.Equal(t, scraper.PageTypeCaptcha, DetectPageType(captcha, 200, 500, ""))
}

func TestDetectPageType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		html    string
		status  int
		textLen int
		want    scraper.PageType
	}{
		{"http error", "<p>whatever</p>", 500, 500, scraper.PageTypeError},
		{"error phrase", "<p>Page not found</p>", 200, 500, scraper.PageTypeError},
		{"auth wall", "<p>Authentication required</p>", 200, 500, scraper.PageTypeLogin},
		{"empty", "<p>hi</p>", 200, 12, scraper.PageTypeEmpty},
		{"list", "<p>rfp search results</p>", 200, 500, scraper.PageTypeProcurementList},
		{"detail", "<p>solicitation for road repair</p>", 200, 500, scraper.PageTypeProcurementDetail},
		{"unknown", "<p>municipal parks and recreation schedules</p>", 200, 500, scraper.PageTypeUnknown},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, DetectPageType(tc.html, tc.status, tc.textLen, ""))
		})
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>T</title><style>p{color:red}</style>
<script>var x = "<p>not text</p>";</script></head>
<body><!-- hidden --><noscript>enable js</noscript>
<p>Bid&nbsp;&amp;&nbsp;Proposal   listings</p></body></html>`

	got := ExtractText(html, 0)
	require.Equal(t, "T Bid & Proposal listings", got)
}

func TestExtractText_Truncates(t *testing.T) {
	t.Parallel()

	got := ExtractText("<p>"+strings.Repeat("a", 200)+"</p>", 64)
	require.Len(t, got, 64)
}

func TestExtractText_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// "données" is 8 bytes with é at bytes 4-5; a cut at 5 lands mid-rune.
	got := ExtractText("<p>données publiques</p>", 5)
	require.Equal(t, "donn", got)
	require.True(t, utf8.ValidString(got))

	got = ExtractText("<p>"+strings.Repeat("é", 100)+"</p>", 33)
	require.Len(t, got, 32)
	require.True(t, utf8.ValidString(got))
}

func TestTitle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Bids & Contracts", Title("<html><head><title> Bids &amp;\n Contracts </title></head></html>"))
	require.Equal(t, "", Title("<html><body></body></html>"))
}
