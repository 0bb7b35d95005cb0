package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

func TestExtractFromTable(t *testing.T) {
	t.Parallel()

	html := `<html><body><table>
<tr><th>Solicitation Title</th><th>Closing Date</th><th>Department</th></tr>
<tr><td><a href="/bids/42">Road resurfacing project</a></td><td>09/15/2026</td><td>Public Works</td></tr>
<tr><td><a href="/bids/43">Snow removal services</a></td><td>2026-10-01</td><td>Streets</td></tr>
</table></body></html>`

	ex := New(zaptest.NewLogger(t))
	got, err := ex.Extract(context.Background(), scraper.FetchResult{
		URL:      "https://procurement.example.gov/bids",
		FinalURL: "https://procurement.example.gov/bids",
		HTML:     html,
	}, scraper.Target{State: "CO"})
	require.NoError(t, err)

	require.Len(t, got.Rows, 2)
	require.Equal(t, "Road resurfacing project", got.Rows[0].Title)
	require.Equal(t, "https://procurement.example.gov/bids/42", got.Rows[0].Link)
	require.Equal(t, "09/15/2026", got.Rows[0].DueDate)
	require.Equal(t, "Public Works", got.Rows[0].Agency)
	require.Equal(t, scraper.QualityHigh, got.Quality)
	require.InDelta(t, 1.0, got.Completeness, 0.001)
	require.Zero(t, got.Tokens.Total)
}

func TestExtractFallsBackToLinks(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<p><a href="/opp/1">Request for Proposal: janitorial services</a> due Oct 3, 2026</p>
<p><a href="/opp/2">Invitation to Bid for fleet maintenance</a></p>
<p><a href="/about">About us</a></p>
</body></html>`

	ex := New(zaptest.NewLogger(t))
	got, err := ex.Extract(context.Background(), scraper.FetchResult{
		URL:  "https://city.example.gov/purchasing",
		HTML: html,
	}, scraper.Target{})
	require.NoError(t, err)

	require.Len(t, got.Rows, 2)
	require.Equal(t, "Request for Proposal: janitorial services", got.Rows[0].Title)
	require.Equal(t, "https://city.example.gov/opp/1", got.Rows[0].Link)
	require.Equal(t, "Oct 3, 2026", got.Rows[0].DueDate)
	require.Equal(t, scraper.QualityHigh, got.Quality)
	require.InDelta(t, 0.8, got.Completeness, 0.001)
}

func TestExtractEmptyPageIsLowQuality(t *testing.T) {
	t.Parallel()

	ex := New(zaptest.NewLogger(t))
	got, err := ex.Extract(context.Background(), scraper.FetchResult{
		URL:  "https://city.example.gov/purchasing",
		HTML: "<html><body><p>No current solicitations.</p></body></html>",
	}, scraper.Target{})
	require.NoError(t, err)

	require.Empty(t, got.Rows)
	require.Equal(t, scraper.QualityLow, got.Quality)
	require.Zero(t, got.Completeness)
}
