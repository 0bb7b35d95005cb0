// Package extract pulls structured procurement opportunities out of fetched pages.
package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

// Field weights used when scoring completeness. Title and link carry most of
// the value of a row; due date and agency are nice to have.
const (
	weightTitle  = 0.4
	weightLink   = 0.3
	weightDue    = 0.2
	weightAgency = 0.1
)

// Quality tier cutoffs on the average row completeness.
const (
	highCutoff   = 0.75
	mediumCutoff = 0.4
)

var opportunityKeywords = []string{
	"bid", "rfp", "rfq", "rfi", "proposal", "solicitation",
	"procurement", "contract", "tender", "opportunit", "award",
}

var datePattern = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}`)

// Heuristic extracts opportunity rows from HTML tables and link lists.
// It never calls a model, so token usage is always zero.
type Heuristic struct {
	logger *zap.Logger
}

// New returns a Heuristic extractor.
func New(logger *zap.Logger) *Heuristic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heuristic{logger: logger}
}

// Extract implements scraper.Extractor.
func (h *Heuristic) Extract(_ context.Context, result scraper.FetchResult, target scraper.Target) (scraper.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
	if err != nil {
		return scraper.Extraction{Quality: scraper.QualityLow}, nil
	}

	base := resolveBase(result)

	rows := h.fromTables(doc, base)
	if len(rows) == 0 {
		rows = h.fromLinks(doc, base)
	}

	completeness := scoreRows(rows)
	extraction := scraper.Extraction{
		Rows:         rows,
		Quality:      qualityFor(completeness, len(rows)),
		Completeness: completeness,
	}
	h.logger.Debug("extracted opportunities",
		zap.String("url", result.URL),
		zap.String("state", target.State),
		zap.Int("rows", len(rows)),
		zap.Float64("completeness", completeness),
	)
	return extraction, nil
}

// fromTables walks every table that has a header row and maps columns by
// header text. Tables without a recognizable title column are skipped.
func (h *Heuristic) fromTables(doc *goquery.Document, base *url.URL) []scraper.ProcurementRow {
	var out []scraper.ProcurementRow

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		cols := columnMap(table)
		if cols.title < 0 {
			return
		}
		table.Find("tr").Each(func(i int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() <= cols.title {
				return
			}
			titleCell := cells.Eq(cols.title)
			row := scraper.ProcurementRow{
				Title: clean(titleCell.Text()),
				Link:  absoluteHref(titleCell.Find("a").First(), base),
			}
			if row.Link == "" {
				row.Link = absoluteHref(tr.Find("a").First(), base)
			}
			if cols.due >= 0 && cells.Length() > cols.due {
				row.DueDate = firstDate(cells.Eq(cols.due).Text())
			}
			if row.DueDate == "" {
				row.DueDate = firstDate(tr.Text())
			}
			if cols.agency >= 0 && cells.Length() > cols.agency {
				row.Agency = clean(cells.Eq(cols.agency).Text())
			}
			if row.Title != "" {
				out = append(out, row)
			}
		})
	})
	return out
}

// fromLinks is the fallback for pages that list opportunities as plain anchors.
// Only anchors whose text mentions a procurement keyword are kept.
func (h *Heuristic) fromLinks(doc *goquery.Document, base *url.URL) []scraper.ProcurementRow {
	var out []scraper.ProcurementRow
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := clean(a.Text())
		if len(text) < 10 || !mentionsOpportunity(text) {
			return
		}
		link := absoluteHref(a, base)
		key := text + "|" + link
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, scraper.ProcurementRow{
			Title:   text,
			Link:    link,
			DueDate: firstDate(a.Parent().Text()),
		})
	})
	return out
}

type columns struct {
	title  int
	due    int
	agency int
}

func columnMap(table *goquery.Selection) columns {
	cols := columns{title: -1, due: -1, agency: -1}
	table.Find("th").Each(func(i int, th *goquery.Selection) {
		header := strings.ToLower(clean(th.Text()))
		switch {
		case cols.title < 0 && containsAny(header, "title", "description", "project", "solicitation", "bid", "opportunity", "name"):
			cols.title = i
		case cols.due < 0 && containsAny(header, "due", "close", "closing", "deadline", "end"):
			cols.due = i
		case cols.agency < 0 && containsAny(header, "agency", "department", "buyer", "organization", "entity"):
			cols.agency = i
		}
	})
	return cols
}

func scoreRows(rows []scraper.ProcurementRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	var total float64
	for _, r := range rows {
		var score float64
		if r.Title != "" {
			score += weightTitle
		}
		if r.Link != "" {
			score += weightLink
		}
		if r.DueDate != "" {
			score += weightDue
		}
		if r.Agency != "" {
			score += weightAgency
		}
		total += score
	}
	return total / float64(len(rows))
}

func qualityFor(completeness float64, rowCount int) scraper.DataQuality {
	switch {
	case rowCount > 0 && completeness >= highCutoff:
		return scraper.QualityHigh
	case rowCount > 0 && completeness >= mediumCutoff:
		return scraper.QualityMedium
	default:
		return scraper.QualityLow
	}
}

func resolveBase(result scraper.FetchResult) *url.URL {
	raw := result.FinalURL
	if raw == "" {
		raw = result.URL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return base
}

func absoluteHref(a *goquery.Selection, base *url.URL) string {
	href, ok := a.Attr("href")
	if !ok {
		return ""
	}
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func firstDate(s string) string {
	return datePattern.FindString(s)
}

func mentionsOpportunity(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range opportunityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
