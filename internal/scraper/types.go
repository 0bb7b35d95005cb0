// Package scraper defines core types shared across subsystems.
package scraper

import (
	"time"
)

// ScrapingMethod identifies one fetch strategy.
type ScrapingMethod string

// Known scraping methods in fixed escalation priority.
const (
	MethodHTTPFetch      ScrapingMethod = "http_fetch"
	MethodProxyService   ScrapingMethod = "proxy_service"
	MethodBrowserService ScrapingMethod = "browser_service"
	// MethodFrontendBrowser is declared for records produced by an
	// operator-driven browser session. The orchestrator never dispatches it.
	MethodFrontendBrowser ScrapingMethod = "frontend_browser"
)

// Valid reports whether m is one of the declared methods.
func (m ScrapingMethod) Valid() bool {
	switch m {
	case MethodHTTPFetch, MethodProxyService, MethodBrowserService, MethodFrontendBrowser:
		return true
	default:
		return false
	}
}

// PageType classifies the intent of a fetched page.
type PageType string

// Page types produced by the classifier.
const (
	PageTypeProcurementList    PageType = "procurement-list"
	PageTypeProcurementDetail  PageType = "procurement-detail"
	PageTypeLogin              PageType = "login-page"
	PageTypeError              PageType = "error-page"
	PageTypeEmpty              PageType = "empty-page"
	PageTypeCloudflare         PageType = "cloudflare-challenge"
	PageTypeCaptcha            PageType = "captcha-page"
	PageTypeUnknown            PageType = "unknown"
)

// FetchMetadata holds classifier verdicts for one fetch attempt. A fresh
// value is built per attempt and never shared between attempts.
type FetchMetadata struct {
	Blocked             bool     `json:"blocked"`
	RequiresJavaScript  bool     `json:"requires_javascript"`
	RequiresAuth        bool     `json:"requires_auth"`
	CloudflareDetected  bool     `json:"cloudflare_detected"`
	CaptchaDetected     bool     `json:"captcha_detected"`
	RawHTMLLength       int      `json:"raw_html_length"`
	ExtractedTextLength int      `json:"extracted_text_length"`
	PageType            PageType `json:"page_type"`
	Warnings            []string `json:"warnings,omitempty"`
}

// FetchResult is the outcome of one adapter attempt against one URL.
// It is immutable once produced; callers consume it to build the next
// decision, never mutate it.
type FetchResult struct {
	URL         string         `json:"url"`
	FinalURL    string         `json:"final_url"`
	StatusCode  int            `json:"status_code"`
	ContentType string         `json:"content_type"`
	HTML        string         `json:"html"`
	Text        string         `json:"text"`
	Method      ScrapingMethod `json:"method"`
	DurationMs  int64          `json:"duration_ms"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Metadata    FetchMetadata  `json:"metadata"`
}

// StrategyResult is the outcome of the fallback orchestrator for one URL.
type StrategyResult struct {
	Result           FetchResult      `json:"result"`
	MethodsAttempted []ScrapingMethod `json:"methods_attempted"`
	FallbackUsed     bool             `json:"fallback_used"`
}

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobType describes how the URL list for a job was assembled.
type JobType string

// Job types accepted at submission.
const (
	JobTypeSingle      JobType = "single"
	JobTypeMultiple    JobType = "multiple"
	JobTypeAllApproved JobType = "all_approved"
)

// Target is one URL to scrape together with its procurement context.
type Target struct {
	URL     string `json:"url"`
	State   string `json:"state,omitempty"`
	Capital string `json:"capital,omitempty"`
	LinkID  string `json:"link_id,omitempty"`
}

// ScrapeJob is a long-running scrape-many-URLs operation. The persisted row
// is the only shared mutable state per job; a single coordinator owns all
// writes to it.
type ScrapeJob struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Type          JobType    `json:"type"`
	Status        JobStatus  `json:"status"`
	TotalURLs     int        `json:"total_urls"`
	CompletedURLs int        `json:"completed_urls"`
	FailedURLs    int        `json:"failed_urls"`
	Targets       []Target   `json:"targets"`
	RecordIDs     []string   `json:"record_ids,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Error         string     `json:"error,omitempty"`
}

// RecordStatus is the lifecycle state of one scrape record.
type RecordStatus string

// Record status values. A record never rests at in_progress after the
// single-URL operation returns.
const (
	RecordStatusInProgress RecordStatus = "in_progress"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusFailed     RecordStatus = "failed"
)

// DataQuality is the coarse tier assigned to extracted data.
type DataQuality string

// Data quality tiers.
const (
	QualityHigh   DataQuality = "high"
	QualityMedium DataQuality = "medium"
	QualityLow    DataQuality = "low"
)

// TokenUsage accounts for tokens spent by the extraction collaborator.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

// ProcurementRow is one structured opportunity extracted from a page.
type ProcurementRow struct {
	Title   string `json:"title"`
	Link    string `json:"link,omitempty"`
	DueDate string `json:"due_date,omitempty"`
	Agency  string `json:"agency,omitempty"`
}

// Extraction is what the extractor collaborator produces from a fetch result.
type Extraction struct {
	Rows         []ProcurementRow `json:"rows"`
	Quality      DataQuality      `json:"quality"`
	Completeness float64          `json:"completeness"`
	Tokens       TokenUsage       `json:"tokens"`
}

// ScrapeRecord is persisted per single-URL scrape.
type ScrapeRecord struct {
	ID           string           `json:"id"`
	JobID        string           `json:"job_id,omitempty"`
	LinkID       string           `json:"link_id,omitempty"`
	URL          string           `json:"url"`
	State        string           `json:"state,omitempty"`
	Method       ScrapingMethod   `json:"method"`
	Status       RecordStatus     `json:"status"`
	PageType     PageType         `json:"page_type,omitempty"`
	Rows         []ProcurementRow `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	Quality      DataQuality      `json:"quality,omitempty"`
	Completeness float64          `json:"completeness"`
	Tokens       TokenUsage       `json:"tokens"`
	BlobURI      string           `json:"blob_uri,omitempty"`
	ContentHash  string           `json:"content_hash,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ScrapeRequest is the input to the single-URL scrape operation.
type ScrapeRequest struct {
	Target          Target
	JobID           string
	PreferredMethod ScrapingMethod
	EnableFallback  *bool
}

// ScrapeOutcome is the return of the single-URL scrape operation.
type ScrapeOutcome struct {
	Success      bool        `json:"success"`
	RecordID     string      `json:"record_id,omitempty"`
	Quality      DataQuality `json:"data_quality,omitempty"`
	Completeness float64     `json:"data_completeness,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Attempt   int
	Submitted int64
}
