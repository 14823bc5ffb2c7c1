package dto

import "time"

// ThreatURLRequest scans a URL.
type ThreatURLRequest struct {
	URL string `json:"url" validate:"required,url,max=2048"`
}

// ThreatIPRequest looks up an IP address.
type ThreatIPRequest struct {
	IP string `json:"ip" validate:"required,ip"`
}

// ThreatHashRequest looks up a file hash.
type ThreatHashRequest struct {
	Hash string `json:"hash" validate:"required,hexadecimal,min=32,max=64"`
}

// ThreatReport is the normalized threat-intelligence result.
type ThreatReport struct {
	Resource  string                 `json:"resource"`
	Kind      string                 `json:"kind"`
	ScanDate  *time.Time             `json:"scan_date,omitempty"`
	Positives int                    `json:"positives"`
	Total     int                    `json:"total"`
	Permalink string                 `json:"permalink,omitempty"`
	Stats     map[string]int         `json:"stats,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Cached    bool                   `json:"cached"`
}

// RedirectHop is one response in a redirect chain.
type RedirectHop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// DeepScanReport combines the reputation lookup with a live fetch of the page.
type DeepScanReport struct {
	ThreatReport
	RedirectChain     []RedirectHop `json:"redirect_chain"`
	FinalURL          string        `json:"final_url,omitempty"`
	ExternalScripts   []string      `json:"external_scripts"`
	SuspiciousScripts []string      `json:"suspicious_scripts"`
	HasPasswordForm   bool          `json:"has_password_form"`
	RiskLevel         string        `json:"risk_level"`
	FetchError        string        `json:"fetch_error,omitempty"`
}

// FileScanReport describes an uploaded file lookup.
type FileScanReport struct {
	ThreatReport
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// EmailAttachmentReport is one attachment found in an analysed message.
type EmailAttachmentReport struct {
	Filename string        `json:"filename"`
	MimeType string        `json:"mime_type"`
	Size     int           `json:"size"`
	SHA256   string        `json:"sha256"`
	Report   *ThreatReport `json:"report,omitempty"`
}

// EmailAnalysisReport is the outcome of analysing an uploaded .eml message.
type EmailAnalysisReport struct {
	From            string                  `json:"from"`
	ReplyTo         string                  `json:"reply_to,omitempty"`
	ReturnPath      string                  `json:"return_path,omitempty"`
	To              []string                `json:"to"`
	Subject         string                  `json:"subject"`
	Date            *time.Time              `json:"date,omitempty"`
	Authentication  map[string]string       `json:"authentication"`
	Links           []string                `json:"links"`
	LinkReports     []ThreatReport          `json:"link_reports"`
	Attachments     []EmailAttachmentReport `json:"attachments"`
	Indicators      []string                `json:"indicators"`
	RiskLevel       string                  `json:"risk_level"`
	ScannedLinks    int                     `json:"scanned_links"`
	SkippedLinks    int                     `json:"skipped_links"`
	BodyTextPreview string                  `json:"body_text_preview,omitempty"`
}

// ThreatScanItem is one stored lookup in the history view.
type ThreatScanItem struct {
	ID        uint      `json:"id"`
	Kind      string    `json:"kind"`
	Resource  string    `json:"resource"`
	Positives int       `json:"positives"`
	Total     int       `json:"total"`
	Permalink string    `json:"permalink,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
