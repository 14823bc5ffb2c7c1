// Package virustotal is a small client for the VirusTotal v3 REST API.
package virustotal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL      = "https://www.virustotal.com/api/v3"
	defaultGUIURL       = "https://www.virustotal.com/gui"
	defaultPollAttempts = 10
	defaultPollInterval = 3 * time.Second
)

// Resource kinds.
const (
	KindURL  = "url"
	KindIP   = "ip"
	KindHash = "hash"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("virustotal api key not configured")
	// ErrNotFound is returned when VirusTotal has no record of the resource.
	ErrNotFound = errors.New("resource not found on virustotal")
)

// APIError is a non-success answer from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("virustotal api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("virustotal api error: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Report is a normalized lookup result.
type Report struct {
	Resource  string
	Kind      string
	ScanDate  *time.Time
	Stats     map[string]int
	Positives int
	Total     int
	Permalink string
	Details   map[string]interface{}
}

// Config configures the client.
type Config struct {
	APIKey       string
	BaseURL      string
	PollAttempts int
	PollInterval time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// Client talks to VirusTotal.
type Client struct {
	apiKey       string
	baseURL      string
	pollAttempts int
	pollInterval time.Duration
	httpClient   *http.Client
	tracer       trace.Tracer
	logger       zerolog.Logger
	now          func() time.Time
}

// NewClient builds a client. A client without an API key answers every call with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	attempts := cfg.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      baseURL,
		pollAttempts: attempts,
		pollInterval: interval,
		httpClient:   client,
		tracer:       otel.Tracer("github.com/ashuthecoder/cybervantage-api/pkg/virustotal"),
		logger:       cfg.Logger.With().Str("component", "virustotal_client").Logger(),
		now:          time.Now,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type object struct {
	Data struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		Attributes json.RawMessage `json:"attributes"`
	} `json:"data"`
}

type attributes struct {
	Status            string         `json:"status"`
	Date              int64          `json:"date"`
	Stats             map[string]int `json:"stats"`
	LastAnalysisStats map[string]int `json:"last_analysis_stats"`
	LastAnalysisDate  int64          `json:"last_analysis_date"`
	Country           string         `json:"country"`
	ASOwner           string         `json:"as_owner"`
	Network           string         `json:"network"`
	Reputation        int            `json:"reputation"`
	TypeDescription   string         `json:"type_description"`
	MeaningfulName    string         `json:"meaningful_name"`
	Size              int64          `json:"size"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ScanURL submits the URL for analysis and polls until the analysis completes or the attempts run
// out. An unfinished analysis is reported with status "queued".
func (c *Client) ScanURL(ctx context.Context, rawURL string) (Report, error) {
	ctx, span := c.start(ctx, "virustotal.scan_url", KindURL)
	defer span.End()

	report, err := c.scanURL(ctx, rawURL)
	return report, finish(span, err)
}

func (c *Client) scanURL(ctx context.Context, rawURL string) (Report, error) {
	if !c.Configured() {
		return Report{}, ErrNotConfigured
	}

	form := url.Values{"url": {rawURL}}
	var submitted object
	if err := c.do(ctx, http.MethodPost, "/urls", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &submitted); err != nil {
		return Report{}, err
	}
	analysisID := submitted.Data.ID
	if analysisID == "" {
		return Report{}, errors.New("virustotal returned no analysis id")
	}

	report := Report{
		Resource:  rawURL,
		Kind:      KindURL,
		Permalink: fmt.Sprintf("%s/url/%s/detection", defaultGUIURL, URLIdentifier(rawURL)),
		Details:   map[string]interface{}{"analysis_id": analysisID, "status": "queued"},
	}

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.pollInterval); err != nil {
				return Report{}, err
			}
		}

		var analysis object
		if err := c.do(ctx, http.MethodGet, "/analyses/"+url.PathEscape(analysisID), nil, "", &analysis); err != nil {
			return Report{}, err
		}
		attrs, err := decodeAttributes(analysis)
		if err != nil {
			return Report{}, err
		}
		applyStats(&report, attrs.Stats)
		report.ScanDate = unixTime(attrs.Date)
		if attrs.Status != "" {
			report.Details["status"] = attrs.Status
		}
		if attrs.Status == "completed" {
			return report, nil
		}
	}

	c.logger.Info().Str("analysis_id", analysisID).Int("attempts", c.pollAttempts).Msg("url analysis still queued")
	return report, nil
}

// ScanIP fetches the IP address report.
func (c *Client) ScanIP(ctx context.Context, ip string) (Report, error) {
	ctx, span := c.start(ctx, "virustotal.scan_ip", KindIP)
	defer span.End()

	report, err := c.lookup(ctx, "/ip_addresses/"+url.PathEscape(ip), ip, KindIP, func(attrs attributes) map[string]interface{} {
		return map[string]interface{}{
			"country":    fallbackString(attrs.Country, "Unknown"),
			"owner":      fallbackString(attrs.ASOwner, "Unknown"),
			"network":    attrs.Network,
			"reputation": attrs.Reputation,
		}
	})
	if err == nil {
		report.Permalink = fmt.Sprintf("%s/ip-address/%s/detection", defaultGUIURL, ip)
	}
	return report, finish(span, err)
}

// ScanFileHash fetches the file report for an MD5, SHA-1 or SHA-256 digest.
func (c *Client) ScanFileHash(ctx context.Context, hash string) (Report, error) {
	ctx, span := c.start(ctx, "virustotal.scan_hash", KindHash)
	defer span.End()

	hash = strings.ToLower(strings.TrimSpace(hash))
	report, err := c.lookup(ctx, "/files/"+url.PathEscape(hash), hash, KindHash, func(attrs attributes) map[string]interface{} {
		return map[string]interface{}{
			"type": fallbackString(attrs.TypeDescription, "Unknown"),
			"name": fallbackString(attrs.MeaningfulName, hash),
			"size": attrs.Size,
		}
	})
	if err == nil {
		report.Permalink = fmt.Sprintf("%s/file/%s/detection", defaultGUIURL, hash)
	}
	return report, finish(span, err)
}

func (c *Client) lookup(ctx context.Context, path, resource, kind string, details func(attributes) map[string]interface{}) (Report, error) {
	if !c.Configured() {
		return Report{}, ErrNotConfigured
	}

	var obj object
	if err := c.do(ctx, http.MethodGet, path, nil, "", &obj); err != nil {
		return Report{}, err
	}
	attrs, err := decodeAttributes(obj)
	if err != nil {
		return Report{}, err
	}

	report := Report{Resource: resource, Kind: kind, Details: details(attrs)}
	applyStats(&report, attrs.LastAnalysisStats)
	report.ScanDate = unixTime(attrs.LastAnalysisDate)
	if report.ScanDate == nil {
		now := c.now()
		report.ScanDate = &now
	}
	return report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("virustotal request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read virustotal response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var decoded errorBody
		_ = json.Unmarshal(raw, &decoded)
		return &APIError{StatusCode: resp.StatusCode, Code: decoded.Error.Code, Message: decoded.Error.Message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode virustotal response: %w", err)
	}
	return nil
}

func (c *Client) start(ctx context.Context, name, kind string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("virustotal.kind", kind)))
}

func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "scanned")
	return nil
}

func decodeAttributes(obj object) (attributes, error) {
	var attrs attributes
	if len(obj.Data.Attributes) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(obj.Data.Attributes, &attrs); err != nil {
		return attributes{}, fmt.Errorf("decode virustotal attributes: %w", err)
	}
	return attrs, nil
}

func applyStats(report *Report, stats map[string]int) {
	report.Stats = map[string]int{}
	report.Total = 0
	for engine, count := range stats {
		report.Stats[engine] = count
		report.Total += count
	}
	report.Positives = stats["malicious"]
}

func unixTime(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// URLIdentifier is the hex SHA-256 VirusTotal uses to address a URL in its GUI.
func URLIdentifier(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
