package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/observability"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
	"github.com/ashuthecoder/cybervantage-api/pkg/virustotal"
)

const (
	// DefaultThreatCacheTTL bounds how long a lookup result is reused.
	DefaultThreatCacheTTL = time.Hour
	// ThreatHistoryLimit is the number of lookups returned by the history view.
	ThreatHistoryLimit = 100

	threatCachePrefix   = "cybervantage:threat:"
	defaultUploadMaxMB  = 32
	maxStoredResource   = 2048
	threatNotConfigured = "VirusTotal API key not configured"
)

var (
	// ErrUploadRequired is returned when a scan upload carries no file.
	ErrUploadRequired = errors.New("file is required")
	// ErrUploadEmpty is returned for zero-byte uploads.
	ErrUploadEmpty = errors.New("uploaded file is empty")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
)

// ThreatScanner is the threat-intelligence backend. *virustotal.Client satisfies it.
type ThreatScanner interface {
	Configured() bool
	ScanURL(ctx context.Context, rawURL string) (virustotal.Report, error)
	ScanIP(ctx context.Context, ip string) (virustotal.Report, error)
	ScanFileHash(ctx context.Context, hash string) (virustotal.Report, error)
}

// ThreatService exposes threat-intelligence lookups and keeps a per-user history.
type ThreatService interface {
	ScanURL(ctx context.Context, userID uint, req dto.ThreatURLRequest) (dto.ThreatReport, error)
	DeepScanURL(ctx context.Context, userID uint, req dto.ThreatURLRequest) (dto.DeepScanReport, error)
	ScanIP(ctx context.Context, userID uint, req dto.ThreatIPRequest) (dto.ThreatReport, error)
	ScanHash(ctx context.Context, userID uint, req dto.ThreatHashRequest) (dto.ThreatReport, error)
	ScanFile(ctx context.Context, userID uint, file *multipart.FileHeader) (dto.FileScanReport, error)
	AnalyzeEmail(ctx context.Context, userID uint, file *multipart.FileHeader) (dto.EmailAnalysisReport, error)
	History(ctx context.Context, userID uint) ([]dto.ThreatScanItem, error)
}

// ThreatServiceConfig wires the threat service. Cache and HTTPClient are optional; without an
// HTTPClient deep scans use a client that refuses private network addresses.
type ThreatServiceConfig struct {
	Scanner      ThreatScanner
	Scans        repository.ThreatScanRepository
	Validate     *validator.Validate
	Cache        *redis.Client
	CacheTTL     time.Duration
	HTTPClient   *http.Client
	MaxRedirects int
	MaxLinks     int
	UploadMaxMB  int
	Logger       zerolog.Logger
}

type threatService struct {
	scanner      ThreatScanner
	scans        repository.ThreatScanRepository
	validate     *validator.Validate
	cache        *redis.Client
	cacheTTL     time.Duration
	httpClient   *http.Client
	maxRedirects int
	maxLinks     int
	maxUpload    int64
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// NewThreatService builds the threat service.
func NewThreatService(cfg ThreatServiceConfig) ThreatService {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultThreatCacheTTL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newGuardedHTTPClient(15 * time.Second)
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	maxLinks := cfg.MaxLinks
	if maxLinks <= 0 {
		maxLinks = defaultMaxEmailLinks
	}
	uploadMB := cfg.UploadMaxMB
	if uploadMB <= 0 {
		uploadMB = defaultUploadMaxMB
	}
	validate := cfg.Validate
	if validate == nil {
		validate = validator.New()
	}

	return &threatService{
		scanner:      cfg.Scanner,
		scans:        cfg.Scans,
		validate:     validate,
		cache:        cfg.Cache,
		cacheTTL:     ttl,
		httpClient:   client,
		maxRedirects: maxRedirects,
		maxLinks:     maxLinks,
		maxUpload:    int64(uploadMB) * 1024 * 1024,
		logger:       cfg.Logger.With().Str("component", "threat_service").Logger(),
		tracer:       otel.Tracer("github.com/ashuthecoder/cybervantage-api/internal/service/threat"),
	}
}

func (s *threatService) ScanURL(ctx context.Context, userID uint, req dto.ThreatURLRequest) (dto.ThreatReport, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.ThreatReport{}, err
	}
	ctx, span := s.tracer.Start(ctx, "threat.scan_url")
	defer span.End()

	report := s.lookup(ctx, virustotal.KindURL, strings.TrimSpace(req.URL))
	s.record(ctx, userID, models.ThreatScanURL, report, report)
	endThreatSpan(span, report)
	return report, nil
}

func (s *threatService) ScanIP(ctx context.Context, userID uint, req dto.ThreatIPRequest) (dto.ThreatReport, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.ThreatReport{}, err
	}
	ctx, span := s.tracer.Start(ctx, "threat.scan_ip")
	defer span.End()

	report := s.lookup(ctx, virustotal.KindIP, strings.TrimSpace(req.IP))
	s.record(ctx, userID, models.ThreatScanIP, report, report)
	endThreatSpan(span, report)
	return report, nil
}

func (s *threatService) ScanHash(ctx context.Context, userID uint, req dto.ThreatHashRequest) (dto.ThreatReport, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.ThreatReport{}, err
	}
	ctx, span := s.tracer.Start(ctx, "threat.scan_hash")
	defer span.End()

	report := s.lookup(ctx, virustotal.KindHash, strings.ToLower(strings.TrimSpace(req.Hash)))
	s.record(ctx, userID, models.ThreatScanHash, report, report)
	endThreatSpan(span, report)
	return report, nil
}

func (s *threatService) ScanFile(ctx context.Context, userID uint, file *multipart.FileHeader) (dto.FileScanReport, error) {
	ctx, span := s.tracer.Start(ctx, "threat.scan_file")
	defer span.End()

	payload, err := s.readUpload(file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload rejected")
		return dto.FileScanReport{}, err
	}

	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])
	detected := mimetype.Detect(payload)
	span.SetAttributes(attribute.String("threat.mime", detected.String()), attribute.Int("threat.size", len(payload)))

	report := dto.FileScanReport{
		ThreatReport: s.lookup(ctx, virustotal.KindHash, digest),
		Filename:     cleanUploadName(file.Filename),
		MimeType:     detected.String(),
		Size:         int64(len(payload)),
		SHA256:       digest,
	}
	s.record(ctx, userID, models.ThreatScanHash, report.ThreatReport, report)
	endThreatSpan(span, report.ThreatReport)
	return report, nil
}

func (s *threatService) DeepScanURL(ctx context.Context, userID uint, req dto.ThreatURLRequest) (dto.DeepScanReport, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.DeepScanReport{}, err
	}
	ctx, span := s.tracer.Start(ctx, "threat.deep_scan_url")
	defer span.End()

	target := strings.TrimSpace(req.URL)
	var (
		reputation dto.ThreatReport
		page       pageAnalysis
		g          errgroup.Group
	)
	g.Go(func() error {
		reputation = s.lookup(ctx, virustotal.KindURL, target)
		return nil
	})
	g.Go(func() error {
		page = s.fetchPage(ctx, target)
		return nil
	})
	_ = g.Wait()

	report := dto.DeepScanReport{
		ThreatReport:      reputation,
		RedirectChain:     page.hops,
		FinalURL:          page.finalURL,
		ExternalScripts:   page.externalScripts,
		SuspiciousScripts: page.suspiciousScripts,
		HasPasswordForm:   page.passwordForm,
		FetchError:        page.fetchError,
	}
	report.RiskLevel = riskLevel(reputation.Positives, page.signals())
	span.SetAttributes(
		attribute.Int("threat.redirects", len(page.hops)),
		attribute.String("threat.risk", report.RiskLevel),
	)

	s.record(ctx, userID, models.ThreatScanDeepURL, report.ThreatReport, report)
	endThreatSpan(span, report.ThreatReport)
	return report, nil
}

func (s *threatService) History(ctx context.Context, userID uint) ([]dto.ThreatScanItem, error) {
	scans, err := s.scans.ListByUser(ctx, userID, ThreatHistoryLimit)
	if err != nil {
		return nil, err
	}
	items := make([]dto.ThreatScanItem, 0, len(scans))
	for _, scan := range scans {
		items = append(items, dto.ThreatScanItem{
			ID:        scan.ID,
			Kind:      scan.Kind,
			Resource:  scan.Resource,
			Positives: scan.Positives,
			Total:     scan.Total,
			Permalink: scan.Permalink,
			Error:     scan.Error,
			CreatedAt: scan.CreatedAt,
		})
	}
	return items, nil
}

// lookup answers from the cache when possible. Failures are reported in the Error field.
func (s *threatService) lookup(ctx context.Context, kind, resource string) dto.ThreatReport {
	if s.scanner == nil || !s.scanner.Configured() {
		observability.ThreatScans().WithLabelValues(kind, "unconfigured").Inc()
		return dto.ThreatReport{Resource: resource, Kind: kind, Error: threatNotConfigured}
	}

	key := threatCacheKey(kind, resource)
	if cached, ok := s.cached(ctx, key); ok {
		cached.Cached = true
		observability.ThreatScans().WithLabelValues(kind, "cached").Inc()
		return cached
	}

	var (
		result virustotal.Report
		err    error
	)
	switch kind {
	case virustotal.KindURL:
		result, err = s.scanner.ScanURL(ctx, resource)
	case virustotal.KindIP:
		result, err = s.scanner.ScanIP(ctx, resource)
	default:
		result, err = s.scanner.ScanFileHash(ctx, resource)
	}
	if err != nil {
		observability.ThreatScans().WithLabelValues(kind, "error").Inc()
		s.logger.Warn().Err(err).Str("kind", kind).Msg("threat lookup failed")
		return dto.ThreatReport{Resource: resource, Kind: kind, Error: lookupErrorMessage(err)}
	}

	report := dto.ThreatReport{
		Resource:  result.Resource,
		Kind:      kind,
		ScanDate:  result.ScanDate,
		Positives: result.Positives,
		Total:     result.Total,
		Permalink: result.Permalink,
		Stats:     result.Stats,
		Details:   result.Details,
	}
	observability.ThreatScans().WithLabelValues(kind, "ok").Inc()
	if status, _ := report.Details["status"].(string); kind != virustotal.KindURL || status == "completed" {
		s.store(ctx, key, report)
	}
	return report
}

func (s *threatService) cached(ctx context.Context, key string) (dto.ThreatReport, bool) {
	if s.cache == nil {
		return dto.ThreatReport{}, false
	}
	raw, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read threat cache")
		}
		return dto.ThreatReport{}, false
	}
	var report dto.ThreatReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return dto.ThreatReport{}, false
	}
	return report, true
}

func (s *threatService) store(ctx context.Context, key string, report dto.ThreatReport) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store threat cache")
	}
}

// record stores one history row. Unconfigured lookups are not stored.
func (s *threatService) record(ctx context.Context, userID uint, kind string, summary dto.ThreatReport, full interface{}) {
	if s.scans == nil || summary.Error == threatNotConfigured {
		return
	}
	scan := &models.ThreatScan{
		UserID:    userID,
		Kind:      kind,
		Resource:  truncate(summary.Resource, maxStoredResource),
		Positives: summary.Positives,
		Total:     summary.Total,
		Permalink: truncate(summary.Permalink, maxStoredResource),
		Result:    toJSONMap(full),
		Error:     summary.Error,
	}
	if err := s.scans.Create(ctx, scan); err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("failed to record threat scan")
	}
}

func (s *threatService) readUpload(file *multipart.FileHeader) ([]byte, error) {
	if file == nil {
		return nil, ErrUploadRequired
	}
	if file.Size > s.maxUpload {
		return nil, ErrUploadTooLarge
	}
	handle, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxUpload+1)); err != nil {
		return nil, err
	}
	if int64(buf.Len()) > s.maxUpload {
		return nil, ErrUploadTooLarge
	}
	if buf.Len() == 0 {
		return nil, ErrUploadEmpty
	}
	return buf.Bytes(), nil
}

func threatCacheKey(kind, resource string) string {
	return threatCachePrefix + kind + ":" + resource
}

func lookupErrorMessage(err error) string {
	var apiErr *virustotal.APIError
	switch {
	case errors.Is(err, virustotal.ErrNotFound):
		return "resource not found in the VirusTotal database"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("API Error: %d", apiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "Scan failed: timed out"
	default:
		return "Scan failed: " + err.Error()
	}
}

func endThreatSpan(span trace.Span, report dto.ThreatReport) {
	span.SetAttributes(
		attribute.String("threat.kind", report.Kind),
		attribute.Int("threat.positives", report.Positives),
		attribute.Bool("threat.cached", report.Cached),
	)
	if report.Error != "" {
		span.SetStatus(codes.Error, report.Error)
		return
	}
	span.SetStatus(codes.Ok, "scanned")
}

// riskLevel combines reputation positives with local heuristic signals.
func riskLevel(positives, signals int) string {
	switch {
	case positives >= 3 || (positives > 0 && signals > 0):
		return "high"
	case positives > 0 || signals >= 2:
		return "medium"
	default:
		return "low"
	}
}

func toJSONMap(value interface{}) datatypes.JSONMap {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil
	}
	return datatypes.JSONMap(out)
}

func cleanUploadName(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" || name == "" {
		return "upload.bin"
	}
	return truncate(name, 255)
}
