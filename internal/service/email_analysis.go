package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/pkg/virustotal"
)

const (
	defaultMaxEmailLinks = 5
	emailScanWorkers     = 3
	bodyPreviewSize      = 500
	maxPartBytes         = 4 << 20
)

// ErrInvalidEmail is returned when an upload cannot be parsed as an RFC 5322 message.
var ErrInvalidEmail = errors.New("file is not a valid email message")

var (
	urgencyWords = []string{"urgent", "immediately", "alert", "warning", "attention", "important", "suspended", "expires"}

	suspiciousPhrases = []string{
		"verify your account", "verify your identity", "confirm your details",
		"click here", "sign up now", "limited time", "act now", "free gift",
		"been selected", "earn money", "winner", "credit card", "password",
		"bank account", "compromised", "unusual activity", "update your payment",
	}

	moneyPattern       = regexp.MustCompile(`[$€£¥]\s?\d+|\d+\s?[$€£¥]|\$\d+\.\d+`)
	textLinkPattern    = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)
	authResultPattern  = regexp.MustCompile(`(?i)\b(spf|dkim|dmarc)=([a-z]+)`)
	failingAuthResults = map[string]bool{"fail": true, "softfail": true, "none": true, "permerror": true, "temperror": true}
)

type parsedEmail struct {
	report    dto.EmailAnalysisReport
	plainText strings.Builder
	htmlText  strings.Builder
	files     []emailAttachment
}

type emailAttachment struct {
	name    string
	content []byte
}

func (s *threatService) AnalyzeEmail(ctx context.Context, userID uint, file *multipart.FileHeader) (dto.EmailAnalysisReport, error) {
	ctx, span := s.tracer.Start(ctx, "threat.analyze_email")
	defer span.End()

	payload, err := s.readUpload(file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload rejected")
		return dto.EmailAnalysisReport{}, err
	}

	parsed, err := parseEmail(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return dto.EmailAnalysisReport{}, err
	}
	report := parsed.report

	s.scanEmailContent(ctx, &report, parsed.files)

	body := parsed.plainText.String()
	if strings.TrimSpace(body) == "" {
		body = parsed.htmlText.String()
	}
	report.Indicators = append(report.Indicators, contentIndicators(report.Subject+"\n"+body)...)
	report.Indicators = append(report.Indicators, headerIndicators(report)...)
	report.Indicators = append(report.Indicators, linkIndicators(report)...)
	report.BodyTextPreview = truncate(strings.Join(strings.Fields(body), " "), bodyPreviewSize)

	positives, total := 0, 0
	for _, link := range report.LinkReports {
		positives += link.Positives
		total += link.Total
	}
	for _, attachment := range report.Attachments {
		if attachment.Report != nil {
			positives += attachment.Report.Positives
			total += attachment.Report.Total
		}
	}
	report.RiskLevel = emailRiskLevel(positives, len(report.Indicators))

	span.SetAttributes(
		attribute.Int("email.links", len(report.Links)),
		attribute.Int("email.attachments", len(report.Attachments)),
		attribute.String("email.risk", report.RiskLevel),
	)
	span.SetStatus(codes.Ok, "analysed")

	subject := report.Subject
	if strings.TrimSpace(subject) == "" {
		subject = "(no subject)"
	}
	s.record(ctx, userID, models.ThreatScanEmail, dto.ThreatReport{
		Resource:  subject,
		Kind:      models.ThreatScanEmail,
		Positives: positives,
		Total:     total,
	}, report)
	return report, nil
}

// scanEmailContent looks up links and attachment hashes with a bounded number of workers.
func (s *threatService) scanEmailContent(ctx context.Context, report *dto.EmailAnalysisReport, files []emailAttachment) {
	configured := s.scanner != nil && s.scanner.Configured()

	links := report.Links
	if len(links) > s.maxLinks {
		links = links[:s.maxLinks]
	}
	if !configured {
		links = nil
	}
	report.ScannedLinks = len(links)
	report.SkippedLinks = len(report.Links) - len(links)
	report.LinkReports = make([]dto.ThreatReport, len(links))
	report.Attachments = make([]dto.EmailAttachmentReport, len(files))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(emailScanWorkers)

	for i, link := range links {
		g.Go(func() error {
			result := s.lookup(ctx, virustotal.KindURL, link)
			mu.Lock()
			report.LinkReports[i] = result
			mu.Unlock()
			return nil
		})
	}

	for i, attachment := range files {
		sum := sha256.Sum256(attachment.content)
		digest := hex.EncodeToString(sum[:])
		report.Attachments[i] = dto.EmailAttachmentReport{
			Filename: attachment.name,
			MimeType: mimetype.Detect(attachment.content).String(),
			Size:     len(attachment.content),
			SHA256:   digest,
		}
		if !configured {
			continue
		}
		g.Go(func() error {
			result := s.lookup(ctx, virustotal.KindHash, digest)
			mu.Lock()
			report.Attachments[i].Report = &result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func parseEmail(payload []byte) (*parsedEmail, error) {
	reader, err := mail.CreateReader(bytes.NewReader(payload))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if reader == nil {
		return nil, ErrInvalidEmail
	}
	defer reader.Close()

	header := reader.Header
	if header.Get("From") == "" && header.Get("Subject") == "" && header.Get("Date") == "" {
		return nil, ErrInvalidEmail
	}

	parsed := &parsedEmail{}
	report := &parsed.report
	report.From = firstAddress(header, "From")
	report.ReplyTo = firstAddress(header, "Reply-To")
	report.ReturnPath = strings.Trim(strings.TrimSpace(header.Get("Return-Path")), "<>")
	report.Subject, _ = header.Subject()
	if date, err := header.Date(); err == nil && !date.IsZero() {
		report.Date = &date
	}
	report.To = []string{}
	if addresses, err := header.AddressList("To"); err == nil {
		for _, address := range addresses {
			report.To = append(report.To, address.Address)
		}
	}
	report.Authentication = authenticationResults(headerValues(header, "Authentication-Results"))

	links := newLinkSet()
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			break
		}

		content, err := io.ReadAll(io.LimitReader(part.Body, maxPartBytes))
		if err != nil {
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/html"):
				text := collectHTML(content, links)
				parsed.htmlText.WriteString(text)
			case strings.HasPrefix(contentType, "text/"):
				parsed.plainText.Write(content)
				parsed.plainText.WriteString("\n")
				for _, match := range textLinkPattern.FindAllString(string(content), -1) {
					links.add(strings.TrimRight(match, ".,;:!?"))
				}
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			parsed.files = append(parsed.files, emailAttachment{name: cleanUploadName(name), content: content})
		}
	}

	report.Links = links.items
	report.Indicators = []string{}
	return parsed, nil
}

func firstAddress(header mail.Header, key string) string {
	addresses, err := header.AddressList(key)
	if err == nil && len(addresses) > 0 {
		return addresses[0].Address
	}
	return strings.TrimSpace(header.Get(key))
}

func headerValues(header mail.Header, key string) []string {
	var values []string
	fields := header.Fields()
	for fields.Next() {
		if strings.EqualFold(fields.Key(), key) {
			values = append(values, fields.Value())
		}
	}
	return values
}

func authenticationResults(values []string) map[string]string {
	results := map[string]string{}
	for _, value := range values {
		for _, match := range authResultPattern.FindAllStringSubmatch(value, -1) {
			mechanism := strings.ToLower(match[1])
			if _, seen := results[mechanism]; !seen {
				results[mechanism] = strings.ToLower(match[2])
			}
		}
	}
	return results
}

// collectHTML adds anchor targets to links and returns the visible text of the part.
func collectHTML(content []byte, links *linkSet) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(content))
	var text strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return text.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.DataAtom {
			case atom.A:
				if href := attr(token, "href"); strings.HasPrefix(strings.ToLower(href), "http") {
					links.add(href)
				}
			case atom.Script, atom.Style:
				if token.Type == html.StartTagToken {
					skip++
				}
			}
		case html.EndTagToken:
			token := tokenizer.Token()
			if (token.DataAtom == atom.Script || token.DataAtom == atom.Style) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				text.Write(tokenizer.Text())
				text.WriteString(" ")
			}
		}
	}
}

type linkSet struct {
	seen  map[string]bool
	items []string
}

func newLinkSet() *linkSet {
	return &linkSet{seen: map[string]bool{}, items: []string{}}
}

func (l *linkSet) add(link string) {
	link = strings.TrimSpace(link)
	if link == "" || l.seen[link] {
		return
	}
	l.seen[link] = true
	l.items = append(l.items, link)
}

func contentIndicators(text string) []string {
	lower := strings.ToLower(text)
	var indicators []string
	for _, word := range urgencyWords {
		if strings.Contains(lower, word) {
			indicators = append(indicators, "urgent language: "+word)
			break
		}
	}
	for _, phrase := range suspiciousPhrases {
		if strings.Contains(lower, phrase) {
			indicators = append(indicators, "suspicious phrase: "+phrase)
			break
		}
	}
	if moneyPattern.MatchString(text) {
		indicators = append(indicators, "mentions money amounts")
	}
	if strings.Count(text, "!")+strings.Count(text, "?") > 3 {
		indicators = append(indicators, "excessive punctuation")
	}
	return indicators
}

func headerIndicators(report dto.EmailAnalysisReport) []string {
	var indicators []string
	fromDomain := addressDomain(report.From)
	if report.ReplyTo != "" && fromDomain != "" && addressDomain(report.ReplyTo) != fromDomain {
		indicators = append(indicators, "reply-to domain differs from sender")
	}
	if report.ReturnPath != "" && fromDomain != "" && addressDomain(report.ReturnPath) != fromDomain {
		indicators = append(indicators, "return-path domain differs from sender")
	}
	for _, mechanism := range []string{"spf", "dkim", "dmarc"} {
		if result, ok := report.Authentication[mechanism]; ok && failingAuthResults[result] {
			indicators = append(indicators, fmt.Sprintf("%s check %s", mechanism, result))
		}
	}
	return indicators
}

func linkIndicators(report dto.EmailAnalysisReport) []string {
	var indicators []string
	rawIP := false
	for _, link := range report.Links {
		parsed, err := url.Parse(link)
		if err == nil && net.ParseIP(parsed.Hostname()) != nil {
			rawIP = true
			break
		}
	}
	if rawIP {
		indicators = append(indicators, "link points to a raw IP address")
	}
	for _, link := range report.LinkReports {
		if link.Positives > 0 {
			indicators = append(indicators, "link flagged by threat intelligence: "+link.Resource)
		}
	}
	for _, attachment := range report.Attachments {
		if attachment.Report != nil && attachment.Report.Positives > 0 {
			indicators = append(indicators, "attachment flagged by threat intelligence: "+attachment.Filename)
		}
	}
	return indicators
}

func addressDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimRight(address[at+1:], ">"))
}

func emailRiskLevel(positives, indicators int) string {
	switch {
	case positives > 0 || indicators >= 4:
		return "high"
	case indicators >= 2:
		return "medium"
	default:
		return "low"
	}
}
