package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
)

const (
	defaultMaxRedirects = 10
	maxPageBytes        = 2 << 20
	longRedirectChain   = 3
)

var errBlockedAddress = errors.New("destination address is not allowed")

var scriptPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"eval", regexp.MustCompile(`\beval\s*\(`)},
	{"atob", regexp.MustCompile(`\batob\s*\(`)},
	{"unescape", regexp.MustCompile(`\bunescape\s*\(`)},
	{"fromCharCode", regexp.MustCompile(`String\.fromCharCode\s*\(`)},
	{"document.write", regexp.MustCompile(`document\.write\s*\(`)},
	{"location redirect", regexp.MustCompile(`(?:window|document|top)\.location(?:\.href)?\s*=|location\.replace\s*\(`)},
	{"encoded payload", regexp.MustCompile(`["'][A-Za-z0-9+/]{200,}={0,2}["']`)},
}

type pageAnalysis struct {
	hops              []dto.RedirectHop
	finalURL          string
	externalScripts   []string
	suspiciousScripts []string
	passwordForm      bool
	metaRefresh       bool
	fetchError        string
}

func (p pageAnalysis) signals() int {
	n := len(p.suspiciousScripts)
	if p.passwordForm {
		n++
	}
	if p.metaRefresh {
		n++
	}
	if len(p.hops) > longRedirectChain {
		n++
	}
	return n
}

// newGuardedHTTPClient refuses connections to loopback, private and link-local addresses.
func newGuardedHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
				ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
				return errBlockedAddress
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil
	return &http.Client{Timeout: timeout, Transport: transport}
}

// fetchPage follows the redirect chain of target and inspects the final document.
func (s *threatService) fetchPage(ctx context.Context, target string) pageAnalysis {
	var result pageAnalysis

	client := *s.httpClient
	truncated := false
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		status := 0
		if req.Response != nil {
			status = req.Response.StatusCode
		}
		result.hops = append(result.hops, dto.RedirectHop{URL: via[len(via)-1].URL.String(), StatusCode: status})
		if len(via) >= s.maxRedirects {
			truncated = true
			return http.ErrUseLastResponse
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.fetchError = err.Error()
		return result
	}
	req.Header.Set("User-Agent", "CyberVantage-DeepScan/1.0")

	resp, err := client.Do(req)
	if err != nil {
		result.fetchError = describeFetchError(err)
		return result
	}
	defer resp.Body.Close()

	if truncated {
		result.fetchError = fmt.Sprintf("stopped after %d redirects", s.maxRedirects)
		result.finalURL = resp.Request.URL.String()
		return result
	}

	result.hops = append(result.hops, dto.RedirectHop{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode})
	result.finalURL = resp.Request.URL.String()

	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		return result
	}
	inspectDocument(io.LimitReader(resp.Body, maxPageBytes), resp.Request.URL, &result)
	return result
}

func describeFetchError(err error) string {
	if errors.Is(err, errBlockedAddress) {
		return errBlockedAddress.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "request timed out"
		}
		return urlErr.Err.Error()
	}
	return err.Error()
}

// inspectDocument tokenizes the page, collecting script sources, suspicious inline script
// patterns, password inputs and meta refresh redirects.
func inspectDocument(body io.Reader, base *url.URL, result *pageAnalysis) {
	tokenizer := html.NewTokenizer(body)
	inScript := false
	seenScripts := map[string]bool{}
	seenPatterns := map[string]bool{}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.DataAtom {
			case atom.Script:
				src := attr(token, "src")
				if src == "" {
					inScript = true
					continue
				}
				resolved := resolveReference(base, src)
				if resolved != nil && !strings.EqualFold(resolved.Hostname(), base.Hostname()) && !seenScripts[resolved.String()] {
					seenScripts[resolved.String()] = true
					result.externalScripts = append(result.externalScripts, resolved.String())
				}
			case atom.Input:
				if strings.EqualFold(attr(token, "type"), "password") {
					result.passwordForm = true
				}
			case atom.Meta:
				if strings.EqualFold(attr(token, "http-equiv"), "refresh") && strings.Contains(strings.ToLower(attr(token, "content")), "url=") {
					result.metaRefresh = true
				}
			}
		case html.EndTagToken:
			if tokenizer.Token().DataAtom == atom.Script {
				inScript = false
			}
		case html.TextToken:
			if !inScript {
				continue
			}
			code := string(tokenizer.Text())
			for _, candidate := range scriptPatterns {
				if !seenPatterns[candidate.name] && candidate.pattern.MatchString(code) {
					seenPatterns[candidate.name] = true
					result.suspiciousScripts = append(result.suspiciousScripts, candidate.name)
				}
			}
		}
	}
}

func attr(token html.Token, key string) string {
	for _, a := range token.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolveReference(base *url.URL, ref string) *url.URL {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	if base == nil {
		return parsed
	}
	return base.ResolveReference(parsed)
}
