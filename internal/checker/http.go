package checker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jaytaylor/html2text"

	"github.com/notifyhub/changewatch/internal/domain"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 10 << 20

// HTTPChecker fetches pages over HTTP, reduces HTML to its text so markup
// churn does not count as a change, and compares an MD5 of the result with
// the watch's previous checksum.
type HTTPChecker struct {
	timeout   time.Duration
	proxies   ProxyResolver
	userAgent string

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL, "" for direct
}

func NewHTTPChecker(timeout time.Duration, proxies ProxyResolver) *HTTPChecker {
	return &HTTPChecker{
		timeout:   timeout,
		proxies:   proxies,
		userAgent: "changewatch/1.0",
		clients:   make(map[string]*http.Client),
	}
}

// Check fetches w.URL. The first successful check only records a baseline
// and never reports a change.
func (c *HTTPChecker) Check(ctx context.Context, w domain.Watch) (domain.CheckResult, error) {
	client, err := c.clientFor(w.Proxy)
	if err != nil {
		return domain.CheckResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL, nil)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.CheckResult{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("read body: %w", err)
	}

	text, err := Normalize(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return domain.CheckResult{}, err
	}

	sum := Checksum(text)
	return domain.CheckResult{
		Changed:  w.Checksum != "" && w.Checksum != sum,
		Checksum: sum,
	}, nil
}

// Normalize turns a response body into the text that is checksummed.
// HTML is rendered to plain text; everything else is compared as-is with
// surrounding whitespace trimmed.
func Normalize(contentType string, body []byte) (string, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "text/html" || mt == "application/xhtml+xml" {
		text, err := html2text.FromString(string(body), html2text.Options{PrettyTables: true})
		if err != nil {
			return "", fmt.Errorf("html to text: %w", err)
		}
		return strings.TrimSpace(text), nil
	}
	return strings.TrimSpace(string(body)), nil
}

func Checksum(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *HTTPChecker) clientFor(proxyName string) (*http.Client, error) {
	proxyURL := ""
	if proxyName != "" {
		u, ok := c.proxies.Lookup(proxyName)
		if !ok {
			return nil, fmt.Errorf("proxy %q is no longer configured", proxyName)
		}
		proxyURL = u
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[proxyURL]; ok {
		return cl, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		pu, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("proxy %q: %w", proxyName, err)
		}
		transport.Proxy = http.ProxyURL(pu)
	}
	cl := &http.Client{Timeout: c.timeout, Transport: transport}
	c.clients[proxyURL] = cl
	return cl, nil
}

// compile-time check that HTTPChecker implements Checker
var _ Checker = (*HTTPChecker)(nil)
