package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

var errHTTPDisabled = errors.New("http not enabled")

// HTTPConfig restricts outbound requests made on behalf of sandboxed code.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.MaxURLLength <= 0 {
		c.MaxURLLength = DefaultMaxURLLength
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// HTTP performs allow-listed requests.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	cfg = cfg.withDefaults()
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Register binds http_request and http_get on r.
func (h *HTTP) Register(r *Registry) {
	r.Register("http_request", h.Request)
	r.Register("http_get", h.Get)
}

// Get is Request with the method forced to GET.
func (h *HTTP) Get(ctx context.Context, args map[string]any) (any, error) {
	fwd := make(map[string]any, len(args)+1)
	for k, v := range args {
		fwd[k] = v
	}
	fwd["method"] = http.MethodGet
	return h.Request(ctx, fwd)
}

// Request performs the call described by args (method, url, body, headers)
// and returns {status, body, headers}.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	method := http.MethodGet
	if m, _ := args["method"].(string); m != "" {
		method = strings.ToUpper(m)
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodPatch, http.MethodHead, http.MethodOptions:
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}

	target, err := h.checkURL(args["url"])
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if s, ok := args["body"].(string); ok && s != "" {
		if int64(len(s)) > h.cfg.MaxBodySize {
			return nil, errors.New("request body exceeds max size")
		}
		body = strings.NewReader(s)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"body":    string(respBody),
		"headers": respHeaders,
	}, nil
}

func (h *HTTP) checkURL(raw any) (string, error) {
	rawURL, ok := raw.(string)
	if !ok || rawURL == "" {
		return "", errors.New("url required")
	}
	if len(rawURL) > h.cfg.MaxURLLength {
		return "", errors.New("url exceeds max length")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.New("invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("scheme must be http or https")
	}
	if len(h.cfg.AllowedHosts) == 0 {
		return "", errHTTPDisabled
	}

	host := parsed.Hostname()
	if !h.hostAllowed(host) {
		return "", fmt.Errorf("host not allowed: %s", host)
	}
	return rawURL, nil
}

// hostAllowed matches exact hosts and their subdomains. IP literals only
// match an equal IP entry.
func (h *HTTP) hostAllowed(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		for _, allowed := range h.cfg.AllowedHosts {
			if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(ip) {
				return true
			}
		}
		return false
	}
	for _, allowed := range h.cfg.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
