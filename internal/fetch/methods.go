package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	MethodDirect   = "direct"
	MethodProxy    = "proxy"
	MethodReadable = "readable"

	maxDocumentBytes = 8 << 20
)

// DirectMethod requests the portal page itself.
type DirectMethod struct {
	Client    *http.Client
	UserAgent string
}

func (m *DirectMethod) Name() string { return MethodDirect }

func (m *DirectMethod) Fetch(ctx context.Context, target *url.URL) (string, error) {
	body, _, err := get(ctx, m.Client, target.String(), m.UserAgent)
	return body, err
}

// ProxyMethod asks a forwarding proxy (GET ?url=) for the page. The proxy may
// answer with raw HTML or with a JSON envelope carrying an "html" field.
type ProxyMethod struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
}

func (m *ProxyMethod) Name() string { return MethodProxy }

func (m *ProxyMethod) Fetch(ctx context.Context, target *url.URL) (string, error) {
	u, err := url.Parse(m.BaseURL)
	if err != nil {
		return "", fmt.Errorf("proxy url: %w", err)
	}
	q := u.Query()
	q.Set("url", target.String())
	u.RawQuery = q.Encode()

	body, contentType, err := get(ctx, m.Client, u.String(), m.UserAgent)
	if err != nil {
		return "", err
	}
	return unwrapEnvelope(body, contentType)
}

// ReadableMethod goes through a read-through rendering proxy addressed as
// <base>https://<host>/<path>.
type ReadableMethod struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
}

func (m *ReadableMethod) Name() string { return MethodReadable }

func (m *ReadableMethod) Fetch(ctx context.Context, target *url.URL) (string, error) {
	withoutScheme := strings.TrimPrefix(target.String(), target.Scheme+"://")
	base := strings.TrimRight(m.BaseURL, "/") + "/"
	body, _, err := get(ctx, m.Client, base+"https://"+withoutScheme, m.UserAgent)
	return body, err
}

type envelope struct {
	HTML  *string `json:"html"`
	Error string  `json:"error"`
}

func unwrapEnvelope(body, contentType string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if !strings.Contains(contentType, "json") && !strings.HasPrefix(trimmed, "{") {
		return body, nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		if strings.Contains(contentType, "json") {
			return "", fmt.Errorf("proxy envelope: %w", err)
		}
		return body, nil
	}
	if env.HTML == nil {
		if env.Error != "" {
			return "", fmt.Errorf("proxy error: %s", env.Error)
		}
		return "", errors.New("proxy envelope without html")
	}
	return *env.HTML, nil
}

func get(ctx context.Context, client *http.Client, rawURL, userAgent string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", contentType, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", contentType, fmt.Errorf("status %d", resp.StatusCode)
	}

	decoded, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw), contentType, nil
	}
	text, err := io.ReadAll(decoded)
	if err != nil {
		return string(raw), contentType, nil
	}
	return string(text), contentType, nil
}
