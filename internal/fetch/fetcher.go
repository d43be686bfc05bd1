package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"nfce/internal/config"
	"nfce/internal/logger"
)

var (
	ErrFetchFailed = errors.New("fetch failed")
	ErrInvalidURL  = errors.New("invalid receipt url")
)

// Method is one way of turning a receipt URL into document text.
type Method interface {
	Name() string
	Fetch(ctx context.Context, target *url.URL) (string, error)
}

// Fetcher tries its methods in order, one at a time, each under its own
// timeout, and returns the first non-empty document.
type Fetcher struct {
	methods []Method
	timeout time.Duration
	limiter *RateLimiter
	log     *zap.Logger
}

func New(methods []Method, timeout time.Duration, limiter *RateLimiter, log *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{methods: methods, timeout: timeout, limiter: limiter, log: logger.OrNop(log)}
}

// NewFetcher builds the method chain named by FETCH_ORDER. Proxy methods
// without a configured endpoint are left out.
func NewFetcher(cfg config.Config, log *zap.Logger) (*Fetcher, error) {
	log = logger.OrNop(log)
	client := NewHTTPClient()
	ua := cfg.FetchUserAgent
	if strings.TrimSpace(ua) == "" {
		ua = config.DefaultUserAgent
	}

	methods := make([]Method, 0, len(cfg.FetchOrder))
	for _, name := range cfg.FetchOrder {
		switch name {
		case MethodDirect:
			methods = append(methods, &DirectMethod{Client: client, UserAgent: ua})
		case MethodProxy:
			if strings.TrimSpace(cfg.ProxyURL) == "" {
				log.Debug("forwarding proxy not configured, skipping")
				continue
			}
			methods = append(methods, &ProxyMethod{Client: client, BaseURL: cfg.ProxyURL, UserAgent: ua})
		case MethodReadable:
			if strings.TrimSpace(cfg.ReadableURL) == "" {
				log.Debug("readable proxy not configured, skipping")
				continue
			}
			methods = append(methods, &ReadableMethod{Client: client, BaseURL: cfg.ReadableURL, UserAgent: ua})
		default:
			return nil, fmt.Errorf("unknown fetch method %q", name)
		}
	}

	timeout := time.Duration(cfg.FetchTimeoutMs) * time.Millisecond
	return New(methods, timeout, NewRateLimiter(cfg.FetchRateLimitRPS), log), nil
}

// NewHTTPClient returns a client without a cookie jar that only follows
// redirects to http(s) locations. Timeouts come from the request context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			req.Header.Del("Authorization")
			req.Header.Del("Cookie")
			return nil
		},
	}
}

// ValidateTargetURL accepts absolute http(s) URLs without embedded credentials.
func ValidateTargetURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials are not allowed", ErrInvalidURL)
	}
	return u, nil
}

func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (string, error) {
	target, err := ValidateTargetURL(rawURL)
	if err != nil {
		return "", err
	}
	if len(f.methods) == 0 {
		return "", fmt.Errorf("%w: no fetch methods configured", ErrFetchFailed)
	}

	var errs []error
	for _, m := range f.methods {
		if err := f.limiter.WaitTurn(ctx); err != nil {
			return "", err
		}

		started := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		body, err := m.Fetch(attemptCtx, target)
		cancel()

		if err == nil && strings.TrimSpace(body) == "" {
			err = errors.New("empty document")
		}
		if err == nil {
			f.log.Info("receipt fetched",
				zap.String("method", m.Name()),
				zap.String("host", target.Host),
				zap.Int("bytes", len(body)),
				zap.Duration("took", time.Since(started)))
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		f.log.Warn("fetch attempt failed",
			zap.String("method", m.Name()),
			zap.String("host", target.Host),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
	}

	return "", fmt.Errorf("%w: %w", ErrFetchFailed, errors.Join(errs...))
}
