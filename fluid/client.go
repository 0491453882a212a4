package fluid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-droplet/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultDomainSuffix  = "fluid.app"
	defaultCallTimeout   = 30 * time.Second
	defaultBodyLimit     = int64(4 << 20)
	defaultRetryAfter429 = 2 * time.Second
)

// Rate-limit buckets group outbound calls by endpoint family so one noisy
// surface cannot starve the others for the same shop.
const (
	bucketInstallations = "droplet_installations"
	bucketWebhooks      = "webhooks"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	// DomainSuffix completes bare shop identifiers that carry no dot, e.g.
	// "acme" becomes "acme.fluid.app". Shop domains that already look like a
	// host pass through unchanged.
	DomainSuffix         string
	HTTPClient           HTTPDoer
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	RateLimit            core.RateLimitPolicy
	Logger               core.Logger
}

func DefaultConfig() Config {
	return Config{
		DomainSuffix:         defaultDomainSuffix,
		Timeout:              defaultCallTimeout,
		MaxResponseBodyBytes: defaultBodyLimit,
	}
}

// Client issues JSON-over-HTTPS calls against a shop's platform host. It is
// the single outbound path for exchange, registration, and resource reads.
type Client struct {
	http         HTTPDoer
	domainSuffix string
	timeout      time.Duration
	maxBodyBytes int64
	rateLimit    core.RateLimitPolicy
	log          core.Logger
}

func NewClient(cfg Config) *Client {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.DomainSuffix) == "" {
		cfg.DomainSuffix = defaults.DomainSuffix
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaults.Timeout}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxResponseBodyBytes <= 0 {
		cfg.MaxResponseBodyBytes = defaults.MaxResponseBodyBytes
	}
	return &Client{
		http:         cfg.HTTPClient,
		domainSuffix: strings.TrimSpace(cfg.DomainSuffix),
		timeout:      cfg.Timeout,
		maxBodyBytes: cfg.MaxResponseBodyBytes,
		rateLimit:    cfg.RateLimit,
		log:          cfg.Logger,
	}
}

type platformCall struct {
	Method     string
	ShopDomain string
	Path       string
	Query      map[string]string
	Token      string
	Bucket     string
	Body       any
}

type platformResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// call runs one bounded platform request. The response comes back for any
// HTTP status; mapping a non-2xx status onto the error taxonomy is the
// caller's job because the right text code depends on the operation.
func (c *Client) call(ctx context.Context, req platformCall) (platformResponse, error) {
	if c == nil || c.http == nil {
		return platformResponse{}, fluidInternal("fluid: client requires an http doer", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	host, err := shopHost(req.ShopDomain, c.domainSuffix)
	if err != nil {
		return platformResponse{}, err
	}
	key := core.RateLimitKey{ShopDomain: host, BucketKey: req.Bucket}

	if c.rateLimit != nil {
		if err := c.rateLimit.BeforeCall(ctx, key); err != nil {
			return platformResponse{}, fluidWrapError(
				err,
				goerrors.CategoryRateLimit,
				"fluid: call throttled by rate limit policy",
				http.StatusTooManyRequests,
				core.ServiceErrorRateLimited,
				map[string]any{"shop_domain": host, "bucket": req.Bucket},
			)
		}
	}

	endpoint := &url.URL{Scheme: "https", Host: host, Path: req.Path}
	if len(req.Query) > 0 {
		query := endpoint.Query()
		for name, value := range req.Query {
			if strings.TrimSpace(name) == "" {
				continue
			}
			query.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
		endpoint.RawQuery = query.Encode()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return platformResponse{}, fluidWrapError(
				err,
				goerrors.CategoryInternal,
				"fluid: encode request body",
				http.StatusInternalServerError,
				core.ServiceErrorInternal,
				map[string]any{"method": method, "path": req.Path},
			)
		}
	}

	callCtx := ctx
	cancel := func() {}
	if c.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, method, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return platformResponse{}, fluidWrapError(
			err,
			goerrors.CategoryInternal,
			"fluid: create platform request",
			http.StatusInternalServerError,
			core.ServiceErrorInternal,
			map[string]any{"method": method, "path": req.Path},
		)
	}
	httpReq.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	startedAt := time.Now().UTC()
	httpRes, err := c.http.Do(httpReq)
	if err != nil {
		return platformResponse{}, fluidWrapError(
			err,
			goerrors.CategoryExternal,
			"fluid: execute platform request",
			http.StatusBadGateway,
			core.ServiceErrorPlatformUnavailable,
			map[string]any{"method": method, "host": host, "path": req.Path},
		)
	}
	defer httpRes.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpRes.Body, c.maxBodyBytes+1))
	if err != nil {
		return platformResponse{}, fluidWrapError(
			err,
			goerrors.CategoryExternal,
			"fluid: read platform response",
			http.StatusBadGateway,
			core.ServiceErrorPlatformUnavailable,
			map[string]any{"method": method, "host": host, "status_code": httpRes.StatusCode},
		)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return platformResponse{}, fluidError(
			fmt.Sprintf("fluid: platform response exceeds limit of %d bytes", c.maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			core.ServiceErrorPlatformUnavailable,
			map[string]any{"method": method, "host": host, "status_code": httpRes.StatusCode},
		)
	}

	res := platformResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
	}

	if c.rateLimit != nil {
		meta := responseMeta(res, req.Bucket)
		if err := c.rateLimit.AfterCall(ctx, key, meta); err != nil {
			c.logger().Warn("rate limit policy rejected response meta",
				"shop_domain", host,
				"bucket", req.Bucket,
				"error", err.Error(),
			)
		}
	}

	c.logger().Debug("platform call completed",
		"method", method,
		"host", host,
		"path", req.Path,
		"status_code", res.StatusCode,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	return res, nil
}

func (c *Client) logger() core.Logger {
	if c != nil && c.log != nil {
		return c.log
	}
	return glog.Ensure(nil)
}

// responseMeta projects one HTTP response into the shape rate-limit policies
// consume. A throttled status without a Retry-After header still carries a
// small default backoff so adaptive policies have something to work with.
func responseMeta(res platformResponse, bucket string) core.PlatformResponseMeta {
	meta := core.PlatformResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    copyStringMap(res.Headers),
		Metadata:   map[string]any{"bucket": bucket},
	}
	if retryAfter, ok := parseRetryAfter(res.Headers); ok {
		meta.RetryAfter = &retryAfter
		meta.Metadata["retry_after_source"] = "header"
	}
	if meta.StatusCode == http.StatusTooManyRequests && meta.RetryAfter == nil {
		retryAfter := defaultRetryAfter429
		meta.RetryAfter = &retryAfter
		meta.Metadata["retry_after_source"] = "default"
	}
	return meta
}

func parseRetryAfter(headers map[string]string) (time.Duration, bool) {
	raw := strings.TrimSpace(headerValue(headers, "retry-after"))
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(raw)
	if err != nil {
		return 0, false
	}
	wait := time.Until(at)
	if wait <= 0 {
		return 0, false
	}
	return wait, true
}

// shopHost turns the stored shop identifier into the platform host. A bare
// identifier without a dot gets the configured domain suffix appended; full
// hosts and URLs are normalized but otherwise trusted as-is.
func shopHost(shopDomain string, suffix string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(shopDomain))
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fluidBadInput("fluid: parse shop domain", map[string]any{"cause": err.Error()})
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return "", fluidBadInput("fluid: shop domain is required", nil)
	}
	if strings.Contains(trimmed, "/") {
		return "", fluidBadInput("fluid: invalid shop domain", map[string]any{"shop_domain": trimmed})
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += "." + strings.TrimPrefix(strings.TrimSpace(suffix), ".")
	}
	return trimmed, nil
}

func decodeResponse(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fluidError(
			"fluid: platform response body is empty",
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			core.ServiceErrorPlatformUnavailable,
			nil,
		)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fluidWrapError(
			err,
			goerrors.CategoryExternal,
			"fluid: decode platform response",
			http.StatusBadGateway,
			core.ServiceErrorPlatformUnavailable,
			nil,
		)
	}
	return nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			flat[name] = ""
			continue
		}
		flat[name] = strings.Join(values, ",")
	}
	return flat
}

func headerValue(headers map[string]string, name string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(name)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func copyStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(input))
	for name, value := range input {
		out[name] = value
	}
	return out
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case json.Number:
		return typed.String()
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return ""
	}
}
