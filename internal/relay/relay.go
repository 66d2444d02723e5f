// ABOUTME: HTTP client that relays blobs to the CESS DeOSS storage gateway
// ABOUTME: Uploads via multipart PUT, fetches and probes by file identifier

package relay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/showcase-backend/internal/apperr"
)

// DefaultTimeout bounds every gateway call when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxFetchSize caps how much of a fetched blob is read into memory.
const maxFetchSize = 64 << 20

// Header names the gateway expects on authenticated requests.
const (
	HeaderAccount   = "Account"
	HeaderMessage   = "Message"
	HeaderSignature = "Signature"
	HeaderTerritory = "Territory"
)

// fidPaths are the JSON paths probed, in order, for the identifier the
// gateway assigned. DeOSS answers {"code":200,"data":"<fid>"}.
var fidPaths = []string{"fid", "data.fid", "data", "cid"}

// Config holds the gateway endpoint and credentials.
type Config struct {
	// Endpoint is the file URL, e.g. https://deoss-sgp.cess.network/file.
	Endpoint  string
	Account   string
	Message   string
	Signature string
	Territory string
	Timeout   time.Duration
}

// Observer receives the outcome of every upload. Outcome is one of
// "ok", "fallback", "configuration", "upstream", "timeout", "error".
type Observer interface {
	ObserveUpload(outcome string, size int)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers an upload observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// Client talks to the storage gateway. It never retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// New creates a Client. Credentials are checked lazily on Upload so a
// server can start and serve reads without them.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, apperr.Newf(apperr.KindConfiguration, "relay", "gateway endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default().With("component", "relay"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the gateway URL for a file identifier.
func (c *Client) URL(fid string) string {
	return c.cfg.Endpoint + "/" + fid
}

// Endpoint returns the configured file endpoint.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// checkCredentials reports which credentials are missing.
func (c *Client) checkCredentials() error {
	var missing []string
	if c.cfg.Account == "" {
		missing = append(missing, "account")
	}
	if c.cfg.Message == "" {
		missing = append(missing, "message")
	}
	if c.cfg.Signature == "" {
		missing = append(missing, "signature")
	}
	if c.cfg.Territory == "" {
		missing = append(missing, "territory")
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.KindConfiguration, "relay upload", "missing gateway credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Upload sends data to the gateway and returns its file identifier.
// When the gateway answers 2xx without a usable identifier, the identifier
// is the hex SHA-256 of data (see FallbackID); it will not match what the
// gateway stored but is stable for identical bytes.
func (c *Client) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	fid, outcome, err := c.upload(ctx, data, filename, contentType)
	if c.observer != nil {
		c.observer.ObserveUpload(outcome, len(data))
	}
	return fid, err
}

func (c *Client) upload(ctx context.Context, data []byte, filename, contentType string) (string, string, error) {
	if err := c.checkCredentials(); err != nil {
		return "", "configuration", err
	}
	if filename == "" {
		filename = "blob"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body, formType, err := multipartBody(data, filename, contentType)
	if err != nil {
		return "", "error", fmt.Errorf("building multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", "error", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	c.setAuthHeaders(req)

	c.logger.Info("uploading blob", "filename", filename, "size", len(data), "content_type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("upload timed out", "filename", filename, "timeout", c.cfg.Timeout)
			return "", "timeout", apperr.New(apperr.KindTimeout, "relay upload", errors.New("upload timeout"))
		}
		c.logger.Error("upload failed", "filename", filename, "error", err)
		return "", "upstream", apperr.New(apperr.KindUpstream, "relay upload", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway rejected upload", "filename", filename, "status", resp.StatusCode, "body", truncate(respBody, 256))
		return "", "upstream", apperr.UpstreamStatus("relay upload", resp.StatusCode, errors.New("gateway upload failed"))
	}

	if readErr == nil {
		if fid := extractFID(respBody); fid != "" {
			c.logger.Info("blob uploaded", "filename", filename, "fid", fid)
			return fid, "ok", nil
		}
	}

	fid := FallbackID(data)
	c.logger.Warn("gateway response carried no file identifier, using content hash", "filename", filename, "fid", fid)
	return fid, "fallback", nil
}

// Fetch downloads a blob. Any non-200 answer is reported as not found.
func (c *Client) Fetch(ctx context.Context, fid string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(fid), nil)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}
	if c.cfg.Account != "" {
		req.Header.Set(HeaderAccount, c.cfg.Account)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, apperr.New(apperr.KindTimeout, "relay fetch", errors.New("fetch timeout"))
		}
		return nil, apperr.New(apperr.KindUpstream, "relay fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.KindNotFound, "relay fetch", "file %s not found (status %d)", fid, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return nil, apperr.New(apperr.KindUpstream, "relay fetch", fmt.Errorf("reading body: %w", err))
	}
	return data, nil
}

// Exists probes a blob with HEAD. Transport errors count as absence.
func (c *Client) Exists(ctx context.Context, fid string) bool {
	ok, err := c.head(ctx, c.URL(fid))
	if err != nil {
		c.logger.Debug("existence probe failed", "fid", fid, "error", err)
		return false
	}
	return ok
}

// Reachable reports whether the gateway answers at all. Any HTTP answer
// below 500 counts, since the bare endpoint usually rejects HEAD.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func (c *Client) head(ctx context.Context, url string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	if c.cfg.Account != "" {
		req.Header.Set(HeaderAccount, c.cfg.Account)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set(HeaderAccount, c.cfg.Account)
	req.Header.Set(HeaderMessage, c.cfg.Message)
	req.Header.Set(HeaderSignature, c.cfg.Signature)
	req.Header.Set(HeaderTerritory, c.cfg.Territory)
}

// FallbackID is the hex SHA-256 of data.
func FallbackID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// extractFID returns the first non-empty string found at fidPaths, or "".
func extractFID(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range fidPaths {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return strings.TrimSpace(r.Str)
		}
	}
	return ""
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody encodes data as a single "file" form part carrying the
// caller's content type.
func multipartBody(data []byte, filename, contentType string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
