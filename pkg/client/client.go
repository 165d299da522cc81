// Package client talks to a folio deployment over HTTP. Reads retry on
// connection errors; writes are sent once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"folio/pkg/signature"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	defaultTimeout      = 30 * time.Second

	headerInternalSecret = "X-Internal-Secret"
)

type Options struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	// Function is the route group, e.g. "portfolio".
	Function string

	// Exactly one credential is used for writes, in this order.
	Token           string
	SignatureSecret string
	Secret          string

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

type Client struct {
	opts  Options
	read  *retryablehttp.Client
	write *retryablehttp.Client
	now   func() time.Time
}

func New(opts Options) *Client {
	if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = defaultRetryWaitMin
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = defaultRetryWaitMax
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.Function = strings.Trim(opts.Function, "/")

	return &Client{
		opts:  opts,
		read:  newRetryableClient(opts.RetryMax, opts.RetryWaitMin, opts.RetryWaitMax, opts.Timeout),
		write: newRetryableClient(0, opts.RetryWaitMin, opts.RetryWaitMax, opts.Timeout),
		now:   time.Now,
	}
}

func newRetryableClient(retryMax int, waitMin, waitMax, timeout time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = waitMin
	client.RetryWaitMax = waitMax
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	client.CheckRetry = retryOnConnectionError
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

// retryOnConnectionError retries only when no response arrived. Error
// responses are handed back to the caller untouched.
func retryOnConnectionError(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	return err != nil, nil
}

// APIError is a non-2xx response.
type APIError struct {
	Status     int
	Message    string
	Details    string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("folio: %d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("folio: %d %s", e.Status, e.Message)
}

func (c *Client) url(path string) string {
	if c.opts.Function == "" {
		return c.opts.BaseURL + path
	}
	return c.opts.BaseURL + "/" + c.opts.Function + path
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.url(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	return c.do(c.read, req, out)
}

// send issues a write to target with the configured credential.
func (c *Client) send(ctx context.Context, method, target string, body []byte, contentType string, out interface{}) error {
	var payload interface{}
	if body != nil {
		payload = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	switch {
	case c.opts.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	case c.opts.SignatureSecret != "":
		ts := signature.Timestamp(c.now())
		req.Header.Set(signature.HeaderTimestamp, ts)
		req.Header.Set(signature.HeaderSignature,
			signature.Sign(c.opts.SignatureSecret, ts, method, req.URL.Path, body))
	case c.opts.Secret != "":
		req.Header.Set(headerInternalSecret, c.opts.Secret)
	}

	return c.do(c.write, req, out)
}

func (c *Client) do(client *retryablehttp.Client, req *retryablehttp.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Error      string `json:"error"`
			Details    string `json:"details"`
			RetryAfter int    `json:"retryAfter"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Details = body.Details
			apiErr.RetryAfter = body.RetryAfter
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// File is an image attached to a create or update form.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type formField struct {
	name  string
	value string
}

func encodeForm(fields []formField, fileField string, files []File) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, f.Name))
		h.Set("Content-Type", f.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
