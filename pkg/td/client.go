package td

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// RetryPolicy bounds the client's retries on transport failures and 5xx
// responses. 4xx responses are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Second}
}

// Client talks to one platform API endpoint with one API key.
type Client struct {
	client   *fasthttp.Client
	endpoint string
	apiKey   string
	retry    RetryPolicy
	timeout  time.Duration
}

func NewClient(httpC *fasthttp.Client, endpoint, apiKey string, retry RetryPolicy) *Client {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Client{
		client:   httpC,
		endpoint: endpoint,
		apiKey:   apiKey,
		retry:    retry,
		timeout:  time.Minute,
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// APIError is a non-2xx platform response.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s returned status %d: %s", e.Path, e.Status, e.Body)
}

// Auth reports whether the failure is an authentication or authorization
// rejection, so callers can surface a credential hint.
func (e *APIError) Auth() bool {
	return e.Status == fasthttp.StatusUnauthorized || e.Status == fasthttp.StatusForbidden
}

func (c *Client) do(method, path string, body []byte, contentType string) (int, []byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(c.retry.Backoff)
			log.Debug().Str("path", path).Int("attempt", attempt).Msg("Retrying request")
		}

		status, respBody, err := c.doOnce(method, path, body, contentType)
		if err != nil {
			lastErr = errors.Wrapf(err, "failed to make request to %s", path)
			continue
		}
		if status >= fasthttp.StatusInternalServerError {
			lastErr = &APIError{Status: status, Path: path, Body: string(respBody)}
			continue
		}
		return status, respBody, nil
	}
	return 0, nil, lastErr
}

func (c *Client) doOnce(method, path string, body []byte, contentType string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(c.endpoint + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "TD1 "+c.apiKey)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return 0, nil, err
	}

	// Body() is pooled memory, copy before release.
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

func (c *Client) Get(path string) (int, []byte, error) {
	return c.do(fasthttp.MethodGet, path, nil, "")
}

func (c *Client) Post(path string, body []byte, contentType string) (int, []byte, error) {
	return c.do(fasthttp.MethodPost, path, body, contentType)
}

func (c *Client) Put(path string, body []byte, contentType string) (int, []byte, error) {
	return c.do(fasthttp.MethodPut, path, body, contentType)
}

// getJSON fetches path and decodes the 200 response into out.
func (c *Client) getJSON(path string, out interface{}) error {
	status, body, err := c.Get(path)
	if err != nil {
		return err
	}
	if status != fasthttp.StatusOK {
		return &APIError{Status: status, Path: path, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", path)
	}
	return nil
}

func escape(s string) string {
	return url.PathEscape(s)
}
