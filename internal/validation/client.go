package validation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout bounds every outbound call made by this package.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

// HTTPDoer is the subset of *http.Client used by the prober and the fetcher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a pooled client with its own transport and a fixed timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return client
}

var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
	"Sec-Fetch-Dest":  "empty",
	"Sec-Fetch-Mode":  "cors",
	"Sec-Fetch-Site":  "same-origin",
}

// newTenantRequest builds an authenticated POST carrying an empty JSON object.
func newTenantRequest(ctx context.Context, endpoint, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// newPortalRequest builds a GET against the billing portal.
func newPortalRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// doRequest performs the call and returns the status code with the (capped) body.
func doRequest(client HTTPDoer, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// isTimeout reports whether err stems from a client or context deadline.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// tenantEndpoint joins the tenant base URL and path with exactly one slash.
func tenantEndpoint(tenantURL, path string) string {
	return strings.TrimRight(tenantURL, "/") + "/" + strings.TrimLeft(path, "/")
}
