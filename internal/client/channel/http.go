package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ozolins/attachup/internal/common"
)

// HTTPChannel sends requests as ordinary HTTP calls against the credential
// server's REST surface. It is always considered usable; reachability errors
// surface from Send itself.
type HTTPChannel struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPChannel(baseURL, token string, client *http.Client) *HTTPChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPChannel{baseURL: baseURL, token: token, client: client}
}

func (c *HTTPChannel) CanAcceptRequests() bool { return true }

func (c *HTTPChannel) Send(ctx context.Context, req Request) ([]byte, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(common.AccessTokenHeaderName, "Bearer "+c.token)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConnectivity, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, common.ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("request failed: %s: %s", resp.Status, string(data))
	}

	return data, nil
}
