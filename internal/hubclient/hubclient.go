// Package hubclient wraps the JupyterHub-style hub API: checking whether a
// grader account exists and mapping it to the human grader who owns it
// (spec.md §6). Second instantiation of the teacher's thin-authenticated-
// JSON-client idiom (internal/api/client.go), simpler than the LMS client
// since the hub has no meaningful rate-limit budget at course scale.
package hubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
)

// Client is the narrow interface the grader provisioner consumes.
type Client interface {
	GraderExists(ctx context.Context, name string) (bool, error)
	AssignGrader(ctx context.Context, name, humanID string) error
}

type httpClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient builds a Client against a real hub deployment.
func NewHTTPClient(baseURL, token string) Client {
	return &httpClient{baseURL: baseURL, token: token, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

func (c *httpClient) GraderExists(ctx context.Context, name string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	path := fmt.Sprintf("/hub/api/users/%s", name)
	err := c.do(ctx, http.MethodGet, path, &out)
	return out.Exists, err
}

func (c *httpClient) AssignGrader(ctx context.Context, name, humanID string) error {
	path := fmt.Sprintf("/hub/api/users/%s", name)
	body := map[string]string{"assigned_grader": humanID}
	return c.doWithBody(ctx, http.MethodPost, path, body, nil)
}

func (c *httpClient) do(ctx context.Context, method, path string, out any) error {
	return c.doWithBody(ctx, method, path, nil, out)
}

func (c *httpClient) doWithBody(ctx context.Context, method, path string, body, out any) error {
	op := func() (*http.Response, error) {
		req, err := newJSONRequest(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "token "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "hub request failed")
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, errors.Newf("hub returned %d for %s %s", resp.StatusCode, method, path)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, backoff.Permanent(errors.Newf("hub returned %d for %s %s", resp.StatusCode, method, path))
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	if body == nil {
		return http.NewRequestWithContext(ctx, method, url, nil)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
