// Package lmsclient is the thin, stateless, retriable wrapper over the
// course LMS (spec.md §6): course info, people, assignments with
// overrides, override writes, and grade posting. It also owns the
// synchronizer that builds a consistent in-memory View and its on-disk
// cache fallback (spec.md §4.1).
package lmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// Client is the narrow interface the rest of rudaux consumes (spec.md §6).
// An HTTP-backed implementation lives in this file; tests use a small fake
// against the same interface.
type Client interface {
	GetCourseInfo(ctx context.Context) (CourseInfo, error)
	GetStudents(ctx context.Context) ([]PersonRecord, error)
	GetTAs(ctx context.Context) ([]PersonRecord, error)
	GetInstructors(ctx context.Context) ([]PersonRecord, error)
	GetFakeStudents(ctx context.Context) ([]PersonRecord, error)
	GetAssignments(ctx context.Context) ([]AssignmentRecord, error)
	CreateOverride(ctx context.Context, assignmentID string, spec OverrideSpec) (string, error)
	RemoveOverride(ctx context.Context, assignmentID, overrideID string) error
	PutGrade(ctx context.Context, assignmentID, studentID, percentage string) error
	IsGradePosted(ctx context.Context, assignmentID, studentID string) (bool, error)
}

// PersonRecord and AssignmentRecord are the wire shapes returned by the
// LMS; the synchronizer converts them into domain types.
type PersonRecord struct {
	ID           string  `json:"id"`
	SISID        string  `json:"sis_id"`
	Name         string  `json:"name"`
	SortableName string  `json:"sortable_name"`
	RegCreated   string  `json:"reg_created"`
	RegUpdated   *string `json:"reg_updated"`
	Active       bool    `json:"active"`
}

type OverrideRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Students []string `json:"students"`
	UnlockAt *string  `json:"unlock_at"`
	DueAt    *string  `json:"due_at"`
	LockAt   *string  `json:"lock_at"`
}

type AssignmentRecord struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	UnlockAt  *string          `json:"unlock_at"`
	DueAt     *string          `json:"due_at"`
	LockAt    *string          `json:"lock_at"`
	MaxScore  float64          `json:"max_score"`
	Overrides []OverrideRecord `json:"overrides"`
}

// httpClient is the real Client implementation: a thin authenticated JSON
// wrapper, rate limited the way the teacher's GraphQL client is
// (internal/api/client.go), retried through cenkalti/backoff for
// transient failures (spec.md §7's "transient external" error kind).
type httpClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a Client against a real LMS deployment. The rate
// limit (10 req/s, burst 20) is conservative relative to most LMS REST
// APIs' documented ceilings, mirroring the teacher's choice to budget
// well under Linear's documented 1500/hour.
func NewHTTPClient(baseURL, token string) Client {
	return &httpClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (c *httpClient) GetCourseInfo(ctx context.Context) (CourseInfo, error) {
	var out CourseInfo
	err := c.getJSON(ctx, "/api/v1/course", &out)
	return out, err
}

func (c *httpClient) GetStudents(ctx context.Context) ([]PersonRecord, error) {
	return c.getPersonList(ctx, "/api/v1/students")
}

func (c *httpClient) GetTAs(ctx context.Context) ([]PersonRecord, error) {
	return c.getPersonList(ctx, "/api/v1/tas")
}

func (c *httpClient) GetInstructors(ctx context.Context) ([]PersonRecord, error) {
	return c.getPersonList(ctx, "/api/v1/instructors")
}

func (c *httpClient) GetFakeStudents(ctx context.Context) ([]PersonRecord, error) {
	return c.getPersonList(ctx, "/api/v1/fake_students")
}

func (c *httpClient) getPersonList(ctx context.Context, path string) ([]PersonRecord, error) {
	var out []PersonRecord
	err := c.getJSON(ctx, path, &out)
	return out, err
}

func (c *httpClient) GetAssignments(ctx context.Context) ([]AssignmentRecord, error) {
	var out []AssignmentRecord
	err := c.getJSON(ctx, "/api/v1/assignments?include=overrides", &out)
	return out, err
}

func (c *httpClient) CreateOverride(ctx context.Context, assignmentID string, spec OverrideSpec) (string, error) {
	var out OverrideRecord
	path := fmt.Sprintf("/api/v1/assignments/%s/overrides", assignmentID)
	if err := c.postJSON(ctx, path, spec, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *httpClient) RemoveOverride(ctx context.Context, assignmentID, overrideID string) error {
	path := fmt.Sprintf("/api/v1/assignments/%s/overrides/%s", assignmentID, overrideID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *httpClient) PutGrade(ctx context.Context, assignmentID, studentID, percentage string) error {
	path := fmt.Sprintf("/api/v1/assignments/%s/submissions/%s", assignmentID, studentID)
	body := map[string]string{"posted_grade": percentage}
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *httpClient) IsGradePosted(ctx context.Context, assignmentID, studentID string) (bool, error) {
	var out struct {
		Posted bool `json:"posted"`
	}
	path := fmt.Sprintf("/api/v1/assignments/%s/submissions/%s/posted", assignmentID, studentID)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return false, err
	}
	return out.Posted, nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do issues one HTTP call, rate limited and retried with bounded
// exponential backoff — every external call the driver makes is a
// suspension point (spec.md §5). Network failures and 5xx responses are
// treated as the "transient external" error kind (§7) and retried; a 4xx
// response is returned at once without retrying.
func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "lms rate limit wait cancelled")
	}

	op := func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, backoff.Permanent(errors.Wrap(err, "marshal request body"))
			}
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, "build request"))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "lms request failed")
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, errors.Newf("lms returned %d for %s %s", resp.StatusCode, method, path)
		}
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			msg, _ := io.ReadAll(resp.Body)
			return nil, backoff.Permanent(errors.Newf("lms returned %d for %s %s: %s", resp.StatusCode, method, path, msg))
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, op, backoff.WithMaxTries(4), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode lms response")
	}
	return nil
}
