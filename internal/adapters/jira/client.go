/* Copyright (c) 2025 Sprintpilot contributors
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/domain"
)

// Client is a stateless typed client over the Jira Agile REST API, built per
// request from the user's stored configuration.
type Client struct {
	baseURL     string
	email       string
	token       string
	pointsField string
	http        *http.Client
	log         zerolog.Logger
}

func NewClient(cfg domain.JiraConfig, timeout time.Duration, pointsField string, log zerolog.Logger) *Client {
	host := strings.TrimRight(cfg.Domain, "/")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return &Client{
		baseURL:     "https://" + host,
		email:       cfg.Email,
		token:       cfg.APIToken,
		pointsField: pointsField,
		http:        &http.Client{Timeout: timeout},
		log:         log,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

// do issues one request with basic auth and decodes the response into out.
// 429 and 5xx responses are retried with backoff; 4xx responses map onto the
// error taxonomy.
func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		var r io.Reader
		if payload != nil {
			r = strings.NewReader(string(payload))
		}
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.SetBasicAuth(c.email, c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = &domain.TransportError{Op: method + " " + u, Err: err}
		} else {
			err = c.handle(resp, out)
			var te *domain.TransportError
			if err == nil || !errors.As(err, &te) {
				return err
			}
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return &domain.TransportError{Op: method + " " + u, Err: ctx.Err()}
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return lastErr
}

func (c *Client) handle(resp *http.Response, out any) error {
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: jira returned 404", domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		b, _ := io.ReadAll(resp.Body)
		return &domain.TransportError{
			Op:  "jira api",
			Err: fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b))),
		}
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Op: "decode response", Err: err}
	}
	return nil
}

type rawSprint struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Goal      string `json:"goal"`
}

func (s rawSprint) toDomain() domain.Sprint {
	return domain.Sprint{
		ID:        s.ID,
		Name:      s.Name,
		State:     s.State,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		Goal:      s.Goal,
	}
}

type rawIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// namedField extracts fields[key].name, tolerating null and absent fields.
func namedField(fields map[string]json.RawMessage, key string) string {
	b, ok := fields[key]
	if !ok || string(b) == "null" {
		return ""
	}
	var v struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(b, &v) != nil {
		return ""
	}
	return v.Name
}

func (c *Client) toIssue(ri rawIssue) domain.Issue {
	is := domain.Issue{
		Key:      ri.Key,
		Status:   namedField(ri.Fields, "status"),
		Type:     namedField(ri.Fields, "issuetype"),
		Assignee: "Unassigned",
		Priority: "Not set",
	}
	if b, ok := ri.Fields["summary"]; ok {
		_ = json.Unmarshal(b, &is.Summary)
	}
	if p := namedField(ri.Fields, "priority"); p != "" {
		is.Priority = p
	}
	if b, ok := ri.Fields["assignee"]; ok && string(b) != "null" {
		var v struct {
			DisplayName string `json:"displayName"`
		}
		if json.Unmarshal(b, &v) == nil && v.DisplayName != "" {
			is.Assignee = v.DisplayName
		}
	}
	if b, ok := ri.Fields[c.pointsField]; ok {
		var pts float64
		if json.Unmarshal(b, &pts) == nil {
			is.StoryPoints = pts
		}
	}
	return is
}

func (c *Client) issueFields() string {
	return "status,summary,assignee,issuetype,priority," + c.pointsField
}

// GetActiveSprint returns the board's active sprint, or nil when there is none.
func (c *Client) GetActiveSprint(ctx context.Context, boardID int64) (*domain.Sprint, error) {
	q := url.Values{}
	q.Set("state", domain.SprintStateActive)
	u := c.apiURL("/rest/agile/1.0/board/"+strconv.FormatInt(boardID, 10)+"/sprint", q)
	var out struct {
		Values []rawSprint `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Values) == 0 {
		return nil, nil
	}
	s := out.Values[0].toDomain()
	return &s, nil
}

func (c *Client) GetSprintDetails(ctx context.Context, sprintID int64) (*domain.Sprint, error) {
	u := c.apiURL("/rest/agile/1.0/sprint/"+strconv.FormatInt(sprintID, 10), nil)
	var out rawSprint
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	s := out.toDomain()
	return &s, nil
}

func (c *Client) GetSprintIssues(ctx context.Context, sprintID int64) ([]domain.Issue, error) {
	q := url.Values{}
	q.Set("maxResults", "1000")
	q.Set("fields", c.issueFields())
	u := c.apiURL("/rest/agile/1.0/sprint/"+strconv.FormatInt(sprintID, 10)+"/issue", q)
	var out struct {
		Issues []rawIssue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	issues := make([]domain.Issue, 0, len(out.Issues))
	for _, ri := range out.Issues {
		issues = append(issues, c.toIssue(ri))
	}
	return issues, nil
}

func (c *Client) GetBoardSprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
	u := c.apiURL("/rest/agile/1.0/board/"+strconv.FormatInt(boardID, 10)+"/sprint", nil)
	var out struct {
		Values []rawSprint `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	sprints := make([]domain.Sprint, 0, len(out.Values))
	for _, s := range out.Values {
		sprints = append(sprints, s.toDomain())
	}
	return sprints, nil
}

func (c *Client) ListBacklogItems(ctx context.Context, projectKey string, maxResults int) ([]domain.Issue, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("fields", c.issueFields())
	u := c.apiURL("/rest/agile/1.0/backlog/"+url.PathEscape(projectKey), q)
	var out struct {
		Issues []rawIssue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	issues := make([]domain.Issue, 0, len(out.Issues))
	for _, ri := range out.Issues {
		issues = append(issues, c.toIssue(ri))
	}
	return issues, nil
}

func (c *Client) CreateSprint(ctx context.Context, spec domain.SprintSpec) (*domain.Sprint, error) {
	body := map[string]any{
		"name":          spec.Name,
		"startDate":     spec.StartDate,
		"endDate":       spec.EndDate,
		"originBoardId": spec.BoardID,
	}
	u := c.apiURL("/rest/agile/1.0/sprint", nil)
	var out rawSprint
	if err := c.do(ctx, http.MethodPost, u, body, &out); err != nil {
		return nil, err
	}
	s := out.toDomain()
	return &s, nil
}

func (c *Client) AddIssuesToSprint(ctx context.Context, sprintID int64, issueKeys []string) error {
	if len(issueKeys) == 0 {
		return errors.New("jira: no issue keys")
	}
	body := map[string]any{"issues": issueKeys}
	u := c.apiURL("/rest/agile/1.0/sprint/"+strconv.FormatInt(sprintID, 10)+"/issue", nil)
	return c.do(ctx, http.MethodPost, u, body, nil)
}

func (c *Client) CloseSprint(ctx context.Context, sprintID int64) error {
	u := c.apiURL("/rest/agile/1.0/sprint/"+strconv.FormatInt(sprintID, 10)+"/complete", nil)
	return c.do(ctx, http.MethodPost, u, nil, nil)
}

func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	u := c.apiURL("/rest/api/3/project", nil)
	var out []domain.Project
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListBoards(ctx context.Context) ([]domain.Board, error) {
	u := c.apiURL("/rest/agile/1.0/board", nil)
	var out struct {
		Values []domain.Board `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// Myself is a cheap connectivity and credentials check.
func (c *Client) Myself(ctx context.Context) error {
	u := c.apiURL("/rest/api/3/myself", nil)
	return c.do(ctx, http.MethodGet, u, nil, nil)
}
