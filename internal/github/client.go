package github

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

	"golang.org/x/time/rate"

	logx "digestbot/pkg/logx"
)

const apiVersion = "2022-11-28"

type Config struct {
	APIURL string
	Token  string

	// RatePerSec paces REST calls. <=0 means 1/s.
	RatePerSec int

	// HTTPTimeout bounds a single HTTP exchange. <=0 means 30s.
	HTTPTimeout time.Duration
}

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log.With(logx.String("comp", "github")),
	}
}

// Notifications lists the authenticated user's notifications updated at or
// after since. Single page, newest first; the caller picks the page size.
func (c *Client) Notifications(ctx context.Context, since time.Time, perPage int) ([]Notification, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("per_page", strconv.Itoa(perPage))

	var out []Notification
	if err := c.doRequest(ctx, http.MethodGet, "/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	c.log.Debug("notifications fetched",
		logx.Int("count", len(out)),
		logx.Time("since", since),
	)
	return out, nil
}

// CreateIssue opens an issue on repo ("owner/repo", validated at config time).
func (c *Client) CreateIssue(ctx context.Context, repo string, req IssueRequest) (*Issue, error) {
	var out Issue
	path := "/repos/" + repo + "/issues"
	if err := c.doRequest(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	c.log.Debug("issue created",
		logx.String("repo", repo),
		logx.Int("number", out.Number),
	)
	return &out, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("github API %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
