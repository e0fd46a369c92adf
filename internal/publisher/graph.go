package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// graphErrorResponse is the error envelope of the Meta Graph APIs
// (Instagram, Facebook, Threads).
type graphErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

// Graph error codes that mean "try again later": unknown, service,
// too many calls, user request limit, page request limit, rate limit.
var transientGraphCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}

// StatusKind maps an HTTP status of a failed call to an error kind.
func StatusKind(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// apiClient performs rate limited JSON calls against one platform API.
type apiClient struct {
	platform models.Platform
	opts     Options
	// bearer sends the token as an Authorization header; otherwise it is sent
	// as the access_token query parameter the Graph APIs expect.
	bearer bool
	header http.Header
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, query url.Values, payload any, token string) (*http.Request, error) {
	if query == nil {
		query = url.Values{}
	}
	if token != "" && !c.bearer {
		query.Set("access_token", token)
	}

	endpoint := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		endpoint = strings.TrimRight(c.opts.BaseURL, "/") + path
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error marshalling payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" && c.bearer {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func (c *apiClient) post(ctx context.Context, path string, payload any, token string, out any) (http.Header, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, payload, token)
	if err != nil {
		return nil, err
	}
	return c.do(req, out)
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, token string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil, token)
	if err != nil {
		return err
	}
	_, err = c.do(req, out)
	return err
}

func (c *apiClient) do(req *http.Request, out any) (http.Header, error) {
	c.opts.Limiter.Take()

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, Wrap(KindTransient, c.platform, fmt.Errorf("HTTP request error: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Wrap(KindTransient, c.platform, fmt.Errorf("error reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.classify(resp.StatusCode, body)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, Wrap(KindPermanent, c.platform, fmt.Errorf("error parsing response: %w", err))
		}
	}
	return resp.Header, nil
}

func (c *apiClient) classify(status int, body []byte) *Error {
	kind := StatusKind(status)
	msg := fmt.Sprintf("unexpected status code %d", status)

	var ge graphErrorResponse
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		msg = ge.Error.Message
		if ge.Error.ErrorUserMsg != "" {
			msg = ge.Error.ErrorUserMsg
		}
		switch {
		case ge.Error.Code == 190 || ge.Error.Code == 102:
			kind = KindAuth
		case ge.Error.IsTransient || transientGraphCodes[ge.Error.Code]:
			kind = KindTransient
		}
		return &Error{Kind: kind, Platform: c.platform, Message: msg}
	}

	var plain struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &plain); err == nil && plain.Message != "" {
		msg = plain.Message
	}
	return &Error{Kind: kind, Platform: c.platform, Message: msg}
}

// waitForContainer polls an asynchronously processed media container until
// the platform reports it ready.
func (c *apiClient) waitForContainer(ctx context.Context, path, field, token string) error {
	for i := 0; i < c.opts.MaxPolls; i++ {
		var status map[string]any
		if err := c.get(ctx, path, url.Values{"fields": {field}}, token, &status); err != nil {
			return err
		}

		code, _ := status[field].(string)
		switch strings.ToUpper(code) {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR":
			msg, _ := status["error_message"].(string)
			if msg == "" {
				msg = "media processing failed"
			}
			return NewError(KindPermanent, c.platform, "%s", msg)
		case "EXPIRED":
			return NewError(KindTransient, c.platform, "media container expired before publishing")
		}

		select {
		case <-ctx.Done():
			return Wrap(KindTransient, c.platform, ctx.Err())
		case <-time.After(c.opts.PollInterval):
		}
	}
	return NewError(KindTransient, c.platform, "media container was not ready after %d checks", c.opts.MaxPolls)
}

type idResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (r idResponse) require(platform models.Platform) (string, error) {
	if r.ID == "" {
		return "", NewError(KindPermanent, platform, "no id returned from %s", platform)
	}
	return r.ID, nil
}
