// Package mastodon is a typed gateway to the REST API of a Mastodon-compatible
// server. It provides a [Client] whose methods each perform exactly one HTTP
// request, an [APIError] for every non-success outcome, Link-header paging
// cursors, and a [Retry] helper for calling workflows.
//
// The client holds no credentials; every call receives them explicitly.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/peterhellberg/link"
)

// maxErrorBody caps how much of an error response is read for decoding.
const maxErrorBody = 64 << 10

// ErrMissingCredentials is returned before any request is made when the
// instance URL or access token is empty.
var ErrMissingCredentials = errors.New("missing remote credentials")

// Credentials identify the remote server and the user acting on it.
type Credentials struct {
	InstanceURL string
	AccessToken string
}

// APIError is returned for transport failures and non-2xx responses.
// StatusCode is 0 when no response was received.
type APIError struct {
	StatusCode  int
	Message     string
	Description string
	Err         error
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "remote API returned %d: %s", e.StatusCode, e.Message)
	} else {
		fmt.Fprintf(&b, "remote API request failed: %s", e.Message)
	}
	if e.Description != "" {
		b.WriteString(" (" + e.Description + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// PageParams are the standard paging query parameters. Zero values are
// omitted.
type PageParams struct {
	MaxID   string
	SinceID string
	MinID   string
	Limit   int
}

func (p PageParams) values() url.Values {
	v := url.Values{}
	if p.MaxID != "" {
		v.Set("max_id", p.MaxID)
	}
	if p.SinceID != "" {
		v.Set("since_id", p.SinceID)
	}
	if p.MinID != "" {
		v.Set("min_id", p.MinID)
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	return v
}

// Cursor holds the paging ids advertised by the server's Link header.
// NextMaxID fetches older items; PrevMinID fetches newer ones.
type Cursor struct {
	NextMaxID string
	PrevMinID string
}

// Client talks to any Mastodon-compatible server. Create one with [NewClient].
type Client struct {
	hc        *http.Client
	userAgent string
}

// NewClient returns a Client using hc for transport. A nil hc means
// [http.DefaultClient].
func NewClient(hc *http.Client, userAgent string) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc, userAgent: userAgent}
}

// --- request plumbing --------------------------------------------------------

func (c *Client) newRequest(ctx context.Context, creds Credentials, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	if creds.InstanceURL == "" || creds.AccessToken == "" {
		return nil, ErrMissingCredentials
	}
	endpoint := strings.TrimRight(creds.InstanceURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// send executes req and decodes a JSON success body into out (if non-nil).
func (c *Client) send(req *http.Request, out any) (http.Header, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("%s %s", req.Method, req.URL.Path), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "decoding response body", Err: err}
		}
	}
	return resp.Header, nil
}

func (c *Client) get(ctx context.Context, creds Credentials, path string, query url.Values, out any) (http.Header, error) {
	req, err := c.newRequest(ctx, creds, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req, out)
}

func (c *Client) post(ctx context.Context, creds Credentials, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := c.newRequest(ctx, creds, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	_, err = c.send(req, out)
	return err
}

func (c *Client) delete(ctx context.Context, creds Credentials, path string, out any) error {
	req, err := c.newRequest(ctx, creds, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	_, err = c.send(req, out)
	return err
}

// decodeError turns a non-2xx response into an APIError, falling back to the
// status text when the body is not Mastodon's error shape.
func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Description = body.Description
		return apiErr
	}

	apiErr.Message = http.StatusText(resp.StatusCode)
	if apiErr.Message == "" {
		apiErr.Message = "unexpected response"
	}
	return apiErr
}

// parseCursor reads the next/prev relations of a Link header.
func parseCursor(h http.Header) Cursor {
	var cur Cursor
	links := link.ParseHeader(h)
	if next, ok := links["next"]; ok {
		if u, err := url.Parse(next.URI); err == nil {
			cur.NextMaxID = u.Query().Get("max_id")
		}
	}
	if prev, ok := links["prev"]; ok {
		if u, err := url.Parse(prev.URI); err == nil {
			q := u.Query()
			cur.PrevMinID = q.Get("min_id")
			if cur.PrevMinID == "" {
				cur.PrevMinID = q.Get("since_id")
			}
		}
	}
	return cur
}

func escape(id string) string { return url.PathEscape(id) }
