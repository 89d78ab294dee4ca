package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// UploadMedia uploads a file as a media attachment with optional alt text.
// The returned attachment can be referenced from [StatusParams.MediaIDs].
func (c *Client) UploadMedia(ctx context.Context, creds Credentials, filename string, file io.Reader, description string) (*MediaAttachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create multipart file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy media %q: %w", filename, err)
	}
	if description != "" {
		if err := mw.WriteField("description", description); err != nil {
			return nil, fmt.Errorf("write description field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, creds, http.MethodPost, "/api/v2/media", nil, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var media MediaAttachment
	if _, err := c.send(req, &media); err != nil {
		return nil, fmt.Errorf("upload media %q: %w", filename, err)
	}
	return &media, nil
}

// Search queries accounts, statuses and hashtags.
func (c *Client) Search(ctx context.Context, creds Credentials, params SearchParams) (*SearchResults, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	if params.Type != "" {
		q.Set("type", params.Type)
	}
	if params.Resolve {
		q.Set("resolve", "true")
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var res SearchResults
	if _, err := c.get(ctx, creds, "/api/v2/search", q, &res); err != nil {
		return nil, fmt.Errorf("search %q: %w", params.Query, err)
	}
	return &res, nil
}
