// Package github adapts the go-github contents API to the read-modify-write
// cycle the poster needs.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
)

const DefaultBaseURL = "https://api.github.com/"

// Client reads and writes files in one repository.
type Client struct {
	api   *gh.Client
	owner string
	repo  string
}

type options struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL points the client at a GitHub Enterprise or test server. The
// URL is used as given, without the /api/v3/ suffix go-github would add.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

func NewClient(token, owner, repo string, opts ...Option) (*Client, error) {
	o := options{
		baseURL:    DefaultBaseURL,
		userAgent:  "chatpost",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := gh.NewClient(o.httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	base, err := url.Parse(strings.TrimRight(o.baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("github: invalid base url %q: %w", o.baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("github: invalid base url %q: missing scheme or host", o.baseURL)
	}
	client.BaseURL = base
	client.UserAgent = o.userAgent

	return &Client{api: client, owner: owner, repo: repo}, nil
}

// File is the subset of the contents API file object the poster uses.
// Content is still base64 encoded, exactly as the API returned it.
type File struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	HTMLURL  string `json:"html_url"`
}

// UpdateFileRequest is one contents PUT. Content is the raw document; the
// API encoding is applied on the wire. SHA must be the blob sha of the file
// being replaced.
type UpdateFileRequest struct {
	Message string
	Content []byte
	SHA     string
	Branch  string
}

type UpdateFileResponse struct {
	ContentSHA string
	CommitSHA  string
	HTMLURL    string
}

// GetFile fetches a file. ref may be empty for the default branch.
func (c *Client) GetFile(ctx context.Context, path, ref string) (*File, error) {
	var opts *gh.RepositoryContentGetOptions
	if ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref}
	}

	fc, _, resp, err := c.api.Repositories.GetContents(ctx, c.owner, c.repo, strings.Trim(path, "/"), opts)
	if err != nil {
		if resp != nil && accepted(resp.StatusCode) {
			return nil, fmt.Errorf("github: decode file %s: %w", path, err)
		}
		return nil, classify(http.MethodGet, path, resp, err)
	}
	if fc == nil {
		return nil, fmt.Errorf("github: %s is a directory, not a file", path)
	}

	file := &File{
		Type:     fc.GetType(),
		Path:     fc.GetPath(),
		SHA:      fc.GetSHA(),
		Encoding: fc.GetEncoding(),
		HTMLURL:  fc.GetHTMLURL(),
	}
	if fc.Content != nil {
		file.Content = *fc.Content
	}
	return file, nil
}

// UpdateFile replaces a file in a single commit. GitHub answers 200 when an
// existing file is updated and 201 when one is created. Once either status
// is seen the commit exists, so an unreadable body is reported as a
// *ResponseError alongside an empty response rather than as a rejection.
func (c *Client) UpdateFile(ctx context.Context, path string, req *UpdateFileRequest) (*UpdateFileResponse, error) {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(req.Message),
		Content: req.Content,
	}
	if req.SHA != "" {
		opts.SHA = gh.String(req.SHA)
	}
	if req.Branch != "" {
		opts.Branch = gh.String(req.Branch)
	}

	rc, resp, err := c.api.Repositories.UpdateFile(ctx, c.owner, c.repo, strings.Trim(path, "/"), opts)
	if err != nil {
		if resp != nil && accepted(resp.StatusCode) {
			return &UpdateFileResponse{}, &ResponseError{Op: http.MethodPut + " " + path, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, classify(http.MethodPut, path, resp, err)
	}
	if !accepted(resp.StatusCode) {
		return nil, &StatusError{Method: http.MethodPut, Path: path, StatusCode: resp.StatusCode, Message: "unexpected success status"}
	}

	out := &UpdateFileResponse{
		CommitSHA: rc.Commit.GetSHA(),
		HTMLURL:   rc.Commit.GetHTMLURL(),
	}
	if rc.Content != nil {
		out.ContentSHA = rc.Content.GetSHA()
	}
	return out, nil
}

func accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}

// classify splits go-github errors into failures below HTTP and responses
// with a rejected status.
func classify(method, path string, resp *gh.Response, err error) error {
	if resp == nil || resp.Response == nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}

	msg := err.Error()
	var er *gh.ErrorResponse
	if errors.As(err, &er) {
		msg = er.Message
	}

	return &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}
