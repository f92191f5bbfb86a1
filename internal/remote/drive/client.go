package drive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/AzPepoze/gdrive-bisync/internal/version"
	"github.com/imroc/req/v3"
	"golang.org/x/oauth2"
)

const (
	listPageSize = "1000"
	listFields   = "nextPageToken, files(id, name, mimeType, modifiedTime, size, md5Checksum)"
	fileFields   = "id, name, mimeType, modifiedTime, size, md5Checksum"
)

var userAgent = fmt.Sprintf("bisync/%s (%s; %s/%s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

type Options struct {
	BaseURL   string
	UploadURL string
	// TokenSource supplies the bearer token of every request
	TokenSource oauth2.TokenSource
	Timeout     time.Duration
}

// Client talks to the Drive v3 REST API
type Client struct {
	http      *req.Client
	baseURL   string
	uploadURL string
}

func New(opts Options) (*Client, error) {
	if opts.TokenSource == nil {
		return nil, ErrNoCredentials
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	// cached until shortly before expiry, then refreshed by the next request
	tokens := oauth2.ReuseTokenSource(nil, opts.TokenSource)

	client := req.C().
		SetUserAgent(userAgent).
		SetTimeout(opts.Timeout).
		SetCommonErrorResult(&errorResponse{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
			tok, err := tokens.Token()
			if err != nil {
				return tokenError(err)
			}
			r.SetBearerAuthToken(tok.AccessToken)
			return nil
		})

	return &Client{
		http:      client,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		uploadURL: strings.TrimRight(opts.UploadURL, "/"),
	}, nil
}

func (c *Client) List(ctx context.Context, folderID, pageToken string) (*remote.ListPage, error) {
	var page listResponse

	r := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))).
		SetQueryParam("fields", listFields).
		SetQueryParam("pageSize", listPageSize).
		SetSuccessResult(&page)
	if pageToken != "" {
		r.SetQueryParam("pageToken", pageToken)
	}

	resp, err := r.Get(c.baseURL + "/files")
	if err := handleAPIError(resp, err, "list"); err != nil {
		return nil, err
	}

	files := make([]*remote.File, 0, len(page.Files))
	for _, f := range page.Files {
		files = append(files, f.toRemote())
	}

	return &remote.ListPage{Files: files, NextPageToken: page.NextPageToken}, nil
}

func (c *Client) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		SetQueryParam("alt", "media").
		Get(c.fileURL(c.baseURL, fileID))
	if err != nil {
		return nil, fmt.Errorf("drive get: %w", err)
	}

	if resp.IsErrorState() {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := remote.NewAPIError("get", resp.StatusCode, strings.TrimSpace(string(body)))
		var errResp errorResponse
		if jsonUnmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Message = errResp.Error.Message
			apiErr.Reason = errResp.reason()
		}
		return nil, apiErr
	}

	return resp.Body, nil
}

func (c *Client) Create(ctx context.Context, name, parentID string, isFolder bool) (string, error) {
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %q", remote.ErrInvalidName, name)
	}

	body := createRequest{Name: name, Parents: []string{parentID}}
	if isFolder {
		body.MimeType = remote.FolderMimeType
	}

	var created fileResource
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("fields", "id").
		SetBody(&body).
		SetSuccessResult(&created).
		Post(c.baseURL + "/files")
	if err := handleAPIError(resp, err, "create"); err != nil {
		return "", err
	}

	if created.ID == "" {
		return "", fmt.Errorf("drive create %q: empty id in response", name)
	}
	return created.ID, nil
}

func (c *Client) Update(ctx context.Context, fileID string, r io.Reader) (*remote.File, error) {
	var updated fileResource
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("uploadType", "media").
		SetQueryParam("fields", fileFields).
		SetContentType("application/octet-stream").
		SetBody(r).
		SetSuccessResult(&updated).
		Patch(c.fileURL(c.uploadURL, fileID))
	if err := handleAPIError(resp, err, "update"); err != nil {
		return nil, err
	}
	return updated.toRemote(), nil
}

func (c *Client) Delete(ctx context.Context, fileID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(c.fileURL(c.baseURL, fileID))
	return handleAPIError(resp, err, "delete")
}

func (c *Client) fileURL(base, fileID string) string {
	return base + "/files/" + url.PathEscape(fileID)
}

// handleAPIError keeps transport errors unwrappable (net.Error, syscall errnos)
// and turns error responses into remote.APIError.
func handleAPIError(resp *req.Response, requestErr error, op string) error {
	if requestErr != nil {
		return fmt.Errorf("drive %s: %w", op, requestErr)
	}

	if resp.IsErrorState() {
		apiErr := remote.NewAPIError(op, resp.StatusCode, "")
		if errResp, ok := resp.ErrorResult().(*errorResponse); ok && errResp != nil {
			apiErr.Message = errResp.Error.Message
			apiErr.Reason = errResp.reason()
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	return nil
}

// escapeQuery escapes a value for use inside a single-quoted Drive query string
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

type listResponse struct {
	NextPageToken string          `json:"nextPageToken"`
	Files         []*fileResource `json:"files"`
}

type fileResource struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         string    `json:"size,omitempty"`
	MD5Checksum  string    `json:"md5Checksum,omitempty"`
}

func (f *fileResource) toRemote() *remote.File {
	size, _ := strconv.ParseInt(f.Size, 10, 64)
	return &remote.File{
		ID:           f.ID,
		Name:         f.Name,
		MimeType:     f.MimeType,
		ModifiedTime: f.ModifiedTime,
		Size:         size,
		MD5:          f.MD5Checksum,
	}
}

type createRequest struct {
	Name     string   `json:"name"`
	Parents  []string `json:"parents"`
	MimeType string   `json:"mimeType,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Domain string `json:"domain"`
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (e *errorResponse) reason() string {
	if len(e.Error.Errors) == 0 {
		return ""
	}
	return e.Error.Errors[0].Reason
}

var _ remote.Store = (*Client)(nil)
