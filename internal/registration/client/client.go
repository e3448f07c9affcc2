// Package client drives the registration HTTP API from a UI process. A
// Client satisfies availability.Lookup, form.Submitter and form.Connectivity.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"outbreak/internal/registration/handler"
	"outbreak/internal/registration/models"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/httputil"
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping succeeds when the API answers its health probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	var out handler.HealthResponse
	return c.do(req, http.StatusOK, &out)
}

// IsTaken asks the API whether value is already used for field.
func (c *Client) IsTaken(ctx context.Context, field models.Field, value string) (bool, error) {
	q := url.Values{}
	q.Set("field", field.String())
	q.Set("value", value)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/registrations/availability?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("build availability request: %w", err)
	}
	var out handler.AvailabilityResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return false, err
	}
	return out.Status == "taken", nil
}

// Submit posts draft with its screenshot. Rejections come back as domain
// errors carrying the server's code, message and field messages.
func (c *Client) Submit(ctx context.Context, draft models.Draft) (*models.Registration, error) {
	body, contentType, err := encodeDraft(draft)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/registrations", body)
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var out models.Registration
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func encodeDraft(draft models.Draft) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payload, err := json.Marshal(draft)
	if err != nil {
		return nil, "", fmt.Errorf("encode draft: %w", err)
	}
	if err := mw.WriteField(handler.RegistrationPart, string(payload)); err != nil {
		return nil, "", fmt.Errorf("write registration part: %w", err)
	}

	if shot := draft.Payment.Screenshot; shot != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, handler.ScreenshotPart, shot.Filename))
		ct := shot.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		fw, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create screenshot part: %w", err)
		}
		if _, err := fw.Write(shot.Data); err != nil {
			return nil, "", fmt.Errorf("write screenshot part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "registration service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "invalid response from registration service")
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body httputil.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return dErrors.New(codeForStatus(resp.StatusCode), http.StatusText(resp.StatusCode))
	}
	de := dErrors.New(dErrors.Code(body.Error), body.ErrorDescription)
	if len(body.Fields) > 0 {
		de = de.WithFields(body.Fields)
	}
	return de
}

func codeForStatus(status int) dErrors.Code {
	switch {
	case status == http.StatusTooManyRequests:
		return dErrors.CodeRateLimited
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return dErrors.CodeUnavailable
	case status >= 500:
		return dErrors.CodeInternal
	default:
		return dErrors.CodeBadRequest
	}
}
