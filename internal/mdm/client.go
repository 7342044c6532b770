// Package mdm is a stateless client for the MDM REST API used to list the class inventory,
// assign device owners and apply or stop single-app locks.
package mdm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultAPIVersion = "3"
	// maxErrorBody bounds how much of a failed response is read looking for a message.
	maxErrorBody = 64 << 10

	headerProtocolVersion = "X-Server-Protocol-Version"
	headerToken           = "X-Token"
)

// Client calls the MDM REST API. It holds no session state and never retries.
type Client struct {
	BaseURL    string
	NetworkID  string
	APIKey     string
	APIVersion string
	HTTPClient *http.Client
	// Limiter, when set, paces outgoing requests. A request waits for a token before it is sent.
	Limiter *rate.Limiter
}

// NewClient returns a client for baseURL authenticating with the networkID/apiKey pair.
// The HTTP transport is instrumented with OpenTelemetry.
func NewClient(baseURL, networkID, apiKey, apiVersion string, timeout time.Duration) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		NetworkID:  networkID,
		APIKey:     apiKey,
		APIVersion: apiVersion,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SetRateLimit paces requests to perSecond with the given burst. perSecond <= 0 removes the limit.
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.Limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	c.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// FetchApps returns the app inventory.
func (c *Client) FetchApps(ctx context.Context) ([]App, error) {
	var out AppsResponse
	if err := c.do(ctx, http.MethodGet, "/apps", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Apps, nil
}

// FetchDevices returns the device listing including owner and installed apps.
func (c *Client) FetchDevices(ctx context.Context) ([]Device, error) {
	var out DevicesResponse
	if err := c.do(ctx, http.MethodGet, "/devices", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// SetDeviceOwner assigns the device identified by udid to the remote user userID.
func (c *Client) SetDeviceOwner(ctx context.Context, udid, userID string) (*MessageResponse, error) {
	if strings.TrimSpace(udid) == "" {
		return nil, fmt.Errorf("%w: empty device identifier", ErrInvalidURL)
	}
	form := url.Values{}
	form.Set("user", userID)
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(udid)+"/owner", formBody(form), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyAppLock locks the students' devices to a single app until ClearAfter elapses.
func (c *Client) ApplyAppLock(ctx context.Context, req AppLockRequest) (*MessageResponse, error) {
	form := url.Values{}
	form.Set("apps", req.BundleID)
	form.Set("clearAfter", strconv.FormatInt(int64(req.ClearAfter/time.Second), 10))
	form.Set("students", strings.Join(req.StudentIDs, ","))
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/apps/applock", formBody(form), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopAppLock releases any app lock applied to the student.
func (c *Client) StopAppLock(ctx context.Context, studentID string) (*MessageResponse, error) {
	form := url.Values{}
	form.Set("scope", "student")
	form.Set("scopeId", studentID)
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/apps/applock/stop", formBody(form), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchClasses returns the class roster.
func (c *Client) FetchClasses(ctx context.Context) ([]Class, error) {
	var out ClassesResponse
	if err := c.do(ctx, http.MethodGet, "/classes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Classes, nil
}

// FetchTeacherGroups returns the user groups visible to the teacher.
func (c *Client) FetchTeacherGroups(ctx context.Context) ([]TeacherGroup, error) {
	var out TeacherGroupsResponse
	if err := c.do(ctx, http.MethodGet, "/users/groups", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// AuthenticateTeacher exchanges teacher credentials for a token. Does not log the password.
func (c *Client) AuthenticateTeacher(ctx context.Context, company, username, password string) (*AuthenticateResponse, error) {
	raw, err := json.Marshal(AuthenticateRequest{Company: company, Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	var out AuthenticateResponse
	if err := c.do(ctx, http.MethodPost, "/teacher/authenticate", jsonBody(raw), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateToken asks the server whether token is still accepted.
// The verdict is in the returned body; see IsValidToken.
func (c *Client) ValidateToken(ctx context.Context, token string) (*MessageResponse, error) {
	var out MessageResponse
	hdr := http.Header{}
	hdr.Set(headerToken, token)
	if err := c.do(ctx, http.MethodGet, "/teacher/validate", nil, hdr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidTokenMessage is the message the server returns for an accepted token.
const ValidTokenMessage = "ValidToken"

// IsValidToken reports whether a validation response accepts the token.
func IsValidToken(resp *MessageResponse) bool {
	return resp != nil && resp.Code == http.StatusOK && resp.Message == ValidTokenMessage
}

type requestBody struct {
	contentType string
	data        []byte
}

func formBody(v url.Values) *requestBody {
	return &requestBody{contentType: "application/x-www-form-urlencoded", data: []byte(v.Encode())}
}

func jsonBody(raw []byte) *requestBody {
	return &requestBody{contentType: "application/json", data: raw}
}

func (c *Client) endpoint(path string) (string, error) {
	if c.BaseURL == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(c.BaseURL + path)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

func (c *Client) authorization() string {
	creds := c.NetworkID + ":" + c.APIKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// do executes one request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body *requestBody, extra http.Header, out interface{}) error {
	target, err := c.endpoint(path)
	if err != nil {
		return err
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return &UnknownError{Err: err}
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body.data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authorization())
	req.Header.Set(headerProtocolVersion, c.APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return classifyTransportError(err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &DecodingError{Err: err}
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return ErrAuthenticationFailed
	case resp.StatusCode >= 400 && resp.StatusCode < 600:
		return &ServerError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrInvalidResponse, resp.StatusCode)
	}
}

// readErrorMessage extracts the message of a structured error body; empty if absent or unreadable.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		return ""
	}
	return apiErr.Message
}
