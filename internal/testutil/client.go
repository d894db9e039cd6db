package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"
)

// Client is a test HTTP client that validates every exchange against the
// embedded OpenAPI specification.
type Client struct {
	t         *testing.T
	baseURL   string
	http      *http.Client
	validator *OpenAPIValidator
}

// NewClient creates a test client for the given server base URL.
func NewClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	return &Client{
		t:       t,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		validator: NewOpenAPIValidator(t),
	}
}

// Get performs a GET request against the given path.
func (c *Client) Get(path string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body. A nil body sends an empty
// request.
func (c *Client) Post(path string, body any) *http.Response {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(http.MethodPost, path, reader)
}

func (c *Client) do(method, path string, body io.Reader) *http.Response {
	c.t.Helper()

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.validator.ValidateRequest(c.t, req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}

	c.validator.ValidateResponse(c.t, req, resp)
	return resp
}

// DecodeJSON decodes a JSON response body into out and closes the body.
func DecodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// DecodeData decodes the "data" envelope of a success response into out and
// closes the body.
func DecodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode response data: %v", err)
	}
}

// DecodeError decodes the error envelope of a failed response and returns the
// message. The body is closed.
func DecodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Message
}
