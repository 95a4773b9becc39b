package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ecfplookup/pkg/errors"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return client
}

// ---------------------------------------------------------------------------
// Constructor Tests
// ---------------------------------------------------------------------------

func TestNewClient_Success(t *testing.T) {
	c, err := NewClient("http://engine.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "http://engine.example.com", c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Contains(t, c.userAgent, "ecfplookup/")
	assert.Empty(t, c.apiKey)
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "ftp://engine", "engine:8085", "://bad"} {
		_, err := NewClient(u)
		require.Error(t, err, u)
		assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration), u)
	}
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{Timeout: 3 * time.Second}
	c, err := NewClient("https://engine",
		WithHTTPClient(hc),
		WithAPIKey("secret"),
		WithUserAgent("custom/1.0"),
		WithLogger(nil),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.Equal(t, "secret", c.apiKey)
	assert.Equal(t, "custom/1.0", c.userAgent)
	assert.NotNil(t, c.logger)
}

func TestWithTimeout_LeavesSharedHTTPClientAlone(t *testing.T) {
	for _, timeoutFirst := range []bool{false, true} {
		shared := &http.Client{Transport: &http.Transport{}}
		opts := []Option{WithHTTPClient(shared), WithTimeout(5 * time.Second)}
		if timeoutFirst {
			opts[0], opts[1] = opts[1], opts[0]
		}

		c, err := NewClient("https://engine", opts...)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, c.httpClient.Timeout, "timeoutFirst=%v", timeoutFirst)
		assert.Same(t, shared.Transport, c.httpClient.Transport)
		assert.Zero(t, shared.Timeout, "timeoutFirst=%v", timeoutFirst)
	}
}

func TestWithTimeout_IgnoresNonPositive(t *testing.T) {
	c, err := NewClient("http://engine", WithTimeout(0), WithTimeout(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

// ---------------------------------------------------------------------------
// Request Tests
// ---------------------------------------------------------------------------

func TestDo_Headers(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/echo", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, WithAPIKey("k1"))

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.post(context.Background(), "v1/echo", map[string]int{"a": 1}, &out))
	assert.True(t, out.OK)

	assert.Equal(t, "Bearer k1", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Contains(t, got.Get("User-Agent"), "ecfplookup/")
	_, err := uuid.Parse(got.Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestDo_NoAuthorizationWithoutKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
	})
	require.NoError(t, c.post(context.Background(), "/x", nil, nil))
}

func TestDo_APIErrorJSON(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"BAD_MOLECULE","message":"valence error on atom 3"}`))
	})

	err := c.post(context.Background(), "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "BAD_MOLECULE", apiErr.Code)
	assert.Equal(t, "valence error on atom 3", apiErr.Message)
	assert.True(t, apiErr.IsUnprocessable())
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Equal(t, 1, calls)
}

func TestDo_ServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	})

	err := c.post(context.Background(), "/x", nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.IsUnprocessable())
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "engine crashed", apiErr.Message)
	assert.Equal(t, 1, calls)
}

func TestDo_MalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	var out map[string]interface{}
	err := c.post(context.Background(), "/x", nil, &out)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
	assert.Contains(t, err.Error(), "decode")
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	err := c.post(context.Background(), "/slow", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}

func TestDo_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	err = c.post(context.Background(), "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}

func TestAPIError_Message(t *testing.T) {
	e := &APIError{StatusCode: 503, Code: "UNAVAILABLE", Message: "warming up", RequestID: "r1"}
	assert.Equal(t, "engine: UNAVAILABLE (HTTP 503): warming up [request_id=r1]", e.Error())
}
