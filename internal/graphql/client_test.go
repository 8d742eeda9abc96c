package graphql

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestDoSendsQueryAndDecodesData(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "secret", r.Header.Get("Authorization"))
		require.Equal(t, "abc", r.URL.Query().Get("consumer_key"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req Request
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, "Ping", req.OperationName)
		require.Equal(t, float64(3), req.Variables["n"])

		_, _ = w.Write([]byte(`{"data":{"pong":"ok"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL,
		WithHeader("Authorization", "secret"),
		WithQueryParam("consumer_key", "abc"),
		WithName("test"),
	)
	var out struct {
		Pong string `json:"pong"`
	}
	err := c.Do(context.Background(), Request{Query: "query Ping { pong }", OperationName: "Ping", Variables: map[string]any{"n": 3}}, &out)
	require.NoError(t, err)
	require.Equal(t, "ok", out.Pong)
}

func TestDoReturnsResponseError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"bad field","extensions":{"code":"GRAPHQL_VALIDATION_FAILED"}}]}`))
	}))
	defer srv.Close()

	err := New(srv.URL).Do(context.Background(), Request{Query: "{ x }"}, nil)
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	require.Equal(t, []string{"GRAPHQL_VALIDATION_FAILED"}, re.Codes())
	require.Contains(t, re.Error(), "bad field")
	require.False(t, IsRetryable(err))
}

func TestDoClassifiesHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		retry     string
		retryable bool
		wait      time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retry: "7", retryable: true, wait: 7 * time.Second},
		{name: "server error", status: http.StatusBadGateway, retryable: true},
		{name: "unauthorized", status: http.StatusUnauthorized, retryable: false},
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tc.retry != "" {
					w.Header().Set("Retry-After", tc.retry)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			err := New(srv.URL).Do(context.Background(), Request{Query: "{ x }"}, nil)
			var he *HTTPError
			require.ErrorAs(t, err, &he)
			require.Equal(t, tc.status, he.StatusCode)
			require.Equal(t, "nope", he.Body)
			require.Equal(t, tc.wait, he.RetryAfter)
			require.Equal(t, tc.retryable, IsRetryable(err))
		})
	}
}

func TestDoTransportErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	err := New(endpoint).Do(context.Background(), Request{Query: "{ x }"}, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.True(t, IsRetryable(err))
}

func TestDoCanceledIsNotRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(srv.URL).Do(ctx, Request{Query: "{ x }"}, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, IsRetryable(err))
}

func TestDoRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>login</html>`))
	}))
	defer srv.Close()

	err := New(srv.URL).Do(context.Background(), Request{Query: "{ x }"}, nil)
	require.ErrorContains(t, err, "decode graphql response")
	require.False(t, IsRetryable(err))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Zero(t, ParseRetryAfter("", now))
	require.Zero(t, ParseRetryAfter("-3", now))
	require.Zero(t, ParseRetryAfter("soon", now))
	require.Equal(t, 2*time.Second, ParseRetryAfter(" 2 ", now))
	require.Equal(t, 90*time.Second, ParseRetryAfter("Mon, 01 Jan 2024 00:01:30 GMT", now))
	require.Zero(t, ParseRetryAfter("Sun, 31 Dec 2023 23:00:00 GMT", now))
}
