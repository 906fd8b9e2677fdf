package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofinances/internal/core"
)

const sampleBody = `{
	"transactions": [
		{"id":"1","title":"Salary","value":5000,"type":"income","category":{"title":"Job"},"created_at":"2024-01-05"}
	],
	"balance": {"income":5000,"outcome":0,"total":5000}
}`

func newBackend(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetch(t *testing.T) {
	srv := newBackend(t, http.StatusOK, sampleBody, nil)

	client := NewClient(srv.URL+"/", nil)
	st, err := client.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)
	tx := st.Transactions[0]
	assert.Equal(t, "1", tx.ID)
	assert.Equal(t, "Salary", tx.Title)
	assert.Equal(t, int64(500000), tx.Value.Cents)
	assert.Equal(t, core.Income, tx.Type)
	assert.Equal(t, "Job", tx.Category.Title)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), tx.CreatedAt.Time)
	assert.Equal(t, int64(500000), st.Balance.Total.Cents)
	assert.Equal(t, int64(0), st.Balance.Outcome.Cents)
}

func TestClientFetchStatusError(t *testing.T) {
	srv := newBackend(t, http.StatusInternalServerError, `{"message":"boom"}`, nil)

	_, err := NewClient(srv.URL, nil).Fetch(context.Background())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "boom")
}

func TestClientFetchMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `<html>`,
		"missing balance": `{"transactions":[]}`,
		"bad type":        `{"transactions":[{"id":"1","type":"gift","value":1}],"balance":{"income":0,"outcome":0,"total":0}}`,
		"bad value":       `{"transactions":[{"id":"1","type":"income","value":"abc"}],"balance":{"income":0,"outcome":0,"total":0}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newBackend(t, http.StatusOK, body, nil)
			_, err := NewClient(srv.URL, nil).Fetch(context.Background())
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestClientFetchEmptyList(t *testing.T) {
	srv := newBackend(t, http.StatusOK, `{"transactions":null,"balance":{"income":"0","outcome":"0","total":"0"}}`, nil)

	st, err := NewClient(srv.URL, nil).Fetch(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, st.Transactions)
	assert.Empty(t, st.Transactions)
}

func TestClientFetchSingleAttemptOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, &http.Client{Timeout: time.Second}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestClientFetchHonoursContext(t *testing.T) {
	srv := newBackend(t, http.StatusOK, sampleBody, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, nil).Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedSource(t *testing.T) {
	var hits atomic.Int32
	srv := newBackend(t, http.StatusOK, sampleBody, &hits)

	src := NewCachedSource(NewClient(srv.URL, nil), time.Minute)
	for i := 0; i < 3; i++ {
		st, err := src.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, st.Transactions, 1)
		// Mutating the returned copy must not leak into the cache.
		st.Transactions[0].Title = "changed"
	}
	assert.Equal(t, int32(1), hits.Load())

	src.Invalidate()
	st, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Salary", st.Transactions[0].Title)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statement.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleBody), 0o644))

	st, err := NewFileSource(path).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Transactions, 1)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.json")).Fetch(context.Background())
	assert.Error(t, err)
}
