package storage

import (
	"alcyxob/fitness-billing/internal/config"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method, path, contentType string
	body                      string
}

func fakeS3(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(body)})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func newTestStorage(t *testing.T, endpoint string) FileStorage {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fs, err := NewS3Storage(context.Background(), config.S3Config{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test-secret",
		BucketName:      "statements",
	}, logger)
	require.NoError(t, err)
	return fs
}

func TestS3Storage_PutAndDelete(t *testing.T) {
	srv, requests := fakeS3(t)
	fs := newTestStorage(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, fs.PutObject(ctx, "statements/c1/2025-01/a.json", "application/json", []byte(`{"total":"12"}`)))
	require.NoError(t, fs.DeleteObject(ctx, "statements/c1/2025-01/a.json"))

	got := requests()
	require.Len(t, got, 2)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/statements/statements/c1/2025-01/a.json", got[0].path, "path-style bucket addressing")
	assert.Equal(t, "application/json", got[0].contentType)
	assert.Contains(t, got[0].body, `{"total":"12"}`)
	assert.Equal(t, http.MethodDelete, got[1].method)
}

func TestS3Storage_PresignedDownloadURL(t *testing.T) {
	fs := newTestStorage(t, "http://minio.local:9000")

	url, err := fs.GeneratePresignedDownloadURL(context.Background(), "statements/c1/2025-01/a.json", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://minio.local:9000/statements/statements/c1/2025-01/a.json?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=60")
}
