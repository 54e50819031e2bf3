package devbackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/content-gateway/internal/logger"
	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
)

func newClient(t *testing.T, s Settings, apiKey string) *provider.HTTP {
	t.Helper()
	srv := httptest.NewServer(New(s, logger.Discard()).Router())
	t.Cleanup(srv.Close)

	p, err := provider.NewHTTP(provider.HTTPSettings{
		Name:    "dev",
		BaseURL: srv.URL,
		APIKey:  apiKey,
		Caps:    provider.Capabilities{ContentTypes: models.AllContentTypes},
	})
	require.NoError(t, err)
	return p
}

func sub(c models.ContentType) models.SubRequest {
	return models.SubRequest{
		ContentType: c,
		Prompt:      "Wireless earbuds with 30h battery",
		Options:     models.Options{VideoDurationSeconds: 30},
		Fingerprint: "0123456789abcdef",
	}
}

func TestBackend_ServesEveryContentType(t *testing.T) {
	p := newClient(t, Settings{}, "")

	for _, c := range models.AllContentTypes {
		t.Run(string(c), func(t *testing.T) {
			art, err := p.Generate(context.Background(), sub(c))
			require.NoError(t, err)
			assert.Equal(t, "dev", art.ProducedBy)
			assert.NoError(t, art.Validate())
		})
	}
}

func TestBackend_FailEvery(t *testing.T) {
	p := newClient(t, Settings{FailEvery: 2}, "")

	_, err := p.Generate(context.Background(), sub(models.ContentImage))
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), sub(models.ContentImage))
	require.Error(t, err)
	assert.True(t, provider.IsTransient(err))
}

func TestBackend_APIKey(t *testing.T) {
	_, err := newClient(t, Settings{APIKey: "k"}, "wrong").Generate(context.Background(), sub(models.ContentBlog))
	require.Error(t, err)
	assert.False(t, provider.IsTransient(err))

	_, err = newClient(t, Settings{APIKey: "k"}, "k").Generate(context.Background(), sub(models.ContentBlog))
	assert.NoError(t, err)
}

func TestBackend_LatencyHonoursCallerDeadline(t *testing.T) {
	p := newClient(t, Settings{Latency: time.Second}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, sub(models.ContentVideo))
	require.Error(t, err)
	assert.True(t, provider.IsTimeout(err))
}

func TestBackend_RejectsBadRequests(t *testing.T) {
	srv := httptest.NewServer(New(Settings{}, logger.Discard()).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"content_type":"hologram"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
