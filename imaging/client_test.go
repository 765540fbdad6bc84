package imaging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/generation"
	"github.com/teranos/cadence/pulse/async"
)

var (
	_ generation.ImageGenerator = (*Client)(nil)
	_ generation.FaceSwapper    = (*Client)(nil)
)

func newTestClient(t *testing.T, cfg am.ImagingConfig, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "seg-key"
	}
	if cfg.Model == "" {
		cfg.Model = "sdxl1.0-txt2img"
	}
	if cfg.FaceSwapModel == "" {
		cfg.FaceSwapModel = "faceswap-v2"
	}
	c := NewClient(cfg, zaptest.NewLogger(t).Sugar())
	c.SetHTTPClient(server.Client())
	return c
}

func TestGenerate_RawImage(t *testing.T) {
	c := newTestClient(t, am.ImagingConfig{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdxl1.0-txt2img", r.URL.Path)
		assert.Equal(t, "seg-key", r.Header.Get("x-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "portrait of a woman", req.Prompt)
		assert.Equal(t, 832, req.Width)
		assert.Equal(t, 1216, req.Height)

		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff jpeg bytes"))
	})

	data, err := c.Generate(context.Background(), "portrait of a woman", 832, 1216)
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8\xff jpeg bytes"), data)
}

func TestSwap_JSONImage(t *testing.T) {
	c := newTestClient(t, am.ImagingConfig{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/faceswap-v2", r.URL.Path)

		var req swapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		src, _ := base64.StdEncoding.DecodeString(req.SourceImage)
		dst, _ := base64.StdEncoding.DecodeString(req.TargetImage)
		assert.Equal(t, "face", string(src))
		assert.Equal(t, "scene", string(dst))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jsonImage{Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("swapped"))})
	})

	data, err := c.Swap(context.Background(), []byte("face"), []byte("scene"))
	require.NoError(t, err)
	assert.Equal(t, "swapped", string(data))
}

func TestPost_Errors(t *testing.T) {
	t.Run("rate limited status classifies", func(t *testing.T) {
		c := newTestClient(t, am.ImagingConfig{}, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		})
		_, err := c.Generate(context.Background(), "p", 10, 10)
		require.Error(t, err)

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.Equal(t, async.ErrorCodeRateLimited, async.ClassifyError("image_generation", err).Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		c := newTestClient(t, am.ImagingConfig{MaxImageBytes: 8}, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("0123456789"))
		})
		_, err := c.Generate(context.Background(), "p", 10, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 8 bytes")
	})

	t.Run("empty body", func(t *testing.T) {
		c := newTestClient(t, am.ImagingConfig{}, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
		})
		_, err := c.Generate(context.Background(), "p", 10, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty image")
	})

	t.Run("missing api key", func(t *testing.T) {
		c := NewClient(am.ImagingConfig{Model: "m"}, zaptest.NewLogger(t).Sugar())
		_, err := c.Generate(context.Background(), "p", 10, 10)
		assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := newTestClient(t, am.ImagingConfig{}, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("late"))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Generate(ctx, "p", 10, 10)
		assert.Error(t, err)
	})
}
