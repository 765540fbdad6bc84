// Package imaging talks to a hosted text-to-image and face-swap API
// (Segmind-compatible: one POST per model, image bytes or base64 JSON back).
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/httpclient"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/version"
)

const defaultMaxImageBytes = 20 << 20

// Client implements generation.ImageGenerator and generation.FaceSwapper
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	faceSwapModel string
	maxBytes      int64
	httpClient    *httpclient.SaferClient
	limiter       *rate.Limiter
	logger        *zap.SugaredLogger
}

// NewClient creates an imaging client from the [imaging] section
func NewClient(cfg am.ImagingConfig, log *zap.SugaredLogger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	maxBytes := cfg.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}

	blockPrivateIP := true
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		faceSwapModel: cfg.FaceSwapModel,
		maxBytes:      maxBytes,
		httpClient: httpclient.NewSaferClientWithOptions(2*time.Minute, httpclient.SaferClientOptions{
			BlockPrivateIP: &blockPrivateIP,
		}),
		limiter: limiter,
		logger:  log.Named("imaging"),
	}
}

type generateRequest struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"img_width"`
	Height            int     `json:"img_height"`
	Samples           int     `json:"samples"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Base64            bool    `json:"base64"`
}

type swapRequest struct {
	SourceImage      string `json:"source_img"`
	TargetImage      string `json:"target_img"`
	SourceFacesIndex int    `json:"source_faces_index"`
	InputFacesIndex  int    `json:"input_faces_index"`
	FaceRestore      string `json:"face_restore"`
	Base64           bool   `json:"base64"`
}

// jsonImage is the reply shape when the API answers with JSON
type jsonImage struct {
	Image string `json:"image"`
}

// StatusError is a non-2xx reply from the API
type StatusError struct {
	Model      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s: %s", e.Model, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Generate renders one image
func (c *Client) Generate(ctx context.Context, prompt string, width, height int) ([]byte, error) {
	return c.post(ctx, c.model, generateRequest{
		Prompt:            prompt,
		NegativePrompt:    "cartoon, illustration, deformed, blurry, watermark, text",
		Width:             width,
		Height:            height,
		Samples:           1,
		NumInferenceSteps: 30,
		GuidanceScale:     7.5,
	})
}

// Swap puts the face in sourceFace onto target
func (c *Client) Swap(ctx context.Context, sourceFace, target []byte) ([]byte, error) {
	return c.post(ctx, c.faceSwapModel, swapRequest{
		SourceImage: base64.StdEncoding.EncodeToString(sourceFace),
		TargetImage: base64.StdEncoding.EncodeToString(target),
		FaceRestore: "codeformer-v0.1.0.pth",
	})
}

func (c *Client) post(ctx context.Context, model string, payload any) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "imaging api key not configured")
	}
	if model == "" {
		return nil, errors.NewInvalidRequestError("imaging model not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal imaging request")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "imaging rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create imaging request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request", model)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", model)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Model: model, StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, errors.Newf("%s response exceeds %d bytes", model, c.maxBytes)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		data, err = decodeJSONImage(data)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s response", model)
		}
	}
	if len(data) == 0 {
		return nil, errors.Newf("%s returned an empty image", model)
	}

	c.logger.Debugw("Imaging call finished",
		logger.FieldProvider, model,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
		"bytes", len(data),
	)
	return data, nil
}

func decodeJSONImage(data []byte) ([]byte, error) {
	var img jsonImage
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, err
	}
	// Some models prefix a data URL
	if i := strings.Index(img.Image, ","); strings.HasPrefix(img.Image, "data:") && i > 0 {
		img.Image = img.Image[i+1:]
	}
	return base64.StdEncoding.DecodeString(img.Image)
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
