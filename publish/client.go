// Package publish hands finished artifacts to the social publishing service.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/httpclient"
	"github.com/teranos/cadence/version"
)

// Client posts artifacts to the configured publishing endpoint
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *httpclient.SaferClient
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

type postRequest struct {
	ArtifactRef string   `json:"artifact_ref"`
	Platforms   []string `json:"platforms"`
	PublishNow  bool     `json:"publish_now"`
}

type postResponse struct {
	ID   string `json:"id"`
	Post struct {
		ID string `json:"_id"`
	} `json:"post"`
}

// NewClient returns nil when publishing is disabled, so the pipeline
// records a warning instead of posting.
func NewClient(cfg am.PublishingConfig, log *zap.SugaredLogger) *Client {
	if !cfg.Enabled {
		return nil
	}
	blockPrivateIP := true
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpclient.NewSaferClientWithOptions(30*time.Second, httpclient.SaferClientOptions{
			BlockPrivateIP: &blockPrivateIP,
		}),
		// One post every two seconds per process
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		logger:  log.Named("publish"),
	}
}

// Post publishes artifactRef to platforms and returns the remote post id
func (c *Client) Post(ctx context.Context, artifactRef string, platforms []string) (string, error) {
	if artifactRef == "" {
		return "", errors.NewInvalidRequestError("artifact ref is required")
	}
	if len(platforms) == 0 {
		return "", errors.NewInvalidRequestError("at least one platform is required")
	}

	body, err := json.Marshal(postRequest{ArtifactRef: artifactRef, Platforms: platforms, PublishNow: true})
	if err != nil {
		return "", errors.Wrap(err, "marshal post request")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "publish rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/posts", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "create post request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "post request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read post response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Newf("publish failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var pr postResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return "", errors.Wrap(err, "decode post response")
	}
	id := pr.ID
	if id == "" {
		id = pr.Post.ID
	}
	if id == "" {
		return "", errors.New("publish response has no post id")
	}

	c.logger.Infow("Artifact published", "artifact_ref", artifactRef, "post_id", id, "platforms", platforms)
	return id, nil
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}
