// Package remote implements the nn capabilities by calling an HTTP inference server.
//
// The inference server hosts the actual models. Image endpoints accept the raw
// encoded image as the request body:
//
//	POST /classify            -> {"class": 1} or {"label": "robbery"}
//	POST /detect              -> [{"class": 3, "confidence": 0.91, "box": [x1,y1,x2,y2]}]
//	POST /caption?maxTokens=N -> {"caption": "a man holding a gun"}
//
// The summarizer endpoint accepts JSON:
//
//	POST /summarize {"text": "...", "maxLength": 150, "minLength": 40} -> {"summary": "..."}
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/scenesolver/scenesolver/pkg/nn"
)

const DefaultTimeout = 60 * time.Second

// Client talks to one inference server. It implements all four capabilities,
// and is safe for concurrent use.
type Client struct {
	log     logs.Log
	baseURL string
	timeout time.Duration // Per request
}

func NewClient(log logs.Log, baseURL string, timeout time.Duration) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("Invalid inference server URL '%v'", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		log:     log,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
	}, nil
}

func (c *Client) Close() error {
	http.DefaultClient.CloseIdleConnections()
	return nil
}

type classifyResponse struct {
	Class *int   `json:"class"`
	Label string `json:"label"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

type summarizeRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"maxLength"`
	MinLength int    `json:"minLength"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

func (c *Client) ClassifyScene(ctx context.Context, img *nn.Image) (nn.SceneClass, error) {
	resp := classifyResponse{}
	if err := c.postImage(ctx, "/classify", img, &resp); err != nil {
		return "", err
	}
	if resp.Label != "" {
		class := nn.SceneClass(strings.ToLower(resp.Label))
		if !class.IsValid() {
			return "", fmt.Errorf("Classifier returned unknown label '%v'", resp.Label)
		}
		return class, nil
	}
	if resp.Class == nil {
		return "", fmt.Errorf("Classifier response has neither class nor label")
	}
	return nn.SceneClassFromIndex(*resp.Class)
}

func (c *Client) DetectObjects(ctx context.Context, img *nn.Image) ([]nn.ObjectDetection, error) {
	objects := []nn.ObjectDetection{}
	if err := c.postImage(ctx, "/detect", img, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (c *Client) Caption(ctx context.Context, img *nn.Image, maxTokens int) (string, error) {
	resp := captionResponse{}
	if err := c.postImage(ctx, "/caption?maxTokens="+strconv.Itoa(maxTokens), img, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Caption), nil
}

func (c *Client) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	body, err := json.Marshal(summarizeRequest{Text: text, MaxLength: maxLength, MinLength: minLength})
	if err != nil {
		return "", fmt.Errorf("%w: %w", nn.ErrSummarizationFailed, err)
	}
	resp := summarizeResponse{}
	if err := c.post(ctx, "/summarize", "application/json", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", nn.ErrSummarizationFailed, err)
	}
	if resp.Summary == "" {
		return "", fmt.Errorf("%w: empty summary", nn.ErrSummarizationFailed)
	}
	return resp.Summary, nil
}

func (c *Client) postImage(ctx context.Context, path string, img *nn.Image, output any) error {
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return c.post(ctx, path, contentType, img.Data, output)
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte, output any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	start := time.Now()
	if err := www.FetchJSON(req, output); err != nil {
		return fmt.Errorf("Inference request %v failed: %w", path, err)
	}
	c.log.Debugf("Inference %v took %v", path, time.Since(start))
	return nil
}

// NewServices uses a single model server for all four capabilities
func NewServices(log logs.Log, baseURL string, timeout time.Duration) (*nn.Services, error) {
	client, err := NewClient(log, baseURL, timeout)
	if err != nil {
		return nil, err
	}
	return &nn.Services{
		Classifier: client,
		Detector:   client,
		Captioner:  client,
		Summarizer: client,
	}, nil
}
