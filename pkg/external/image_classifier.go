package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medtriage-server/internal/domain"
)

// HTTPImageClassifier submits lesion images to the classification service
// over multipart HTTP. Oversized uploads are decoded and downscaled before
// transmission.
type HTTPImageClassifier struct {
	baseURL      string
	apiKey       string
	maxDimension int
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
	logger       *logrus.Logger
}

// classifyResponse is the service's JSON reply.
type classifyResponse struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
	Error         string             `json:"error,omitempty"`
}

// NewHTTPImageClassifier builds the image classification client.
func NewHTTPImageClassifier(cfg domain.ImagingConfig, logger *logrus.Logger) *HTTPImageClassifier {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	maxDim := cfg.MaxDimension
	if maxDim <= 0 {
		maxDim = 1024
	}

	return &HTTPImageClassifier{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		maxDimension: maxDim,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		breaker:      newBreaker("imaging", logger),
		limiter:      rate.NewLimiter(rate.Limit(rps), rps),
		logger:       logger,
	}
}

// Classify normalizes and submits the image, returning the predicted
// label with class probabilities.
func (c *HTTPImageClassifier) Classify(ctx context.Context, imageBytes []byte) (*domain.ClassificationResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrCollaboratorUnavailable, err)
	}

	normalized, err := c.normalize(imageBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid image: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.submit(ctx, normalized)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: image classification circuit open", domain.ErrCollaboratorUnavailable)
		}
		c.logger.WithError(err).Error("Image classification request failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	return result.(*domain.ClassificationResult), nil
}

// normalize decodes the upload and downscales anything larger than the
// configured dimension, re-encoding as JPEG. Images already within bounds
// pass through untouched.
func (c *HTTPImageClassifier) normalize(imageBytes []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= c.maxDimension && bounds.Dy() <= c.maxDimension {
		return imageBytes, nil
	}

	resized := imaging.Fit(img, c.maxDimension, c.maxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *HTTPImageClassifier) submit(ctx context.Context, imageBytes []byte) (*domain.ClassificationResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "lesion.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(imageBytes); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("classification service returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode classification response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("classification service error: %s", parsed.Error)
	}
	if parsed.Label == "" {
		return nil, fmt.Errorf("classification service returned no label")
	}

	c.logger.WithFields(logrus.Fields{
		"label":       parsed.Label,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Image classified")

	return &domain.ClassificationResult{
		Label:              parsed.Label,
		ClassProbabilities: parsed.Probabilities,
	}, nil
}
