package face

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/config"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider/rekognition"
)

// BackendType defines supported inference backend types
type BackendType string

const (
	// BackendTypeDeepFace is the remote DeepFace HTTP service (default)
	BackendTypeDeepFace BackendType = config.BackendDeepFace
	// BackendTypeRekognition is AWS Rekognition (cloud, no remote service needed)
	BackendTypeRekognition BackendType = config.BackendRekognition
	// BackendTypeMock is the deterministic in-process backend (local dev, tests)
	BackendTypeMock BackendType = config.BackendMock
)

// BackendFactory builds the inference backend for a session's API base URL.
// Backends that do not talk to the remote service ignore the URL.
type BackendFactory func(baseURL string) provider.Inference

// NewBackendFactory returns a factory for the configured backend.
//
// Environment variables:
//   - INFERENCE_BACKEND: "deepface", "rekognition" or "mock" (default: "deepface")
//   - INFERENCE_TIMEOUT: per request timeout of the DeepFace client (default: 30s)
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
func NewBackendFactory(ctx context.Context, cfg *config.Config) (BackendFactory, error) {
	switch BackendType(cfg.InferenceBackend) {
	case BackendTypeDeepFace, "":
		return deepFaceFactory(cfg.InferenceTimeout), nil

	case BackendTypeRekognition:
		rekogConfig := rekognition.DefaultConfig()
		if cfg.AWSRegion != "" {
			rekogConfig.Region = cfg.AWSRegion
		}

		prov, err := rekognition.NewProvider(ctx, rekogConfig)
		if err != nil {
			return nil, fmt.Errorf("create rekognition backend: %w", err)
		}
		return func(string) provider.Inference { return prov }, nil

	case BackendTypeMock:
		prov := mock.New()
		return func(string) provider.Inference { return prov }, nil

	default:
		return nil, fmt.Errorf("unknown backend type: %s (supported: %s, %s, %s)",
			cfg.InferenceBackend, BackendTypeDeepFace, BackendTypeRekognition, BackendTypeMock)
	}
}

// deepFaceFactory shares one http.Client across every session's client
func deepFaceFactory(timeout time.Duration) BackendFactory {
	if timeout <= 0 {
		timeout = deepface.DefaultConfig().Timeout
	}
	httpClient := &http.Client{Timeout: timeout}

	return func(baseURL string) provider.Inference {
		if baseURL == "" {
			baseURL = deepface.DefaultConfig().BaseURL
		}
		return deepface.NewClient(deepface.Config{
			BaseURL:    baseURL,
			Timeout:    timeout,
			HTTPClient: httpClient,
		})
	}
}
