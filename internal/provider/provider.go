package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

var (
	// ErrUnavailable wraps failures to reach the inference service at all
	ErrUnavailable = errors.New("inference service unavailable")
	// ErrInvalidResponse marks a 2xx response whose body could not be decoded
	ErrInvalidResponse = errors.New("invalid response from inference service")
)

// Inference is the contract of a remote face-analysis service
type Inference interface {
	// Models returns the catalog of models, metrics, thresholds and detector backends
	Models(ctx context.Context) (*domain.Catalog, error)

	// Compare verifies whether two images show the same person
	Compare(ctx context.Context, req CompareRequest) (*domain.ComparisonResult, error)

	// CheckLiveness classifies whether a single image shows a live subject
	CheckLiveness(ctx context.Context, req LivenessRequest) (*domain.LivenessResult, error)

	// Analyze infers age, gender, race and emotion for every face in the image
	Analyze(ctx context.Context, image Image) (*AnalyzeResponse, error)
}

// Image is an uploaded image payload
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// CompareRequest carries the inputs of a two-image verification
type CompareRequest struct {
	Image1    Image
	Image2    Image
	Model     string
	Metric    domain.DistanceMetric
	Threshold float64
	Detector  string
}

// LivenessRequest carries the inputs of a liveness check
type LivenessRequest struct {
	Image    Image
	Detector string
}

// AnalyzeResponse lists the analyzed faces, in detection order
type AnalyzeResponse struct {
	Faces []domain.AnalyzeResult `json:"faces"`
}

// First returns the first analyzed face or nil when none was found
func (r *AnalyzeResponse) First() *domain.AnalyzeResult {
	if r == nil || len(r.Faces) == 0 {
		return nil
	}
	face := r.Faces[0]
	return &face
}

// TransportError is a non-2xx response. Message is the response body text,
// or a generic status message when the body was empty.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return e.Message
}

// NewTransportError builds a TransportError, falling back to "<label>: <status>"
// when body is blank
func NewTransportError(label string, status int, body string) *TransportError {
	msg := body
	if strings.TrimSpace(msg) == "" {
		msg = fmt.Sprintf("%s: %d", label, status)
	}
	return &TransportError{StatusCode: status, Message: msg}
}
