package rekognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

const (
	// ModelName is the single model this backend exposes in its catalog
	ModelName = "Rekognition"
	// DetectorName is the only detector backend Rekognition has
	DetectorName = "rekognition"

	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Provider implements provider.Inference using AWS Rekognition
type Provider struct {
	client *Client
}

var _ provider.Inference = (*Provider)(nil)

// NewProvider creates a Rekognition backend using the default AWS credential chain
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return &Provider{client: client}, nil
}

// NewProviderWithClient wraps an existing client
func NewProviderWithClient(client *Client) *Provider {
	return &Provider{client: client}
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// userError reports whether err means the images were unusable rather than
// the service being unreachable
func userError(err error) bool {
	return errors.Is(err, ErrInvalidImage) || errors.Is(err, ErrNoFaceDetected)
}

// Models returns the static single-model catalog
func (p *Provider) Models(ctx context.Context) (*domain.Catalog, error) {
	return &domain.Catalog{
		Success:                   true,
		RecommendedModel:          ModelName,
		RecommendedDistanceMetric: domain.MetricCosine,
		DistanceMetrics:           []domain.DistanceMetric{domain.MetricCosine},
		Backends:                  []string{DetectorName},
		Models: map[string]domain.ModelThresholds{
			ModelName: {
				Description: "AWS Rekognition CompareFaces, distance is 1 - similarity",
				Cosine:      domain.Float(p.client.config.Threshold),
			},
		},
	}, nil
}

// Compare runs CompareFaces. Unusable images yield an unsuccessful result,
// the same way the remote service reports them.
func (p *Provider) Compare(ctx context.Context, req provider.CompareRequest) (*domain.ComparisonResult, error) {
	result := &domain.ComparisonResult{
		Model:          req.Model,
		DistanceMetric: req.Metric,
		Threshold:      req.Threshold,
	}

	if err := validateImage(req.Image1.Data); err != nil {
		return result, nil
	}
	if err := validateImage(req.Image2.Data); err != nil {
		return result, nil
	}

	output, err := p.client.rekognition.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage: &types.Image{Bytes: req.Image1.Data},
		TargetImage: &types.Image{Bytes: req.Image2.Data},
		// report the best similarity even below the verification threshold
		SimilarityThreshold: aws.Float32(0),
	})
	if err != nil {
		if err = classifyError("compare faces", err); userError(err) {
			return result, nil
		}
		return nil, err
	}

	similarity := 0.0
	for _, match := range output.FaceMatches {
		if match.Similarity != nil && float64(*match.Similarity) > similarity {
			similarity = float64(*match.Similarity)
		}
	}

	result.Success = true
	result.SimilarityPercentage = math.Round(similarity*100) / 100
	result.Distance = 1 - similarity/100
	result.Verified = result.Distance <= req.Threshold

	return result, nil
}

// CheckLiveness approximates liveness from DetectFaces quality signals.
// A single sharp, well lit face with open eyes counts as live.
func (p *Provider) CheckLiveness(ctx context.Context, req provider.LivenessRequest) (*domain.LivenessResult, error) {
	faces, err := p.detect(ctx, req.Image.Data)
	if err != nil {
		if userError(err) {
			return &domain.LivenessResult{Message: err.Error()}, nil
		}
		return nil, err
	}

	switch len(faces) {
	case 0:
		return &domain.LivenessResult{Message: ErrNoFaceDetected.Error()}, nil
	case 1:
	default:
		return &domain.LivenessResult{Message: fmt.Sprintf("%d faces detected, expected one", len(faces))}, nil
	}

	face := faces[0]
	quality := calculateQualityScore(face.Quality)
	eyesOpen := face.EyesOpen != nil && face.EyesOpen.Value

	result := &domain.LivenessResult{
		Success:    true,
		Confidence: math.Round(quality*100) / 100,
		IsLive:     eyesOpen && quality >= p.client.config.LivenessQuality,
	}
	switch {
	case result.IsLive:
		result.Message = "live face detected"
	case !eyesOpen:
		result.Message = "eyes closed or not visible"
	default:
		result.Message = "image quality too low"
	}

	return result, nil
}

// Analyze runs DetectFaces with all attributes. Rekognition does not
// estimate race, so that attribute is left empty.
func (p *Provider) Analyze(ctx context.Context, image provider.Image) (*provider.AnalyzeResponse, error) {
	faces, err := p.detect(ctx, image.Data)
	if err != nil {
		if userError(err) {
			return &provider.AnalyzeResponse{}, nil
		}
		return nil, err
	}

	resp := &provider.AnalyzeResponse{Faces: make([]domain.AnalyzeResult, 0, len(faces))}
	for _, face := range faces {
		resp.Faces = append(resp.Faces, domain.AnalyzeResult{
			Age:     ageMidpoint(face.AgeRange),
			Gender:  genderAttribute(face.Gender),
			Emotion: emotionAttribute(face.Emotions),
		})
	}

	return resp, nil
}

func (p *Provider) detect(ctx context.Context, image []byte) ([]types.FaceDetail, error) {
	if err := validateImage(image); err != nil {
		return nil, err
	}

	output, err := p.client.rekognition.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		return nil, classifyError("detect faces", err)
	}

	return output.FaceDetails, nil
}

func ageMidpoint(r *types.AgeRange) float64 {
	if r == nil || r.Low == nil || r.High == nil {
		return 0
	}
	return float64(*r.Low+*r.High) / 2
}

func genderAttribute(g *types.Gender) domain.Attribute {
	if g == nil || g.Confidence == nil {
		return domain.Attribute{}
	}

	dominant, other := "Man", "Woman"
	if g.Value == types.GenderTypeFemale {
		dominant, other = other, dominant
	}
	confidence := float64(*g.Confidence)

	return domain.Attribute{
		Dominant: dominant,
		Probabilities: map[string]float64{
			dominant: confidence,
			other:    100 - confidence,
		},
	}
}

func emotionAttribute(emotions []types.Emotion) domain.Attribute {
	if len(emotions) == 0 {
		return domain.Attribute{}
	}

	sorted := make([]types.Emotion, 0, len(emotions))
	for _, e := range emotions {
		if e.Confidence != nil {
			sorted = append(sorted, e)
		}
	}
	if len(sorted) == 0 {
		return domain.Attribute{}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return *sorted[i].Confidence > *sorted[j].Confidence
	})

	attr := domain.Attribute{
		Dominant:      strings.ToLower(string(sorted[0].Type)),
		Probabilities: make(map[string]float64, len(sorted)),
	}
	for _, e := range sorted {
		attr.Probabilities[strings.ToLower(string(e.Type))] = float64(*e.Confidence)
	}
	return attr
}

// calculateQualityScore computes an overall quality score from Rekognition quality metrics
// Returns a score between 0.0 (poor quality) and 1.0 (excellent quality)
func calculateQualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	// AWS Rekognition provides brightness and sharpness scores (0-100)
	brightness := 0.0
	sharpness := 0.0

	if quality.Brightness != nil {
		brightness = float64(*quality.Brightness) / 100.0
	}

	if quality.Sharpness != nil {
		sharpness = float64(*quality.Sharpness) / 100.0
	}

	// Weight sharpness more heavily as it's critical for face recognition
	return brightness*0.3 + sharpness*0.7
}
