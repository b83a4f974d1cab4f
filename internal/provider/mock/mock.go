package mock

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

const (
	embeddingDimension = 128
	// minImageSize is the smallest payload the mock treats as containing a face
	minImageSize = 1000
)

// Provider implements provider.Inference with deterministic results derived
// from image hashes, for tests and local development
type Provider struct{}

// New creates a new mock provider
func New() *Provider {
	return &Provider{}
}

// Models returns a fixed catalog using the published DeepFace thresholds
func (p *Provider) Models(ctx context.Context) (*domain.Catalog, error) {
	return Catalog(), nil
}

// Catalog builds the catalog served by the mock
func Catalog() *domain.Catalog {
	model := func(description string, cosine, euclidean, euclideanL2 float64) domain.ModelThresholds {
		return domain.ModelThresholds{
			Description: description,
			Cosine:      domain.Float(cosine),
			Euclidean:   domain.Float(euclidean),
			EuclideanL2: domain.Float(euclideanL2),
		}
	}

	return &domain.Catalog{
		Success:                   true,
		RecommendedModel:          "VGG-Face",
		RecommendedDistanceMetric: domain.MetricCosine,
		DistanceMetrics:           domain.Metrics,
		Backends:                  []string{"opencv", "ssd", "dlib", "mtcnn", "retinaface", "mediapipe", "yolov8", "yunet", "centerface"},
		Models: map[string]domain.ModelThresholds{
			"VGG-Face":     model("Oxford VGG network trained on 2.6M faces", 0.68, 1.17, 1.17),
			"Facenet":      model("Google FaceNet, 128-d embeddings", 0.40, 10, 0.80),
			"Facenet512":   model("FaceNet variant with 512-d embeddings", 0.30, 23.56, 1.04),
			"OpenFace":     model("CMU OpenFace, lightweight", 0.10, 0.55, 0.55),
			"DeepFace":     model("Facebook DeepFace", 0.23, 64, 0.64),
			"DeepID":       model("DeepID, compact CNN", 0.015, 45, 0.17),
			"ArcFace":      model("Additive angular margin loss", 0.68, 4.15, 1.13),
			"Dlib":         model("dlib ResNet", 0.07, 0.6, 0.4),
			"SFace":        model("OpenCV SFace", 0.593, 10.734, 1.055),
			"GhostFaceNet": model("GhostFaceNet, mobile friendly", 0.65, 35.71, 1.10),
		},
	}
}

// Compare derives embeddings from image hashes and measures their distance.
// Images too small to hold a face yield a logical failure, not an error.
func (p *Provider) Compare(ctx context.Context, req provider.CompareRequest) (*domain.ComparisonResult, error) {
	if len(req.Image1.Data) < minImageSize || len(req.Image2.Data) < minImageSize {
		return &domain.ComparisonResult{Success: false, Model: req.Model, DistanceMetric: req.Metric}, nil
	}

	emb1 := generateEmbedding(req.Image1.Data)
	emb2 := generateEmbedding(req.Image2.Data)

	var distance float64
	switch req.Metric {
	case domain.MetricEuclidean, domain.MetricEuclideanL2:
		distance = euclideanDistance(emb1, emb2)
	default:
		distance = 1 - cosineSimilarity(emb1, emb2)
	}

	// unit vectors: both distances lie in [0, 2]
	similarity := math.Max(0, math.Min(100, (1-distance/2)*100))

	return &domain.ComparisonResult{
		Verified:             distance <= req.Threshold,
		SimilarityPercentage: math.Round(similarity*100) / 100,
		Distance:             distance,
		DistanceMetric:       req.Metric,
		Model:                req.Model,
		Success:              true,
		Threshold:            req.Threshold,
	}, nil
}

// CheckLiveness reports live for every image large enough to hold a face
func (p *Provider) CheckLiveness(ctx context.Context, req provider.LivenessRequest) (*domain.LivenessResult, error) {
	if len(req.Image.Data) < minImageSize {
		return &domain.LivenessResult{Success: false, Message: "no face detected"}, nil
	}

	hash := sha256.Sum256(req.Image.Data)
	confidence := 0.80 + float64(hash[0])/255.0*0.19

	return &domain.LivenessResult{
		IsLive:     true,
		Confidence: math.Round(confidence*100) / 100,
		Message:    "live face detected",
		Success:    true,
	}, nil
}

// Analyze returns one synthetic face, or none for tiny images
func (p *Provider) Analyze(ctx context.Context, image provider.Image) (*provider.AnalyzeResponse, error) {
	if len(image.Data) < minImageSize {
		return &provider.AnalyzeResponse{}, nil
	}

	hash := sha256.Sum256(image.Data)

	return &provider.AnalyzeResponse{
		Faces: []domain.AnalyzeResult{{
			Age:     float64(18 + int(hash[1])%50),
			Gender:  pick(hash[2], "Woman", "Man"),
			Race:    pick(hash[3], "asian", "indian", "black", "white", "middle eastern", "latino hispanic"),
			Emotion: pick(hash[4], "angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"),
		}},
	}, nil
}

// pick spreads probabilities so that the class chosen by seed dominates
func pick(seed byte, classes ...string) domain.Attribute {
	dominant := int(seed) % len(classes)
	probabilities := make(map[string]float64, len(classes))
	rest := 40.0 / float64(len(classes)-1)
	for i, class := range classes {
		if i == dominant {
			probabilities[class] = 60
		} else {
			probabilities[class] = rest
		}
	}
	return domain.Attribute{Dominant: classes[dominant], Probabilities: probabilities}
}

// generateEmbedding builds a deterministic unit vector from the image hash
func generateEmbedding(image []byte) []float64 {
	hash := sha256.Sum256(image)
	embedding := make([]float64, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ provider.Inference = (*Provider)(nil)
