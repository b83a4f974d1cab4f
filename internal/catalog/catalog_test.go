package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider/mock"
)

func testCatalog() *domain.Catalog {
	return &domain.Catalog{
		Success:                   true,
		RecommendedModel:          "Facenet",
		RecommendedDistanceMetric: domain.MetricEuclidean,
		DistanceMetrics:           domain.Metrics,
		Models: map[string]domain.ModelThresholds{
			"Facenet": {
				Description: "Google FaceNet",
				Cosine:      domain.Float(0.40),
				Euclidean:   domain.Float(10.0),
			},
			"ArcFace": {
				Description: "ArcFace",
				Cosine:      domain.Float(0.68),
				EuclideanL2: domain.Float(1.13),
			},
		},
	}
}

type stubBackend struct {
	provider.Inference
	catalog *domain.Catalog
	err     error
}

func (s *stubBackend) Models(context.Context) (*domain.Catalog, error) {
	return s.catalog, s.err
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name    string
		backend provider.Inference
		wantErr error
	}{
		{"mock backend", mock.New(), nil},
		{"transport failure", &stubBackend{err: provider.ErrUnavailable}, provider.ErrUnavailable},
		{"models missing", &stubBackend{catalog: &domain.Catalog{Success: true}}, provider.ErrInvalidResponse},
		{"nil catalog", &stubBackend{}, provider.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Fetch(context.Background(), tt.backend)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.Models)
		})
	}
}

func TestDefaultsFor(t *testing.T) {
	tests := []struct {
		name    string
		catalog *domain.Catalog
		want    Defaults
	}{
		{
			name:    "recommended pair with integral threshold",
			catalog: testCatalog(),
			want: Defaults{
				Model:            "Facenet",
				Metric:           domain.MetricEuclidean,
				Threshold:        "10",
				ModelDescription: "Google FaceNet",
			},
		},
		{
			name: "missing threshold falls back",
			catalog: &domain.Catalog{
				RecommendedModel:          "ArcFace",
				RecommendedDistanceMetric: domain.MetricEuclidean,
				Models:                    testCatalog().Models,
			},
			want: Defaults{
				Model:            "ArcFace",
				Metric:           domain.MetricEuclidean,
				Threshold:        DefaultThreshold,
				ModelDescription: "ArcFace",
			},
		},
		{
			name:    "empty recommendations use hardcoded defaults",
			catalog: &domain.Catalog{Models: map[string]domain.ModelThresholds{}},
			want: Defaults{
				Model:     DefaultModel,
				Metric:    DefaultMetric,
				Threshold: DefaultThreshold,
			},
		},
		{
			name:    "nil catalog",
			catalog: nil,
			want: Defaults{
				Model:     DefaultModel,
				Metric:    DefaultMetric,
				Threshold: DefaultThreshold,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultsFor(tt.catalog))
		})
	}
}

func TestResolveThreshold(t *testing.T) {
	c := testCatalog()

	v, ok := ResolveThreshold(c, "Facenet", domain.MetricCosine)
	assert.True(t, ok)
	assert.Equal(t, 0.40, v)

	_, ok = ResolveThreshold(c, "Facenet", domain.MetricEuclideanL2)
	assert.False(t, ok, "absent metric")

	_, ok = ResolveThreshold(c, "Dlib", domain.MetricCosine)
	assert.False(t, ok, "absent model")

	_, ok = ResolveThreshold(nil, "Facenet", domain.MetricCosine)
	assert.False(t, ok, "nil catalog")
}

func TestDeriveThreshold(t *testing.T) {
	c := testCatalog()

	tests := []struct {
		name     string
		model    string
		metric   domain.DistanceMetric
		previous string
		want     string
	}{
		{"present pair replaces previous", "Facenet", domain.MetricCosine, "0.9", "0.4"},
		{"integral value has no decimals", "Facenet", domain.MetricEuclidean, "0.68", "10"},
		{"absent pair keeps previous", "ArcFace", domain.MetricEuclidean, "0.55", "0.55"},
		{"absent model keeps user text", "Unknown", domain.MetricCosine, "abc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveThreshold(c, tt.model, tt.metric, tt.previous))
		})
	}
}

func TestDeriveThreshold_OrderIndependent(t *testing.T) {
	c := testCatalog()

	// model then metric
	th := DeriveThreshold(c, "ArcFace", domain.MetricCosine, DefaultThreshold)
	th = DeriveThreshold(c, "ArcFace", domain.MetricEuclideanL2, th)
	assert.Equal(t, "1.13", th)

	// metric then model
	th = DeriveThreshold(c, "Facenet", domain.MetricEuclideanL2, DefaultThreshold)
	th = DeriveThreshold(c, "ArcFace", domain.MetricEuclideanL2, th)
	assert.Equal(t, "1.13", th)
}

func TestDescriptions(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, "Google FaceNet", ModelDescription(c, "Facenet"))
	assert.Empty(t, ModelDescription(c, "Unknown"))
	assert.Empty(t, ModelDescription(nil, "Facenet"))

	for _, m := range domain.Metrics {
		assert.NotEmpty(t, MetricDescription(m), m)
	}
	assert.Contains(t, MetricDescription(domain.MetricCosine), "angle between face vectors")
	assert.Empty(t, MetricDescription("manhattan"))
}

func TestModelNames(t *testing.T) {
	c := testCatalog()
	c.Models["Custom"] = domain.ModelThresholds{}

	assert.Equal(t, []string{"Facenet", "ArcFace", "Custom"}, ModelNames(c))
	assert.Equal(t, Models, ModelNames(nil))
}

func TestFormatThreshold(t *testing.T) {
	assert.Equal(t, "10", FormatThreshold(10.0))
	assert.Equal(t, "0.68", FormatThreshold(0.68))
	assert.Equal(t, "23.56", FormatThreshold(23.56))
}
