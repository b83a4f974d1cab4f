package domain

// DistanceMetric names how the remote service measures embedding distance
type DistanceMetric string

const (
	MetricCosine      DistanceMetric = "cosine"
	MetricEuclidean   DistanceMetric = "euclidean"
	MetricEuclideanL2 DistanceMetric = "euclidean_l2"
)

// Metrics lists the distance metrics offered for selection
var Metrics = []DistanceMetric{MetricCosine, MetricEuclidean, MetricEuclideanL2}

// Valid reports whether m is one of the known metrics
func (m DistanceMetric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricEuclideanL2:
		return true
	}
	return false
}

// ModelThresholds holds the per-metric verification thresholds of a model.
// A nil threshold means the service publishes none for that metric.
type ModelThresholds struct {
	Description string   `json:"description"`
	Cosine      *float64 `json:"cosine,omitempty"`
	Euclidean   *float64 `json:"euclidean,omitempty"`
	EuclideanL2 *float64 `json:"euclidean_l2,omitempty"`
}

// Threshold returns the threshold for metric, false when absent
func (t ModelThresholds) Threshold(metric DistanceMetric) (float64, bool) {
	var v *float64
	switch metric {
	case MetricCosine:
		v = t.Cosine
	case MetricEuclidean:
		v = t.Euclidean
	case MetricEuclideanL2:
		v = t.EuclideanL2
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Catalog is the server supplied registry of models, metrics and thresholds
// returned by GET /models
type Catalog struct {
	Success                   bool                       `json:"success"`
	RecommendedModel          string                     `json:"recommended_model"`
	RecommendedDistanceMetric DistanceMetric             `json:"recommended_distance_metric"`
	DistanceMetrics           []DistanceMetric           `json:"distance_metrics"`
	Backends                  []string                   `json:"backends"`
	Models                    map[string]ModelThresholds `json:"models"`
}

// Float returns a pointer to v, for building catalogs in code
func Float(v float64) *float64 {
	return &v
}
