// Package catalog resolves the model, metric and threshold selection against
// the catalog published by the inference service.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// Fallbacks used before a catalog is loaded or when it omits a value
const (
	DefaultModel     = "VGG-Face"
	DefaultMetric    = domain.MetricCosine
	DefaultThreshold = "0.68"
	DefaultDetector  = "retinaface"
)

// Models is the model list offered when no catalog is available
var Models = []string{
	"VGG-Face",
	"Facenet",
	"Facenet512",
	"OpenFace",
	"DeepFace",
	"DeepID",
	"ArcFace",
	"Dlib",
	"SFace",
	"GhostFaceNet",
	"Buffalo_L",
}

var metricDescriptions = map[domain.DistanceMetric]string{
	domain.MetricCosine:      "Measures the angle between face vectors. Lower values mean higher similarity. Commonly used in deep learning.",
	domain.MetricEuclidean:   "Calculates straight-line distance between facial features. Sensitive to scale and alignment.",
	domain.MetricEuclideanL2: "A normalized version of Euclidean distance. Reduces the effect of face size or brightness.",
}

// Defaults is the selection seeded from a catalog
type Defaults struct {
	Model            string                `json:"model"`
	Metric           domain.DistanceMetric `json:"metric"`
	Threshold        string                `json:"threshold"`
	ModelDescription string                `json:"model_description"`
}

// Fetch loads the catalog from backend. Transport failures and malformed
// bodies come back wrapped, classified by the provider sentinels.
func Fetch(ctx context.Context, backend provider.Inference) (*domain.Catalog, error) {
	c, err := backend.Models(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	if c == nil || c.Models == nil {
		return nil, fmt.Errorf("fetch catalog: %w: models field missing", provider.ErrInvalidResponse)
	}
	return c, nil
}

// DefaultsFor derives the recommended selection of c. Empty recommendations
// fall back to the hardcoded model and metric, a missing threshold to
// DefaultThreshold.
func DefaultsFor(c *domain.Catalog) Defaults {
	d := Defaults{
		Model:     DefaultModel,
		Metric:    DefaultMetric,
		Threshold: DefaultThreshold,
	}
	if c == nil {
		return d
	}

	if c.RecommendedModel != "" {
		d.Model = c.RecommendedModel
	}
	if c.RecommendedDistanceMetric != "" {
		d.Metric = c.RecommendedDistanceMetric
	}
	d.Threshold = DeriveThreshold(c, d.Model, d.Metric, DefaultThreshold)
	d.ModelDescription = ModelDescription(c, d.Model)

	return d
}

// ResolveThreshold looks up models[model][metric], false when absent
func ResolveThreshold(c *domain.Catalog, model string, metric domain.DistanceMetric) (float64, bool) {
	if c == nil || c.Models == nil {
		return 0, false
	}
	thresholds, ok := c.Models[model]
	if !ok {
		return 0, false
	}
	return thresholds.Threshold(metric)
}

// DeriveThreshold returns the catalog threshold for (model, metric) as the
// shortest decimal string, or previous when the catalog has none.
func DeriveThreshold(c *domain.Catalog, model string, metric domain.DistanceMetric, previous string) string {
	v, ok := ResolveThreshold(c, model, metric)
	if !ok {
		return previous
	}
	return FormatThreshold(v)
}

// FormatThreshold renders v the way a user would type it: 10 not 10.0
func FormatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ModelDescription returns the catalog description of model or ""
func ModelDescription(c *domain.Catalog, model string) string {
	if c == nil {
		return ""
	}
	return c.Models[model].Description
}

// MetricDescription returns the human readable explanation of metric
func MetricDescription(metric domain.DistanceMetric) string {
	return metricDescriptions[metric]
}

// ModelNames lists the models of c in the canonical order, followed by any
// the service added. Without a catalog the static list is returned.
func ModelNames(c *domain.Catalog) []string {
	if c == nil || len(c.Models) == 0 {
		return append([]string(nil), Models...)
	}

	names := make([]string, 0, len(c.Models))
	seen := make(map[string]bool, len(c.Models))
	for _, name := range Models {
		if _, ok := c.Models[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	extra := make([]string, 0)
	for name := range c.Models {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	return append(names, extra...)
}
