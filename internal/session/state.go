package session

import (
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

// Selection is the active model, metric, threshold and detector. Threshold
// is kept as typed so partial input like "0." survives until submit.
type Selection struct {
	Model     string                `json:"model"`
	Metric    domain.DistanceMetric `json:"metric"`
	Threshold string                `json:"threshold"`
	Detector  string                `json:"detector"`
	APIURL    string                `json:"api_url"`
}

// SelectionPatch carries the fields of a selection update. Nil fields are
// left unchanged.
type SelectionPatch struct {
	Model     *string `json:"model,omitempty"`
	Metric    *string `json:"metric,omitempty"`
	Threshold *string `json:"threshold,omitempty"`
	Detector  *string `json:"detector,omitempty"`
}

// Image is an uploaded image held in a slot. ID changes on every upload and
// is how in-flight calls recognise that their input was replaced.
type Image struct {
	ID          uuid.UUID
	Name        string
	ContentType string
	Data        []byte
}

func (img *Image) info() *ImageInfo {
	if img == nil {
		return nil
	}
	return &ImageInfo{
		ID:          img.ID,
		Name:        img.Name,
		ContentType: img.ContentType,
		Size:        len(img.Data),
	}
}

// ImageInfo describes a slot's image without its bytes
type ImageInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
}

// PerSlot holds one value per image slot
type PerSlot[T any] struct {
	One *T `json:"one"`
	Two *T `json:"two"`
}

func perSlot[T any](one, two *T) PerSlot[T] {
	return PerSlot[T]{One: clone(one), Two: clone(two)}
}

// Get returns the value of slot
func (p PerSlot[T]) Get(slot domain.Slot) *T {
	if slot == domain.SlotTwo {
		return p.Two
	}
	return p.One
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// State is a point in time copy of a session for presentation
type State struct {
	ID                uuid.UUID                      `json:"id"`
	Tab               domain.Tab                     `json:"tab"`
	Tabs              []domain.TabInfo               `json:"tabs"`
	Selection         Selection                      `json:"selection"`
	ModelDescription  string                         `json:"model_description"`
	MetricDescription string                         `json:"metric_description"`
	Models            []string                       `json:"models"`
	Metrics           []domain.DistanceMetric        `json:"metrics"`
	Backends          []string                       `json:"backends"`
	CatalogLoaded     bool                           `json:"catalog_loaded"`
	Images            PerSlot[ImageInfo]             `json:"images"`
	Comparison        *domain.ComparisonResult       `json:"comparison"`
	Liveness          PerSlot[domain.LivenessResult] `json:"liveness"`
	Analysis          PerSlot[domain.AnalyzeResult]  `json:"analysis"`
	Notice            *domain.Notice                 `json:"notice"`
	Loading           bool                           `json:"loading"`
	AutoChecks        bool                           `json:"auto_checks"`
}

// ResultEvent is the payload of per slot result events
type ResultEvent struct {
	Slot    string      `json:"slot"`
	ImageID uuid.UUID   `json:"image_id"`
	Result  interface{} `json:"result"`
}
