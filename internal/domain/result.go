package domain

// ComparisonResult is the outcome of a two-image compare call
type ComparisonResult struct {
	Verified             bool           `json:"verified"`
	SimilarityPercentage float64        `json:"similarity_percentage"`
	Distance             float64        `json:"distance"`
	DistanceMetric       DistanceMetric `json:"distance_metric"`
	Model                string         `json:"model"`
	Success              bool           `json:"success"`
	Threshold            float64        `json:"threshold"`
}

// LivenessResult is the outcome of a liveness check on a single image
type LivenessResult struct {
	IsLive     bool    `json:"is_live"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
	Success    bool    `json:"success"`
}

// Attribute is one demographic dimension with its dominant class
type Attribute struct {
	Dominant      string             `json:"dominant"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// AnalyzeResult is the demographic analysis of the first face in an image
type AnalyzeResult struct {
	Age     float64   `json:"age"`
	Gender  Attribute `json:"gender"`
	Race    Attribute `json:"race"`
	Emotion Attribute `json:"emotion"`
}
