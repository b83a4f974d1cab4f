package rekognition

// Config holds configuration for the AWS Rekognition backend
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// Threshold is the published cosine-equivalent threshold for the single
	// model this backend exposes. Distance is 1 - similarity/100.
	Threshold float64

	// LivenessQuality is the minimum quality score (0-1) for a face to count as live
	LivenessQuality float64
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:          "us-east-1",
		Threshold:       0.2,
		LivenessQuality: 0.5,
	}
}
