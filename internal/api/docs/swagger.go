package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// SelectionData is the active model, metric, threshold and detector
type SelectionData struct {
	Model     string `json:"model" example:"Facenet"`
	Metric    string `json:"metric" example:"cosine"`
	Threshold string `json:"threshold" example:"0.4"`
	Detector  string `json:"detector" example:"retinaface"`
	APIURL    string `json:"api_url" example:"http://localhost:5005"`
}

// ImageData describes an uploaded image without its bytes
type ImageData struct {
	ID          string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name        string `json:"name" example:"selfie.jpg"`
	ContentType string `json:"content_type" example:"image/jpeg"`
	Size        int    `json:"size" example:"48213"`
}

// SlotImages holds one entry per image slot
type SlotImages struct {
	One *ImageData `json:"one"`
	Two *ImageData `json:"two"`
}

// CompareResponse is the outcome of a two image verification
type CompareResponse struct {
	Verified             bool    `json:"verified" example:"true"`
	SimilarityPercentage float64 `json:"similarity_percentage" example:"78.4"`
	Distance             float64 `json:"distance" example:"0.31"`
	DistanceMetric       string  `json:"distance_metric" example:"cosine"`
	Model                string  `json:"model" example:"Facenet"`
	Success              bool    `json:"success" example:"true"`
	Threshold            float64 `json:"threshold" example:"0.4"`
}

// LivenessResponse is the anti-spoofing verdict for the slot one image
type LivenessResponse struct {
	IsLive     bool    `json:"is_live" example:"true"`
	Confidence float64 `json:"confidence" example:"0.93"`
	Message    string  `json:"message" example:"Real face detected"`
	Success    bool    `json:"success" example:"true"`
}

// AttributeData is a dominant class and the score of every class
type AttributeData struct {
	Dominant      string             `json:"dominant" example:"happy"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// AnalysisData holds the demographics of the first detected face
type AnalysisData struct {
	Age     float64       `json:"age" example:"31"`
	Gender  AttributeData `json:"gender"`
	Race    AttributeData `json:"race"`
	Emotion AttributeData `json:"emotion"`
}

// AnalyzeResponse carries a null face when none was detected
type AnalyzeResponse struct {
	Face *AnalysisData `json:"face"`
}

// NoticeData is the user facing message of the last failure
type NoticeData struct {
	Kind      string `json:"kind" example:"transport"`
	Code      string `json:"code" example:"INFERENCE_UNAVAILABLE"`
	Message   string `json:"message" example:"Something went wrong. Please try again."`
	CreatedAt string `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// SessionResponse is a session snapshot
type SessionResponse struct {
	ID            string           `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Tab           string           `json:"tab" example:"match"`
	Selection     SelectionData    `json:"selection"`
	Models        []string         `json:"models" example:"Facenet,VGG-Face,ArcFace"`
	Metrics       []string         `json:"metrics" example:"cosine,euclidean,euclidean_l2"`
	Backends      []string         `json:"backends" example:"opencv,retinaface,mtcnn"`
	CatalogLoaded bool             `json:"catalog_loaded" example:"true"`
	Images        SlotImages       `json:"images"`
	Comparison    *CompareResponse `json:"comparison"`
	Notice        *NoticeData      `json:"notice"`
	Loading       bool             `json:"loading" example:"false"`
	AutoChecks    bool             `json:"auto_checks" example:"true"`
}

// CreateSessionRequest is the optional body of session creation
type CreateSessionRequest struct {
	AutoChecks *bool `json:"auto_checks,omitempty" example:"true"`
}

// SelectionRequest changes any subset of the selection
type SelectionRequest struct {
	Model     *string `json:"model,omitempty" example:"VGG-Face"`
	Metric    *string `json:"metric,omitempty" example:"euclidean_l2"`
	Threshold *string `json:"threshold,omitempty" example:"1.17"`
	Detector  *string `json:"detector,omitempty" example:"mtcnn"`
}

type APIURLRequest struct {
	APIURL string `json:"api_url" example:"https://deepface.internal:5005"`
}

type TabRequest struct {
	Tab string `json:"tab" example:"liveness"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

var (
	errSessionNotFound = response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Session not found or expired"}, "404", "Not Found")
	errRateLimited     = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests")
	errUnavailable     = response.New(ErrorResponse{Code: "INFERENCE_UNAVAILABLE", Message: "Something went wrong. Please try again."}, "502", "Bad Gateway")
	errInvalidUpstream = response.New(ErrorResponse{Code: "INVALID_INFERENCE_RESPONSE", Message: "The face service returned an unreadable response. Check the API URL or tunnel."}, "502", "Bad Gateway")
	errInternal        = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
)

func sessionIDParam() *parameter.Parameter {
	return parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session ID"))
}

func slotParam() *parameter.Parameter {
	return parameter.StrParam("slot", parameter.Path, parameter.WithDescription("Image slot: one or two"))
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "facecheck API",
		Version:     "v1.0.0",
		Description: "Session backend for face verification, liveness and attribute analysis on top of a DeepFace service",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/sessions - Create Session
		endpoint.New(
			endpoint.POST,
			"/sessions",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Start a session"),
			endpoint.WithDescription("Creates a session bound to the caller's X-Client-ID and loads the model catalog from the saved or default API URL. A catalog failure is reported in the snapshot notice."),
			endpoint.WithParams(
				parameter.StrParam("X-Client-ID", parameter.Header, parameter.WithDescription("Stable browser identifier used to remember the API URL")),
			),
			endpoint.WithBody(CreateSessionRequest{}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "201", "Session created"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				errRateLimited,
				errInternal,
			}),
		),

		// GET /v1/sessions/:id - Session Snapshot
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Get a session snapshot"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Current session state"),
			}),
			endpoint.WithErrors([]response.Response{errSessionNotFound, errRateLimited}),
		),

		// DELETE /v1/sessions/:id - End Session
		endpoint.New(
			endpoint.DELETE,
			"/sessions/{id}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("End a session"),
			endpoint.WithDescription("Drops the session with its images and closes its WebSocket watchers"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Session ended"),
			}),
			endpoint.WithErrors([]response.Response{errSessionNotFound}),
		),

		// PATCH /v1/sessions/:id/selection - Update Selection
		endpoint.New(
			endpoint.PATCH,
			"/sessions/{id}/selection",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Change model, metric, threshold or detector"),
			endpoint.WithDescription("Changing the model or metric replaces the threshold with the catalog value for the pair. A threshold in the same request wins."),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithBody(SelectionRequest{}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Selection updated"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
			}),
		),

		// PUT /v1/sessions/:id/api-url - Switch Inference Service
		endpoint.New(
			endpoint.PUT,
			"/sessions/{id}/api-url",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Switch the inference service"),
			endpoint.WithDescription("Saves the URL for the client and reloads the catalog from it"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithBody(APIURLRequest{}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Service switched"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "INVALID_API_URL", Message: "API URL must be an absolute http or https URL"}, "422", "Unprocessable Entity"),
			}),
		),

		// POST /v1/sessions/:id/refresh - Reload Catalog
		endpoint.New(
			endpoint.POST,
			"/sessions/{id}/refresh",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Reload the model catalog"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Catalog reloaded"),
			}),
			endpoint.WithErrors([]response.Response{errSessionNotFound, errRateLimited, errUnavailable, errInvalidUpstream}),
		),

		// PUT /v1/sessions/:id/tab - Switch Tab
		endpoint.New(
			endpoint.PUT,
			"/sessions/{id}/tab",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Switch tab"),
			endpoint.WithDescription("Clears both images and every result"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithBody(TabRequest{}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Tab switched"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "INVALID_TAB", Message: "Unknown tab, expected match, liveness or analyze"}, "422", "Unprocessable Entity"),
			}),
		),

		// PUT /v1/sessions/:id/images/:slot - Upload Image
		endpoint.New(
			endpoint.PUT,
			"/sessions/{id}/images/{slot}",
			endpoint.WithTags("Images"),
			endpoint.WithSummary("Upload an image into a slot"),
			endpoint.WithDescription("Multipart field \"image\", JPEG, PNG or WebP up to 10MB. Replacing an image discards the results computed from it."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam(), slotParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ImageData{}, "200", "Image stored"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "INVALID_SLOT", Message: "Unknown image slot, expected one or two"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "422", "Unprocessable Entity"),
			}),
		),

		// DELETE /v1/sessions/:id/images/:slot - Clear Image
		endpoint.New(
			endpoint.DELETE,
			"/sessions/{id}/images/{slot}",
			endpoint.WithTags("Images"),
			endpoint.WithSummary("Clear an image slot"),
			endpoint.WithParams(sessionIDParam(), slotParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Slot cleared"),
			}),
			endpoint.WithErrors([]response.Response{errSessionNotFound}),
		),

		// POST /v1/sessions/:id/compare - Verify
		endpoint.New(
			endpoint.POST,
			"/sessions/{id}/compare",
			endpoint.WithTags("Analysis"),
			endpoint.WithSummary("Verify that both images show the same person"),
			endpoint.WithDescription("Uses the session's model, metric, threshold and detector"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CompareResponse{}, "200", "Comparison completed"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "MISSING_IMAGES", Message: "Please upload both images."}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_THRESHOLD", Message: "Please enter a valid numeric threshold."}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "MATCH_FAILED", Message: "Face match failed. Please upload valid images."}, "422", "Unprocessable Entity"),
				errRateLimited,
				errUnavailable,
				errInvalidUpstream,
			}),
		),

		// POST /v1/sessions/:id/liveness - Liveness
		endpoint.New(
			endpoint.POST,
			"/sessions/{id}/liveness",
			endpoint.WithTags("Analysis"),
			endpoint.WithSummary("Check liveness of the slot one image"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(LivenessResponse{}, "200", "Liveness checked"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "MISSING_IMAGE", Message: "Please upload an image."}, "422", "Unprocessable Entity"),
				errRateLimited,
				errUnavailable,
				errInvalidUpstream,
			}),
		),

		// POST /v1/sessions/:id/analyze - Analyze
		endpoint.New(
			endpoint.POST,
			"/sessions/{id}/analyze",
			endpoint.WithTags("Analysis"),
			endpoint.WithSummary("Estimate age, gender, emotion and race"),
			endpoint.WithDescription("Returns the first detected face, or a null face when none was found"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AnalyzeResponse{}, "200", "Analysis completed"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "MISSING_IMAGE", Message: "Please upload an image."}, "422", "Unprocessable Entity"),
				errRateLimited,
				errUnavailable,
				errInvalidUpstream,
			}),
		),

		// GET /v1/sessions/:id/ws - Watch Session
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}/ws",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Watch session events over WebSocket"),
			endpoint.WithDescription("Streams catalog.loaded, selection.updated, images.updated, result.compare, result.liveness, result.analyze and notice events"),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
