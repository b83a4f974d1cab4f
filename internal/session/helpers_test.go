package session

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/face"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/ws"
)

func testCatalog() *domain.Catalog {
	return &domain.Catalog{
		Success:                   true,
		RecommendedModel:          "Facenet",
		RecommendedDistanceMetric: domain.MetricEuclidean,
		DistanceMetrics:           domain.Metrics,
		Backends:                  []string{"opencv", "retinaface", "mtcnn"},
		Models: map[string]domain.ModelThresholds{
			"Facenet": {
				Description: "Google FaceNet",
				Cosine:      domain.Float(0.40),
				Euclidean:   domain.Float(10.0),
			},
			"VGG-Face": {
				Description: "Oxford VGG",
				Cosine:      domain.Float(0.68),
				Euclidean:   domain.Float(1.17),
				EuclideanL2: domain.Float(1.17),
			},
			"ArcFace": {
				Description: "ArcFace",
				Cosine:      domain.Float(0.68),
				EuclideanL2: domain.Float(1.13),
			},
		},
	}
}

// stubBackend answers from function fields and counts calls
type stubBackend struct {
	mu    sync.Mutex
	calls map[string]int

	catalog    *domain.Catalog
	catalogErr error
	compare    func(ctx context.Context, req provider.CompareRequest) (*domain.ComparisonResult, error)
	liveness   func(ctx context.Context, req provider.LivenessRequest) (*domain.LivenessResult, error)
	analyze    func(ctx context.Context, img provider.Image) (*provider.AnalyzeResponse, error)
}

func newStub() *stubBackend {
	return &stubBackend{
		calls:   make(map[string]int),
		catalog: testCatalog(),
		compare: func(context.Context, provider.CompareRequest) (*domain.ComparisonResult, error) {
			return &domain.ComparisonResult{Success: true, Verified: true, SimilarityPercentage: 91.5, Distance: 0.17}, nil
		},
		liveness: func(context.Context, provider.LivenessRequest) (*domain.LivenessResult, error) {
			return &domain.LivenessResult{Success: true, IsLive: true, Confidence: 0.93}, nil
		},
		analyze: func(context.Context, provider.Image) (*provider.AnalyzeResponse, error) {
			return &provider.AnalyzeResponse{Faces: []domain.AnalyzeResult{{Age: 31}}}, nil
		},
	}
}

func (b *stubBackend) count(op string) {
	b.mu.Lock()
	b.calls[op]++
	b.mu.Unlock()
}

func (b *stubBackend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *stubBackend) Models(ctx context.Context) (*domain.Catalog, error) {
	b.count("models")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.catalog, b.catalogErr
}

func (b *stubBackend) Compare(ctx context.Context, req provider.CompareRequest) (*domain.ComparisonResult, error) {
	b.count("compare")
	return b.compare(ctx, req)
}

func (b *stubBackend) CheckLiveness(ctx context.Context, req provider.LivenessRequest) (*domain.LivenessResult, error) {
	b.count("liveness")
	return b.liveness(ctx, req)
}

func (b *stubBackend) Analyze(ctx context.Context, img provider.Image) (*provider.AnalyzeResponse, error) {
	b.count("analyze")
	return b.analyze(ctx, img)
}

// urlFactory records the base URLs it was asked for
type urlFactory struct {
	mu      sync.Mutex
	urls    []string
	backend provider.Inference
}

func (f *urlFactory) build(baseURL string) provider.Inference {
	f.mu.Lock()
	f.urls = append(f.urls, baseURL)
	f.mu.Unlock()
	return f.backend
}

func (f *urlFactory) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.urls) == 0 {
		return ""
	}
	return f.urls[len(f.urls)-1]
}

func staticFactory(b provider.Inference) face.BackendFactory {
	return func(string) provider.Inference { return b }
}

type publishedEvent struct {
	sessionID uuid.UUID
	eventType ws.EventType
	data      interface{}
}

type recordingPublisher struct {
	mu           sync.Mutex
	events       []publishedEvent
	disconnected []uuid.UUID
}

func (p *recordingPublisher) Publish(sessionID uuid.UUID, eventType ws.EventType, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{sessionID, eventType, data})
}

func (p *recordingPublisher) Disconnect(sessionID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = append(p.disconnected, sessionID)
}

func (p *recordingPublisher) types() []ws.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ws.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

func newTestSession(t *testing.T, backend provider.Inference, cfg Config, opts ...Option) *Session {
	t.Helper()
	s := New(uuid.New(), staticFactory(backend), cfg, opts...)
	t.Cleanup(s.Wait)
	return s
}

func jpeg(b byte) []byte {
	data := make([]byte, 2048)
	for i := range data {
		data[i] = b + byte(i%7)
	}
	return data
}
