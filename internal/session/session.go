// Package session holds the per-user orchestration state: the active
// selection, tab, image slots and results, and sequences calls to the
// inference backend against them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/catalog"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/face"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/preference"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/ws"
)

const (
	// DefaultTimeout bounds background checks when Config.Timeout is unset
	DefaultTimeout = 30 * time.Second

	maxConcurrentChecks = 4
)

// Publisher pushes session events to connected clients
type Publisher interface {
	Publish(sessionID uuid.UUID, eventType ws.EventType, data interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(uuid.UUID, ws.EventType, interface{}) {}

type dependencies struct {
	publisher   Publisher
	auditLogger audit.Logger
	prefs       preference.Store
	logger      *slog.Logger
}

// Option configures the collaborators of a session or manager
type Option func(*dependencies)

// WithPublisher sets where state change events go
func WithPublisher(p Publisher) Option {
	return func(d *dependencies) {
		if p != nil {
			d.publisher = p
		}
	}
}

// WithAuditLogger records every inference call
func WithAuditLogger(l audit.Logger) Option {
	return func(d *dependencies) {
		if l != nil {
			d.auditLogger = l
		}
	}
}

// WithPreferences persists the API base URL across sessions
func WithPreferences(store preference.Store) Option {
	return func(d *dependencies) {
		d.prefs = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *dependencies) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func resolve(opts []Option) dependencies {
	d := dependencies{
		publisher:   noopPublisher{},
		auditLogger: &audit.NoOpLogger{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Config holds the per session settings
type Config struct {
	ClientID    string
	APIURL      string
	AutoChecks  bool
	Timeout     time.Duration
	BackendName string
}

// Session is the server held state of one browser tab or CLI run. All
// fields below mu are guarded by it; backend calls are made without it.
type Session struct {
	id          uuid.UUID
	clientID    string
	autoChecks  bool
	timeout     time.Duration
	backendName string
	factory     face.BackendFactory
	dependencies

	mu               sync.Mutex
	backend          provider.Inference
	generation       uint64
	catalog          *domain.Catalog
	selection        Selection
	modelDescription string
	tab              domain.Tab
	images           [2]*Image
	comparison       *domain.ComparisonResult
	liveness         [2]*domain.LivenessResult
	analysis         [2]*domain.AnalyzeResult
	notice           *domain.Notice
	pending          int
	lastUsed         time.Time

	wg  sync.WaitGroup
	sem chan struct{}
}

// New creates a session on the match tab with the hardcoded defaults. The
// catalog is not loaded until Refresh.
func New(id uuid.UUID, factory face.BackendFactory, cfg Config, opts ...Option) *Session {
	if cfg.ClientID == "" {
		cfg.ClientID = id.String()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	deps := resolve(opts)
	deps.logger = deps.logger.With("component", "session", "session_id", id.String())

	return &Session{
		id:           id,
		clientID:     cfg.ClientID,
		autoChecks:   cfg.AutoChecks,
		timeout:      cfg.Timeout,
		backendName:  cfg.BackendName,
		factory:      factory,
		dependencies: deps,
		backend:      factory(cfg.APIURL),
		selection: Selection{
			Model:     catalog.DefaultModel,
			Metric:    catalog.DefaultMetric,
			Threshold: catalog.DefaultThreshold,
			Detector:  catalog.DefaultDetector,
			APIURL:    cfg.APIURL,
		},
		tab:      domain.TabMatch,
		lastUsed: time.Now(),
		sem:      make(chan struct{}, maxConcurrentChecks),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) ClientID() string {
	return s.clientID
}

// LastUsed reports when the session was last looked up
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// Wait blocks until all background checks have finished
func (s *Session) Wait() {
	s.wg.Wait()
}

// Catalog returns the loaded catalog, nil before the first successful
// Refresh. Catalogs are never modified once fetched.
func (s *Session) Catalog() *domain.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// Snapshot returns a copy of the session state. The returned value shares
// nothing mutable with the session.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:                s.id,
		Tab:               s.tab,
		Tabs:              append([]domain.TabInfo(nil), domain.Tabs...),
		Selection:         s.selection,
		ModelDescription:  s.modelDescription,
		MetricDescription: catalog.MetricDescription(s.selection.Metric),
		Models:            catalog.ModelNames(s.catalog),
		Metrics:           append([]domain.DistanceMetric(nil), domain.Metrics...),
		Backends:          []string{},
		CatalogLoaded:     s.catalog != nil,
		Images:            perSlot(s.images[domain.SlotOne].info(), s.images[domain.SlotTwo].info()),
		Comparison:        clone(s.comparison),
		Liveness:          perSlot(s.liveness[domain.SlotOne], s.liveness[domain.SlotTwo]),
		Analysis:          perSlot(s.analysis[domain.SlotOne], s.analysis[domain.SlotTwo]),
		Notice:            clone(s.notice),
		Loading:           s.pending > 0,
		AutoChecks:        s.autoChecks,
	}
	if s.catalog != nil {
		if len(s.catalog.DistanceMetrics) > 0 {
			st.Metrics = append([]domain.DistanceMetric(nil), s.catalog.DistanceMetrics...)
		}
		st.Backends = append(st.Backends, s.catalog.Backends...)
	}

	return st
}

// Refresh fetches the catalog and reseeds model, metric and threshold from
// its recommendations. The comparison result is cleared since it may no
// longer match the selection.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	backend := s.backend
	generation := s.generation
	s.comparison = nil
	s.pending++
	s.mu.Unlock()
	defer s.settle()

	start := time.Now()
	c, err := catalog.Fetch(ctx, backend)
	s.audit(ctx, audit.EventCatalogFetched, start, err == nil, err, nil)
	if err != nil {
		return s.fail("fetch catalog", err, func() bool { return generation == s.generation })
	}

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding catalog of replaced backend")
		return nil
	}
	defaults := catalog.DefaultsFor(c)
	s.catalog = c
	s.selection.Model = defaults.Model
	s.selection.Metric = defaults.Metric
	s.selection.Threshold = defaults.Threshold
	s.modelDescription = defaults.ModelDescription
	selection := s.selection
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventCatalogLoaded, map[string]interface{}{
		"catalog":   c,
		"selection": selection,
	})

	return nil
}

// UpdateSelection applies patch atomically. A model or metric change
// recomputes the threshold from the catalog in the same critical section;
// an explicit threshold in the same patch wins over the derived one.
func (s *Session) UpdateSelection(patch SelectionPatch) (Selection, error) {
	if patch.Model != nil && strings.TrimSpace(*patch.Model) == "" {
		return Selection{}, domain.ErrValidationFailed.WithError(errors.New("model is required"))
	}
	if patch.Metric != nil && !domain.DistanceMetric(*patch.Metric).Valid() {
		return Selection{}, domain.ErrValidationFailed.WithError(fmt.Errorf("unknown distance metric %q", *patch.Metric))
	}

	s.mu.Lock()
	if patch.Model != nil {
		s.selection.Model = strings.TrimSpace(*patch.Model)
		s.selection.Threshold = catalog.DeriveThreshold(s.catalog, s.selection.Model, s.selection.Metric, s.selection.Threshold)
		s.modelDescription = catalog.ModelDescription(s.catalog, s.selection.Model)
	}
	if patch.Metric != nil {
		s.selection.Metric = domain.DistanceMetric(*patch.Metric)
		s.selection.Threshold = catalog.DeriveThreshold(s.catalog, s.selection.Model, s.selection.Metric, s.selection.Threshold)
	}
	if patch.Threshold != nil {
		s.selection.Threshold = *patch.Threshold
	}
	if patch.Detector != nil {
		s.selection.Detector = strings.TrimSpace(*patch.Detector)
	}
	selection := s.selection
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventSelectionUpdated, selection)

	return selection, nil
}

func (s *Session) SetModel(model string) (Selection, error) {
	return s.UpdateSelection(SelectionPatch{Model: &model})
}

func (s *Session) SetMetric(metric string) (Selection, error) {
	return s.UpdateSelection(SelectionPatch{Metric: &metric})
}

// SetThreshold stores text as typed; it is parsed on submit
func (s *Session) SetThreshold(text string) (Selection, error) {
	return s.UpdateSelection(SelectionPatch{Threshold: &text})
}

// SetDetector sets the detector backend, "" leaves it to the service
func (s *Session) SetDetector(name string) (Selection, error) {
	return s.UpdateSelection(SelectionPatch{Detector: &name})
}

// NormalizeAPIURL validates an API base URL and strips trailing slashes
func NormalizeAPIURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", domain.ErrInvalidAPIURL.WithError(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", domain.ErrInvalidAPIURL.WithError(fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return "", domain.ErrInvalidAPIURL.WithError(errors.New("missing host"))
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// SetAPIURL points the session at another inference service. The URL is
// saved for the client, the backend swapped and the catalog refetched. A
// failed save is logged and does not stop the switch.
func (s *Session) SetAPIURL(ctx context.Context, raw string) error {
	apiURL, err := NormalizeAPIURL(raw)
	if err != nil {
		return err
	}

	if s.prefs != nil {
		if err := s.prefs.Set(ctx, preference.Key(s.clientID), apiURL); err != nil {
			s.logger.Warn("failed to persist API URL",
				slog.String("client_id", s.clientID),
				slog.String("error", err.Error()),
			)
		}
	}

	backend := s.factory(apiURL)

	s.mu.Lock()
	previous := s.selection.APIURL
	s.backend = backend
	s.generation++
	s.catalog = nil
	s.selection.APIURL = apiURL
	selection := s.selection
	s.mu.Unlock()

	s.audit(ctx, audit.EventAPIURLChanged, time.Now(), true, nil, map[string]string{
		"previous": previous,
		"api_url":  apiURL,
	})
	s.publisher.Publish(s.id, ws.EventSelectionUpdated, selection)

	return s.Refresh(ctx)
}

// SwitchTab activates tab and resets both image slots and every result
func (s *Session) SwitchTab(raw string) error {
	tab, err := domain.ParseTab(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tab = tab
	s.images = [2]*Image{}
	s.comparison = nil
	s.liveness = [2]*domain.LivenessResult{}
	s.analysis = [2]*domain.AnalyzeResult{}
	s.notice = nil
	event := s.imagesEventLocked()
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventImagesUpdated, event)

	return nil
}

// SetImage stores an upload in slot under a fresh tag and invalidates the
// results derived from the previous content. With auto checks on the match
// tab, liveness and analyze run in the background for the new image.
func (s *Session) SetImage(slot domain.Slot, name, contentType string, data []byte) (ImageInfo, error) {
	if slot != domain.SlotOne && slot != domain.SlotTwo {
		return ImageInfo{}, domain.ErrInvalidSlot
	}
	if len(data) == 0 {
		return ImageInfo{}, domain.ErrInvalidImage.WithError(errors.New("empty image"))
	}

	img := &Image{
		ID:          uuid.New(),
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}

	s.mu.Lock()
	s.images[slot] = img
	s.invalidateLocked(slot)
	runChecks := s.autoChecks && s.tab == domain.TabMatch
	detector := s.selection.Detector
	backend := s.backend
	event := s.imagesEventLocked()
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventImagesUpdated, event)

	if runChecks {
		s.startChecks(backend, slot, *img, detector)
	}

	return *img.info(), nil
}

// ClearImage empties slot and invalidates its results
func (s *Session) ClearImage(slot domain.Slot) error {
	if slot != domain.SlotOne && slot != domain.SlotTwo {
		return domain.ErrInvalidSlot
	}

	s.mu.Lock()
	s.images[slot] = nil
	s.invalidateLocked(slot)
	event := s.imagesEventLocked()
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventImagesUpdated, event)

	return nil
}

func (s *Session) invalidateLocked(slot domain.Slot) {
	s.comparison = nil
	s.liveness[slot] = nil
	s.analysis[slot] = nil
}

func (s *Session) imagesEventLocked() map[string]interface{} {
	return map[string]interface{}{
		"tab":    s.tab,
		"images": perSlot(s.images[domain.SlotOne].info(), s.images[domain.SlotTwo].info()),
	}
}

// currentLocked reports whether slot still holds the image tagged id
func (s *Session) currentLocked(slot domain.Slot, id uuid.UUID) bool {
	img := s.images[slot]
	return img != nil && img.ID == id
}

func (s *Session) settle() {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
}

func (s *Session) audit(ctx context.Context, eventType audit.EventType, start time.Time, success bool, err error, metadata map[string]string) {
	event := audit.Event{
		SessionID: s.id,
		ClientID:  s.clientID,
		EventType: eventType,
		Backend:   s.backendName,
		Success:   success,
		Duration:  time.Since(start),
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	// audit failures never fail the operation
	_ = s.auditLogger.Log(ctx, event)
}
