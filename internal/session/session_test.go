package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/catalog"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/preference"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/ws"
)

func TestNew_Defaults(t *testing.T) {
	s := newTestSession(t, newStub(), Config{APIURL: "http://localhost:5005"})

	st := s.Snapshot()

	assert.Equal(t, domain.TabMatch, st.Tab)
	assert.Equal(t, Selection{
		Model:     catalog.DefaultModel,
		Metric:    catalog.DefaultMetric,
		Threshold: catalog.DefaultThreshold,
		Detector:  catalog.DefaultDetector,
		APIURL:    "http://localhost:5005",
	}, st.Selection)
	assert.False(t, st.CatalogLoaded)
	assert.False(t, st.Loading)
	assert.Equal(t, catalog.Models, st.Models)
	assert.Len(t, st.Tabs, 3)
	assert.Nil(t, st.Images.One)
	assert.Nil(t, st.Notice)
	assert.Equal(t, s.ID().String(), s.ClientID())
}

func TestRefresh_SeedsDefaultsFromCatalog(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestSession(t, newStub(), Config{}, WithPublisher(pub))

	require.NoError(t, s.Refresh(context.Background()))

	st := s.Snapshot()
	assert.True(t, st.CatalogLoaded)
	assert.Equal(t, "Facenet", st.Selection.Model)
	assert.Equal(t, domain.MetricEuclidean, st.Selection.Metric)
	assert.Equal(t, "10", st.Selection.Threshold, "catalog value must replace the hardcoded 0.68")
	assert.Equal(t, "Google FaceNet", st.ModelDescription)
	assert.Equal(t, []string{"VGG-Face", "Facenet", "ArcFace"}, st.Models)
	assert.Equal(t, []string{"opencv", "retinaface", "mtcnn"}, st.Backends)
	assert.Contains(t, pub.types(), ws.EventCatalogLoaded)
}

func TestRefresh_Failure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErr  *domain.AppError
		wantKind domain.NoticeKind
	}{
		{
			name:     "service unreachable",
			err:      provider.ErrUnavailable,
			wantErr:  domain.ErrInferenceUnavailable,
			wantKind: domain.NoticeTransport,
		},
		{
			name:     "non 2xx response",
			err:      provider.NewTransportError("Fetch error", 500, ""),
			wantErr:  domain.ErrInferenceUnavailable,
			wantKind: domain.NoticeTransport,
		},
		{
			name:     "body not JSON",
			err:      provider.ErrInvalidResponse,
			wantErr:  domain.ErrInvalidInferenceResponse,
			wantKind: domain.NoticeParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newStub()
			backend.catalogErr = tt.err
			s := newTestSession(t, backend, Config{})

			err := s.Refresh(context.Background())

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			st := s.Snapshot()
			assert.False(t, st.CatalogLoaded)
			assert.Equal(t, catalog.DefaultThreshold, st.Selection.Threshold)
			assert.False(t, st.Loading)
			require.NotNil(t, st.Notice)
			assert.Equal(t, tt.wantKind, st.Notice.Kind)
			assert.Equal(t, tt.wantErr.Message, st.Notice.Message)
		})
	}
}

func TestRefresh_ClearsComparison(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})
	_, err := s.SetImage(domain.SlotOne, "a.jpg", "image/jpeg", jpeg(1))
	require.NoError(t, err)
	_, err = s.SetImage(domain.SlotTwo, "b.jpg", "image/jpeg", jpeg(2))
	require.NoError(t, err)
	_, err = s.SubmitCompare(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s.Snapshot().Comparison)

	require.NoError(t, s.Refresh(context.Background()))

	assert.Nil(t, s.Snapshot().Comparison)
}

func TestUpdateSelection_Cascade(t *testing.T) {
	tests := []struct {
		name          string
		steps         func(s *Session)
		wantModel     string
		wantMetric    domain.DistanceMetric
		wantThreshold string
	}{
		{
			name: "model then metric lands on final pair",
			steps: func(s *Session) {
				_, _ = s.SetModel("VGG-Face")
				_, _ = s.SetMetric("cosine")
			},
			wantModel:     "VGG-Face",
			wantMetric:    domain.MetricCosine,
			wantThreshold: "0.68",
		},
		{
			name: "metric then model lands on final pair",
			steps: func(s *Session) {
				_, _ = s.SetMetric("cosine")
				_, _ = s.SetModel("VGG-Face")
			},
			wantModel:     "VGG-Face",
			wantMetric:    domain.MetricCosine,
			wantThreshold: "0.68",
		},
		{
			name: "absent pair keeps the current threshold",
			steps: func(s *Session) {
				_, _ = s.SetModel("ArcFace")
			},
			wantModel:     "ArcFace",
			wantMetric:    domain.MetricEuclidean,
			wantThreshold: "10",
		},
		{
			name: "unknown model keeps the current threshold",
			steps: func(s *Session) {
				_, _ = s.SetModel("GhostFaceNet")
			},
			wantModel:     "GhostFaceNet",
			wantMetric:    domain.MetricEuclidean,
			wantThreshold: "10",
		},
		{
			name: "explicit edit wins until the next model change",
			steps: func(s *Session) {
				_, _ = s.SetThreshold("7.5")
			},
			wantModel:     "Facenet",
			wantMetric:    domain.MetricEuclidean,
			wantThreshold: "7.5",
		},
		{
			name: "model change overrides an explicit edit",
			steps: func(s *Session) {
				_, _ = s.SetThreshold("7.5")
				_, _ = s.SetModel("VGG-Face")
			},
			wantModel:     "VGG-Face",
			wantMetric:    domain.MetricEuclidean,
			wantThreshold: "1.17",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, newStub(), Config{})
			require.NoError(t, s.Refresh(context.Background()))

			tt.steps(s)

			sel := s.Snapshot().Selection
			assert.Equal(t, tt.wantModel, sel.Model)
			assert.Equal(t, tt.wantMetric, sel.Metric)
			assert.Equal(t, tt.wantThreshold, sel.Threshold)
		})
	}
}

func TestUpdateSelection_PatchThresholdWinsOverDerived(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})
	require.NoError(t, s.Refresh(context.Background()))

	model, threshold := "VGG-Face", "0.5"
	sel, err := s.UpdateSelection(SelectionPatch{Model: &model, Threshold: &threshold})

	require.NoError(t, err)
	assert.Equal(t, "0.5", sel.Threshold)
	assert.Equal(t, "Oxford VGG", s.Snapshot().ModelDescription)
}

func TestUpdateSelection_Validation(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})
	before := s.Snapshot().Selection

	_, err := s.SetMetric("manhattan")
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = s.SetModel("  ")
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	assert.Equal(t, before, s.Snapshot().Selection)
}

func TestSetDetector(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})

	sel, err := s.SetDetector("mtcnn")
	require.NoError(t, err)
	assert.Equal(t, "mtcnn", sel.Detector)

	sel, err = s.SetDetector("")
	require.NoError(t, err)
	assert.Empty(t, sel.Detector)
}

func TestNormalizeAPIURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"https://abc.ngrok-free.app/", "https://abc.ngrok-free.app", false},
		{"  http://localhost:5005 ", "http://localhost:5005", false},
		{"http://10.0.0.2:5005/api//", "http://10.0.0.2:5005/api", false},
		{"ftp://host", "", true},
		{"localhost:5005", "", true},
		{"https://", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeAPIURL(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidAPIURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetAPIURL(t *testing.T) {
	backend := newStub()
	factory := &urlFactory{backend: backend}
	prefs := preference.NewMemoryStore()
	s := New(uuid.New(), factory.build, Config{ClientID: "browser-1", APIURL: "http://localhost:5005"}, WithPreferences(prefs))
	t.Cleanup(s.Wait)

	err := s.SetAPIURL(context.Background(), "https://abc.ngrok-free.app/")
	require.NoError(t, err)

	assert.Equal(t, "https://abc.ngrok-free.app", factory.last())
	stored, err := prefs.Get(context.Background(), preference.Key("browser-1"))
	require.NoError(t, err)
	assert.Equal(t, "https://abc.ngrok-free.app", stored)

	st := s.Snapshot()
	assert.Equal(t, "https://abc.ngrok-free.app", st.Selection.APIURL)
	assert.True(t, st.CatalogLoaded)
	assert.Equal(t, 1, backend.Calls("models"))
}

func TestSetAPIURL_Invalid(t *testing.T) {
	backend := newStub()
	prefs := preference.NewMemoryStore()
	s := newTestSession(t, backend, Config{ClientID: "browser-1"}, WithPreferences(prefs))

	err := s.SetAPIURL(context.Background(), "not a url")

	assert.ErrorIs(t, err, domain.ErrInvalidAPIURL)
	assert.Equal(t, 0, backend.Calls("models"))
	_, err = prefs.Get(context.Background(), preference.Key("browser-1"))
	assert.ErrorIs(t, err, preference.ErrNotFound)
}

type failingStore struct {
	preference.Store
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestSetAPIURL_PersistFailureStillSwitches(t *testing.T) {
	s := newTestSession(t, newStub(), Config{}, WithPreferences(failingStore{}))

	require.NoError(t, s.SetAPIURL(context.Background(), "http://10.0.0.2:5005"))

	assert.Equal(t, "http://10.0.0.2:5005", s.Snapshot().Selection.APIURL)
}

func TestSwitchTab_FullReset(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})
	ctx := context.Background()
	_, _ = s.SetImage(domain.SlotOne, "a.jpg", "image/jpeg", jpeg(1))
	_, _ = s.SetImage(domain.SlotTwo, "b.jpg", "image/jpeg", jpeg(2))
	_, err := s.SubmitCompare(ctx)
	require.NoError(t, err)
	_, err = s.SubmitLiveness(ctx)
	require.NoError(t, err)
	_, err = s.SubmitAnalyze(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SwitchTab("liveness"))

	st := s.Snapshot()
	assert.Equal(t, domain.TabLiveness, st.Tab)
	assert.Nil(t, st.Images.One)
	assert.Nil(t, st.Images.Two)
	assert.Nil(t, st.Comparison)
	assert.Nil(t, st.Liveness.One)
	assert.Nil(t, st.Analysis.One)
}

func TestSwitchTab_Unknown(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})

	err := s.SwitchTab("settings")

	assert.ErrorIs(t, err, domain.ErrInvalidTab)
	assert.Equal(t, domain.TabMatch, s.Snapshot().Tab)
}

func TestSetImage(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})
	ctx := context.Background()

	first, err := s.SetImage(domain.SlotOne, "a.jpg", "image/jpeg", jpeg(1))
	require.NoError(t, err)
	assert.Equal(t, 2048, first.Size)
	_, _ = s.SetImage(domain.SlotTwo, "b.jpg", "image/jpeg", jpeg(2))
	_, _ = s.SubmitCompare(ctx)
	_, _ = s.SubmitLiveness(ctx)

	second, err := s.SetImage(domain.SlotOne, "c.jpg", "image/png", jpeg(3))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "every upload gets a fresh tag")
	st := s.Snapshot()
	assert.Equal(t, "c.jpg", st.Images.One.Name)
	assert.Nil(t, st.Comparison)
	assert.Nil(t, st.Liveness.One)
	assert.NotNil(t, st.Images.Two)
}

func TestSetImage_Invalid(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})

	_, err := s.SetImage(domain.SlotOne, "a.jpg", "image/jpeg", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, err = s.SetImage(domain.Slot(5), "a.jpg", "image/jpeg", jpeg(1))
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestClearImage(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})
	_, _ = s.SetImage(domain.SlotTwo, "b.jpg", "image/jpeg", jpeg(2))

	require.NoError(t, s.ClearImage(domain.SlotTwo))

	assert.Nil(t, s.Snapshot().Images.Two)
	assert.ErrorIs(t, s.ClearImage(domain.Slot(-1)), domain.ErrInvalidSlot)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newTestSession(t, newStub(), Config{})
	_, _ = s.SetImage(domain.SlotOne, "a.jpg", "image/jpeg", jpeg(1))
	_, _ = s.SubmitLiveness(context.Background())

	st := s.Snapshot()
	st.Liveness.One.IsLive = false
	st.Tabs[0].Label = "changed"

	again := s.Snapshot()
	assert.True(t, again.Liveness.One.IsLive)
	assert.Equal(t, "FACE MATCHING", again.Tabs[0].Label)
}

// gatedCatalog holds its catalog request until released, then fails it
type gatedCatalog struct {
	*stubBackend
	started chan struct{}
	release chan struct{}
}

func (g *gatedCatalog) Models(context.Context) (*domain.Catalog, error) {
	close(g.started)
	<-g.release
	return nil, errors.New("tunnel closed")
}

func TestRefresh_FailureOfReplacedBackendLeavesNoNotice(t *testing.T) {
	old := &gatedCatalog{stubBackend: newStub(), started: make(chan struct{}), release: make(chan struct{})}
	factory := func(baseURL string) provider.Inference {
		if baseURL == "https://faces.example.com" {
			return newStub()
		}
		return old
	}
	s := New(uuid.New(), factory, Config{APIURL: "http://localhost:5005"})
	t.Cleanup(s.Wait)

	done := make(chan error, 1)
	go func() {
		done <- s.Refresh(context.Background())
	}()

	<-old.started
	require.NoError(t, s.SetAPIURL(context.Background(), "https://faces.example.com"))
	close(old.release)

	assert.Error(t, <-done)
	st := s.Snapshot()
	assert.Nil(t, st.Notice)
	assert.True(t, st.CatalogLoaded)
	assert.Equal(t, "Facenet", st.Selection.Model)
}
