package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/session"
)

func newModelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models, metrics and detectors of the service",
		Example: `  facecheck models --api-url https://abc.ngrok-free.app
  facecheck models -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.start(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), newCatalogReport(s.Snapshot(), s.Catalog()))
		},
	}
}

func newCompareCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare IMAGE1 IMAGE2",
		Short: "Verify whether two images show the same person",
		Example: `  facecheck compare id.jpg selfie.jpg
  facecheck compare a.png b.png --model Facenet --metric euclidean_l2 --auto-checks`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.start(cmd.Context())
			if err != nil {
				return err
			}
			if err := opts.applySelection(s); err != nil {
				return err
			}
			for i, path := range args {
				if err := setImage(s, domain.Slot(i), path); err != nil {
					return err
				}
			}

			if _, err := s.SubmitCompare(cmd.Context()); err != nil {
				return err
			}
			s.Wait()

			return opts.print(cmd.OutOrStdout(), newResultReport(s.Snapshot()))
		},
	}
	selectionFlags(cmd, opts, true)
	return cmd
}

func newLivenessCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "liveness IMAGE",
		Short:   "Check whether an image shows a live person",
		Example: `  facecheck liveness selfie.jpg --detector retinaface`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.startOnTab(cmd.Context(), domain.TabLiveness, args[0])
			if err != nil {
				return err
			}
			if _, err := s.SubmitLiveness(cmd.Context()); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), newResultReport(s.Snapshot()))
		},
	}
	selectionFlags(cmd, opts, false)
	return cmd
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyze IMAGE",
		Short:   "Estimate age, gender, emotion and race",
		Example: `  facecheck analyze selfie.jpg -o json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.startOnTab(cmd.Context(), domain.TabAnalyze, args[0])
			if err != nil {
				return err
			}
			if _, err := s.SubmitAnalyze(cmd.Context()); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), newResultReport(s.Snapshot()))
		},
	}
	selectionFlags(cmd, opts, false)
	return cmd
}

// start creates a session and loads the catalog. Unlike the API, a CLI run
// cannot fall back to defaults silently, so a catalog failure is fatal.
func (o *options) start(ctx context.Context) (*session.Session, error) {
	s := session.New(uuid.New(), o.factory, session.Config{
		APIURL:      o.apiURL,
		AutoChecks:  o.autoChecks,
		Timeout:     o.cfg.InferenceTimeout,
		BackendName: o.cfg.InferenceBackend,
	},
		session.WithAuditLogger(audit.NewSlogLogger(o.logger)),
		session.WithLogger(o.logger),
	)

	if err := s.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", o.apiURL, err)
	}
	return s, nil
}

func (o *options) startOnTab(ctx context.Context, tab domain.Tab, path string) (*session.Session, error) {
	s, err := o.start(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.SwitchTab(string(tab)); err != nil {
		return nil, err
	}
	if err := o.applySelection(s); err != nil {
		return nil, err
	}
	if err := setImage(s, domain.SlotOne, path); err != nil {
		return nil, err
	}
	return s, nil
}

func (o *options) applySelection(s *session.Session) error {
	var patch session.SelectionPatch
	if o.model != "" {
		patch.Model = &o.model
	}
	if o.metric != "" {
		patch.Metric = &o.metric
	}
	if o.threshold != "" {
		patch.Threshold = &o.threshold
	}
	if o.detector != "" {
		patch.Detector = &o.detector
	}
	_, err := s.UpdateSelection(patch)
	return err
}

func setImage(s *session.Session, slot domain.Slot, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if _, err := s.SetImage(slot, filepath.Base(path), http.DetectContentType(data), data); err != nil {
		return fmt.Errorf("image %s: %w", path, err)
	}
	return nil
}

func (o *options) print(w io.Writer, v interface{}) error {
	if o.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// catalogReport lists what the service supports
type catalogReport struct {
	APIURL      string          `yaml:"api_url" json:"api_url"`
	Recommended selectionReport `yaml:"recommended" json:"recommended"`
	Models      []modelReport   `yaml:"models" json:"models"`
	Metrics     []string        `yaml:"metrics" json:"metrics"`
	Detectors   []string        `yaml:"detectors" json:"detectors"`
}

type modelReport struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Thresholds  map[string]float64 `yaml:"thresholds" json:"thresholds"`
}

type selectionReport struct {
	Model     string `yaml:"model" json:"model"`
	Metric    string `yaml:"metric" json:"metric"`
	Threshold string `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Detector  string `yaml:"detector,omitempty" json:"detector,omitempty"`
}

func newCatalogReport(state session.State, cat *domain.Catalog) catalogReport {
	r := catalogReport{
		APIURL: state.Selection.APIURL,
		Recommended: selectionReport{
			Model:     state.Selection.Model,
			Metric:    string(state.Selection.Metric),
			Threshold: state.Selection.Threshold,
		},
		Detectors: state.Backends,
	}
	for _, m := range state.Metrics {
		r.Metrics = append(r.Metrics, string(m))
	}
	for _, name := range state.Models {
		m := modelReport{Name: name, Thresholds: map[string]float64{}}
		if cat != nil {
			t := cat.Models[name]
			m.Description = t.Description
			for _, metric := range domain.Metrics {
				if v, ok := t.Threshold(metric); ok {
					m.Thresholds[string(metric)] = v
				}
			}
		}
		r.Models = append(r.Models, m)
	}
	return r
}

// resultReport is what a check prints: the selection it ran with and every
// result the session holds
type resultReport struct {
	Selection  selectionReport          `yaml:"selection" json:"selection"`
	Comparison *domain.ComparisonResult `yaml:"comparison,omitempty" json:"comparison,omitempty"`
	Liveness   map[string]livenessLine  `yaml:"liveness,omitempty" json:"liveness,omitempty"`
	Analysis   map[string]analysisLine  `yaml:"analysis,omitempty" json:"analysis,omitempty"`
}

type livenessLine struct {
	IsLive     bool    `yaml:"is_live" json:"is_live"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Message    string  `yaml:"message,omitempty" json:"message,omitempty"`
}

type analysisLine struct {
	Age     float64 `yaml:"age" json:"age"`
	Gender  string  `yaml:"gender" json:"gender"`
	Race    string  `yaml:"race" json:"race"`
	Emotion string  `yaml:"emotion" json:"emotion"`
}

func newResultReport(state session.State) resultReport {
	r := resultReport{
		Selection: selectionReport{
			Model:     state.Selection.Model,
			Metric:    string(state.Selection.Metric),
			Threshold: state.Selection.Threshold,
			Detector:  state.Selection.Detector,
		},
		Comparison: state.Comparison,
	}

	for _, slot := range []domain.Slot{domain.SlotOne, domain.SlotTwo} {
		if l := state.Liveness.Get(slot); l != nil {
			if r.Liveness == nil {
				r.Liveness = make(map[string]livenessLine)
			}
			r.Liveness[slot.String()] = livenessLine{IsLive: l.IsLive, Confidence: l.Confidence, Message: l.Message}
		}
		if a := state.Analysis.Get(slot); a != nil {
			if r.Analysis == nil {
				r.Analysis = make(map[string]analysisLine)
			}
			r.Analysis[slot.String()] = analysisLine{
				Age:     a.Age,
				Gender:  a.Gender.Dominant,
				Race:    a.Race.Dominant,
				Emotion: a.Emotion.Dominant,
			}
		}
	}
	return r
}
