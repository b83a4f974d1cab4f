// Package cli runs one-shot face checks against an inference service from
// the command line, driving the same session as the HTTP API.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/config"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/face"
)

// options are the flags shared by every command
type options struct {
	apiURL     string
	backend    string
	model      string
	metric     string
	threshold  string
	detector   string
	autoChecks bool
	output     string
	verbose    bool

	cfg     *config.Config
	factory face.BackendFactory
	logger  *slog.Logger
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "facecheck",
		Short: "Face verification, liveness and attribute analysis against a DeepFace service",
		Long: `facecheck sends images to a remote DeepFace service and prints the results.

The service URL defaults to INFERENCE_URL and can be read from a .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api-url", "", "Inference service base URL (default $INFERENCE_URL)")
	flags.StringVar(&opts.backend, "backend", "", "Inference backend: deepface, rekognition or mock (default $INFERENCE_BACKEND)")
	flags.StringVarP(&opts.output, "output", "o", "yaml", "Output format: yaml or json")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log requests to stderr")

	cmd.AddCommand(newModelsCmd(opts))
	cmd.AddCommand(newCompareCmd(opts))
	cmd.AddCommand(newLivenessCmd(opts))
	cmd.AddCommand(newAnalyzeCmd(opts))

	return cmd
}

// selectionFlags registers the flags of commands that take a detector, and
// for compare the model, metric and threshold
func selectionFlags(cmd *cobra.Command, opts *options, withModel bool) {
	if withModel {
		cmd.Flags().StringVar(&opts.model, "model", "", "Recognition model (default: catalog recommendation)")
		cmd.Flags().StringVar(&opts.metric, "metric", "", "Distance metric: cosine, euclidean or euclidean_l2")
		cmd.Flags().StringVar(&opts.threshold, "threshold", "", "Distance threshold (default: derived from model and metric)")
		cmd.Flags().BoolVar(&opts.autoChecks, "auto-checks", false, "Also check liveness and analyze both images")
	}
	cmd.Flags().StringVar(&opts.detector, "detector", "", "Face detector backend, e.g. retinaface")
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.backend != "" {
		cfg.InferenceBackend = o.backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if o.apiURL == "" {
		o.apiURL = cfg.InferenceURL
	}
	if o.output != "yaml" && o.output != "json" {
		return fmt.Errorf("unknown output format %q, expected yaml or json", o.output)
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	factory, err := face.NewBackendFactory(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.factory = factory
	return nil
}
