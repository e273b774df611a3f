// Command gwsurrogate builds, trains, validates and evaluates waveform
// surrogate models.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/gwsurrogate/config"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
	"github.com/YuminosukeSato/gwsurrogate/pkg/telemetry"
	"github.com/YuminosukeSato/gwsurrogate/surrogate"
)

// app is the state shared by every subcommand once the root command has
// loaded the configuration.
type app struct {
	configPath  string
	logLevel    string
	metricsAddr string

	cfg       *config.Config
	logger    log.Logger
	telemetry *telemetry.Collectors
	server    *http.Server
}

func newRootCmd(ctx context.Context) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "gwsurrogate",
		Short: "Frequency-domain gravitational waveform surrogate",
		Long: `gwsurrogate builds a fast surrogate of binary neutron star waveforms:
it selects downsampling points, fits a PCA basis of the residuals from a
post-Newtonian baseline, trains a neural network from the physical
parameters to the PCA coefficients and evaluates polarizations at
arbitrary frequencies.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the YAML configuration (defaults when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address when telemetry is enabled")

	root.AddCommand(
		a.generateCmd(ctx),
		a.trainCmd(ctx),
		a.predictCmd(),
		a.validateCmd(ctx),
		a.configCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := log.SetupLogger(cfg.Logging.Level, os.Stderr); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log.GetLogger().With(log.OperationKey, cmd.Name())

	if cfg.Telemetry.Enabled {
		a.telemetry = telemetry.NewCollectors(cfg.Telemetry.Namespace)
		reg := prometheus.NewRegistry()
		if err := a.telemetry.Register(reg); err != nil {
			return errors.Wrap(err, "failed to register metrics")
		}
		if a.metricsAddr != "" {
			a.serveMetrics(reg)
		}
	}
	return nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.server = &http.Server{Addr: a.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.metricsAddr)
}

func (a *app) shutdown() error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

// newModel builds an empty model from the configuration.
func (a *app) newModel() (*surrogate.Model, error) {
	return surrogate.NewModelFromConfig(a.cfg, nil,
		surrogate.WithTelemetry(a.telemetry),
		surrogate.WithLogger(log.GetLogger()))
}

// loadModel builds a model from the configuration and loads its saved
// state from the storage directory.
func (a *app) loadModel() (*surrogate.Model, error) {
	m, err := a.newModel()
	if err != nil {
		return nil, err
	}
	if err := m.Load(a.cfg.Storage.Directory); err != nil {
		return nil, err
	}
	return m, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd(ctx).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
