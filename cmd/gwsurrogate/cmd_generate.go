package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/gwsurrogate/neural"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
	"github.com/YuminosukeSato/gwsurrogate/surrogate"
)

func (a *app) generateCmd(ctx context.Context) *cobra.Command {
	var (
		sizes  surrogate.GenerateSizes
		resume bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Select downsampling indices, fit the PCA basis and generate the training dataset",
		Long: `Run the generation stages in order and save the model arrays.

Sizes default to the generation section of the configuration. With
--resume the saved model is loaded first and a size of 0 keeps the
corresponding stage.

Examples:
  gwsurrogate generate --config model.yaml
  gwsurrogate generate --downsampling 0 --pca 0 --nn 1024 --resume`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("downsampling") {
				sizes.Downsampling = a.cfg.Generation.Downsampling
			}
			if !flags.Changed("pca") {
				sizes.PCA = a.cfg.Generation.PCA
			}
			if !flags.Changed("nn") {
				sizes.NN = a.cfg.Generation.NN
			}

			m, err := a.newModel()
			if err != nil {
				return err
			}
			if resume {
				if err := m.Load(a.cfg.Storage.Directory); err != nil {
					return err
				}
			}
			a.logger.Info("generating model", log.ModelNameKey, m.Name,
				"downsampling", sizes.Downsampling, "pca", sizes.PCA, "nn", sizes.NN)
			if err := m.Generate(ctx, sizes); err != nil {
				return err
			}
			return m.Save(a.cfg.Storage.Directory)
		},
	}
	cmd.Flags().IntVar(&sizes.Downsampling, "downsampling", 0, "waveforms for the downsampling stage")
	cmd.Flags().IntVar(&sizes.PCA, "pca", 0, "waveforms for the PCA stage")
	cmd.Flags().IntVar(&sizes.NN, "nn", 0, "waveforms in the training dataset")
	cmd.Flags().BoolVar(&resume, "resume", false, "load the saved model before generating")
	return cmd
}

func (a *app) trainCmd(ctx context.Context) *cobra.Command {
	var hyperPath string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the regressor of a generated model and save it",
		Long: `Load the saved model, train the neural network on its training dataset
and save the regressor and hyperparameters next to the model arrays.

Without --hyper the best tabulated trial for the training size is used.

Examples:
  gwsurrogate train --config model.yaml
  gwsurrogate train --hyper hyper.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadModel()
			if err != nil {
				return err
			}
			var hyper *neural.Hyperparameters
			if hyperPath != "" {
				if hyper, err = readHyperparameters(hyperPath); err != nil {
					return err
				}
			}
			if err := m.SetHyperAndTrainNN(ctx, hyper); err != nil {
				return err
			}
			return m.Save(a.cfg.Storage.Directory)
		},
	}
	cmd.Flags().StringVar(&hyperPath, "hyper", "", "YAML file with the hyperparameters")
	return cmd
}

func readHyperparameters(path string) (*neural.Hyperparameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	hyper := neural.DefaultHyperparameters(0)
	if err := yaml.Unmarshal(data, hyper); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return hyper, hyper.Validate()
}
