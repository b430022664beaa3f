package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/dropwatch/internal/domain/scoring"
	"github.com/okian/dropwatch/pkg/logger"
)

func newTrainCmd() *cobra.Command {
	var (
		dataPath  string
		modelPath string
		c         float64
		maxIter   int
		testFrac  float64
		seed      int64
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the scaler and logistic regression and write the model artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logger.Named("train")

			ds, err := scoring.ReadDatasetFile(dataPath)
			if err != nil {
				return err
			}
			log.Info(ctx, "dataset loaded", logger.String("path", dataPath), logger.Int("rows", ds.Len()))

			pipe, err := scoring.Train(ctx, ds,
				scoring.WithC(c),
				scoring.WithMaxIterations(maxIter),
				scoring.WithTestFraction(testFrac),
				scoring.WithSeed(seed),
			)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			if err := pipe.Save(modelPath); err != nil {
				return fmt.Errorf("save model: %w", err)
			}

			md := pipe.Metadata
			log.Info(ctx, "model saved",
				logger.String("path", modelPath),
				logger.Int("train_samples", md.TrainSamples),
				logger.Int("test_samples", md.TestSamples),
				logger.Int("iterations", md.Iterations))
			fmt.Fprintf(cmd.OutOrStdout(), "Model Accuracy: %.4f\n", md.TestAccuracy)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dataPath, "data", "data/students.csv", "Training CSV with the six feature columns and a dropout label")
	f.StringVar(&modelPath, "out", "models/dropout_model.json", "Where to write the model artifact")
	f.Float64Var(&c, "c", scoring.DefaultC, "Inverse L2 regularisation strength")
	f.IntVar(&maxIter, "max-iter", scoring.DefaultMaxIterations, "Optimizer iteration cap")
	f.Float64Var(&testFrac, "test-size", scoring.DefaultTestFraction, "Share of rows held out for accuracy")
	f.Int64Var(&seed, "seed", scoring.DefaultSeed, "Shuffle seed for the train/test split")
	return cmd
}
