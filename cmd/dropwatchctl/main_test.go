package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/scoring"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateThenTrain(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data", "students.csv")
	modelPath := filepath.Join(dir, "models", "model.json")

	_, err := execute(t, "generate", "--out", data, "--rows", "500", "--seed", "5")
	require.NoError(t, err)

	ds, err := scoring.ReadDatasetFile(data)
	require.NoError(t, err)
	assert.Equal(t, 500, ds.Len())

	out, err := execute(t, "train", "--data", data, "--out", modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Model Accuracy: ")

	pipe, err := scoring.LoadPipeline(modelPath)
	require.NoError(t, err)
	assert.Len(t, pipe.Coefficients, model.NumFeatures)
	assert.Equal(t, 400, pipe.Metadata.TrainSamples)
	assert.Equal(t, 100, pipe.Metadata.TestSamples)
	assert.Greater(t, pipe.Metadata.TestAccuracy, 0.5)
}

func TestGenerateToStdout(t *testing.T) {
	out, err := execute(t, "generate", "--out", "-", "--rows", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "attendance,internal_marks,quiz_score,login_frequency,financial_issue,backlog_count,dropout", lines[0])
}

func TestCommandErrors(t *testing.T) {
	_, err := execute(t, "generate", "--rows", "0", "--out", "-")
	assert.Error(t, err)

	_, err = execute(t, "train", "--data", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = execute(t, "simulate", "--url", "", "--students", "1")
	assert.Error(t, err)

	_, err = execute(t, "generate", "--log-format", "xml", "--out", "-")
	assert.Error(t, err)
}
