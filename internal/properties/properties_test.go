package properties

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/imagingearth/phenology/internal/composite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1.5, cfg.CellSize)
	assert.Equal(t, 0.05, cfg.SourceCellSize)
	assert.Equal(t, 2001, cfg.YearFrom)
	assert.Equal(t, 2012, cfg.YearTo)
	assert.Equal(t, "fail", cfg.Incomplete)
	assert.Equal(t, composite.DefaultPattern, cfg.Pattern)
	assert.NoError(t, cfg.Validate())
}

func TestLoadLayersYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pheno.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cell_size: 0.5\nyear_from: 2003\nvi: EVI\n"), 0644))

	t.Setenv("PHENO_YEAR_FROM", "2004")
	t.Setenv("PHENO_PREVIEW", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.CellSize)
	assert.Equal(t, "EVI", cfg.VI)
	assert.Equal(t, 2004, cfg.YearFrom)
	assert.True(t, cfg.Preview)
	assert.Equal(t, 2012, cfg.YearTo)
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	cfg := Default()
	env := map[string]string{"PHENO_WORKERS": "many", "PHENO_CELL_SIZE": "x"}
	err := applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHENO_WORKERS")
	assert.Contains(t, err.Error(), "PHENO_CELL_SIZE")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.YearFrom, cfg.YearTo = 2012, 2012
	cfg.Incomplete = "zero"
	cfg.MonthWorkers = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "year range")
	assert.Contains(t, err.Error(), "incomplete policy")
	assert.Contains(t, err.Error(), "worker counts")
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PHENO_TEST_ONLY_VALUE=42\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("PHENO_TEST_ONLY_VALUE") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "42", os.Getenv("PHENO_TEST_ONLY_VALUE"))
}
