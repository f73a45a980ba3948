package config

import (
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"govlsm/internal/errors"
)

// Config represents the complete application configuration.
// It is immutable once loaded and threaded explicitly through every
// component so each stage can be tested with synthetic parameters.
type Config struct {
	Cohort      CohortConfig      `yaml:"cohort"`
	Stats       StatsConfig       `yaml:"stats"`
	Permutation PermutationConfig `yaml:"permutation"`
	Output      OutputConfig      `yaml:"output"`
}

// CohortConfig locates the design document and the lesion volumes.
type CohortConfig struct {
	// DirLesion is the base directory containing the registered lesion masks.
	DirLesion string `yaml:"dirLesion"`

	// DesignDocument is the tabular file mapping lesion filenames to scores
	// (.xlsx or .csv).
	DesignDocument string `yaml:"designDocument"`

	// DataInSubfolders indicates lesions live one level down in a per-cohort
	// subfolder derived from the filename prefix (e.g. "p007_..." -> "p007").
	DataInSubfolders bool `yaml:"dataInSubfolders"`

	// Domain selects the 0-based score column of the design document.
	Domain int `yaml:"domain"`

	// Template is the reference volume whose geometry is stamped on every
	// output. Its intensities are unused.
	Template string `yaml:"template"`
}

// StatsConfig holds the per-voxel testing parameters.
type StatsConfig struct {
	// SubjectThreshold is the minimum lesion prevalence for a voxel to be
	// tested. Must be >= 1.
	SubjectThreshold int `yaml:"subjectThreshold"`

	// Alpha is the significance level, in (0, 1).
	Alpha float64 `yaml:"alpha"`

	// PerVoxelPower switches the power computation from the single fixed
	// effect size (99th percentile across voxels, the default) to each
	// voxel's own effect size.
	PerVoxelPower bool `yaml:"perVoxelPower"`

	// NJobs bounds the worker pool; 1 disables parallelism.
	NJobs int `yaml:"nJobs"`
}

// PermutationConfig gates the maxT multiple-testing correction.
type PermutationConfig struct {
	Enabled         bool   `yaml:"enabled"`
	NumPermutations int    `yaml:"numPermutations"`
	LogPath         string `yaml:"logPath"`
	Seed            int64  `yaml:"seed"`
}

// OutputConfig holds one path per produced volume plus the run artifacts.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Prevalence string `yaml:"prevalence"`
	TMap       string `yaml:"tMap"`
	RawP       string `yaml:"rawP"`
	FDRP       string `yaml:"fdrP"`
	Power      string `yaml:"power"`
	Effect     string `yaml:"effect"`
	PermP      string `yaml:"permP"`
	Report     string `yaml:"report"`
	LedgerDB   string `yaml:"ledgerDB"`
}

// Default returns a configuration with default values.
func Default() *Config {
	cfg := &Config{}

	cfg.Cohort.Domain = 0
	cfg.Stats.SubjectThreshold = 5
	cfg.Stats.Alpha = 0.05
	cfg.Stats.NJobs = runtime.NumCPU()

	cfg.Permutation.Enabled = false
	cfg.Permutation.NumPermutations = 1000
	cfg.Permutation.LogPath = "permutation_maxt.log"
	cfg.Permutation.Seed = 42

	cfg.Output.Dir = "."
	cfg.Output.Prevalence = "prevalence.nii.gz"
	cfg.Output.TMap = "tmap.nii.gz"
	cfg.Output.RawP = "raw_p_inv.nii.gz"
	cfg.Output.FDRP = "fdr_p_inv.nii.gz"
	cfg.Output.Power = "power.nii.gz"
	cfg.Output.Effect = "effect.nii.gz"
	cfg.Output.PermP = "perm_p_inv.nii.gz"
	cfg.Output.Report = "report.html"
	cfg.Output.LedgerDB = "runs.db"

	return cfg
}

// Load builds the configuration from an optional YAML file overridden by
// environment variables, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFile(cfg, configPath); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.ConfigInvalid("configuration file does not exist: " + path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.IOError("error reading config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.ConfigInvalid("error parsing config file: " + err.Error())
	}

	return nil
}

func applyEnv(cfg *Config) {
	cfg.Cohort.DirLesion = getEnvOrDefault("DIR_LESION", cfg.Cohort.DirLesion)
	cfg.Cohort.DesignDocument = getEnvOrDefault("DESIGN_DOCUMENT", cfg.Cohort.DesignDocument)
	cfg.Cohort.DataInSubfolders = getEnvBoolOrDefault("DATA_IN_SUBFOLDERS", cfg.Cohort.DataInSubfolders)
	cfg.Cohort.Domain = getEnvIntOrDefault("DOMAIN", cfg.Cohort.Domain)
	cfg.Cohort.Template = getEnvOrDefault("TEMPLATE", cfg.Cohort.Template)

	cfg.Stats.SubjectThreshold = getEnvIntOrDefault("SUBJECT_THRESHOLD", cfg.Stats.SubjectThreshold)
	cfg.Stats.Alpha = getEnvFloatOrDefault("ALPHA", cfg.Stats.Alpha)
	cfg.Stats.PerVoxelPower = getEnvBoolOrDefault("PER_VOXEL_POWER", cfg.Stats.PerVoxelPower)
	cfg.Stats.NJobs = getEnvIntOrDefault("N_JOBS", cfg.Stats.NJobs)

	cfg.Permutation.Enabled = getEnvBoolOrDefault("PERFORM_MULTIPLE_TESTING_PERMUTATION", cfg.Permutation.Enabled)
	cfg.Permutation.NumPermutations = getEnvIntOrDefault("NUM_PERMUTATIONS", cfg.Permutation.NumPermutations)
	cfg.Permutation.LogPath = getEnvOrDefault("PERMUTATION_LOG", cfg.Permutation.LogPath)
	cfg.Permutation.Seed = int64(getEnvIntOrDefault("PERMUTATION_SEED", int(cfg.Permutation.Seed)))

	cfg.Output.Dir = getEnvOrDefault("OUTPUT_DIR", cfg.Output.Dir)
}

// Validate enforces the recognized option ranges before any computation runs.
func (c *Config) Validate() error {
	if c.Cohort.DirLesion == "" {
		return errors.ConfigInvalid("DIR_LESION is required")
	}
	if c.Cohort.DesignDocument == "" {
		return errors.ConfigInvalid("DESIGN_DOCUMENT is required")
	}
	if c.Cohort.Template == "" {
		return errors.ConfigInvalid("TEMPLATE is required")
	}
	if c.Cohort.Domain < 0 {
		return errors.ConfigInvalid("DOMAIN must be >= 0")
	}
	if c.Stats.SubjectThreshold < 1 {
		return errors.ConfigInvalid("SUBJECT_THRESHOLD must be >= 1")
	}
	if c.Stats.Alpha <= 0 || c.Stats.Alpha >= 1 {
		return errors.ConfigInvalid("ALPHA must be in (0, 1)")
	}
	if c.Stats.NJobs < 1 {
		return errors.ConfigInvalid("N_JOBS must be >= 1")
	}
	if c.Permutation.Enabled && c.Permutation.NumPermutations < 1 {
		return errors.ConfigInvalid("NUM_PERMUTATIONS must be >= 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
