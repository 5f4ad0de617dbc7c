package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrUnresolvedEnv reports a >>key<< reference that neither the [env] table nor
// the process environment could satisfy.
var ErrUnresolvedEnv = errors.New("unresolved env reference")

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Database points at the document store used by the *-to-db tasks.
type Database struct {
	DBFile string `toml:"db_file"`
}

// Oracle configures the external physics helper that fits, renormalizes and
// post-processes force constants.
type Oracle struct {
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ShengBTE configures the Boltzmann transport solver executable.
type ShengBTE struct {
	Command string `toml:"command"`
}

// Fitting contains force-constant fitting defaults.
type Fitting struct {
	ImaginaryTol float64     `toml:"imaginary_tol"`
	FitMethod    string      `toml:"fit_method"`
	SeparateFit  bool        `toml:"separate_fit"`
	BulkModulus  *float64    `toml:"bulk_modulus"`
	Cutoffs      [][]float64 `toml:"cutoffs"`
	Temperatures []float64   `toml:"temperatures"`
}

// Renormalization contains temperature-dependent renormalization defaults.
type Renormalization struct {
	Temperatures         []float64 `toml:"temperatures"`
	Workers              int       `toml:"workers"`
	NConfigs             int       `toml:"n_configs"`
	ConvergenceThreshold float64   `toml:"convergence_threshold"`
	WithThermalExpansion bool      `toml:"with_thermal_expansion"`
}

// Phonon contains settings for derived phonon artifacts.
type Phonon struct {
	MeshDensity float64 `toml:"mesh_density"`
}

// Transport contains ShengBTE CONTROL defaults. Temperature accepts a number,
// an array of numbers, or a {min, max, step} table.
type Transport struct {
	Temperature       any     `toml:"temperature"`
	ScaleBroad        float64 `toml:"scalebroad"`
	Isotopes          bool    `toml:"isotopes"`
	Nonanalytic       bool    `toml:"nonanalytic"`
	ReciprocalDensity int     `toml:"reciprocal_density"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for latdyn.
//
// Configuration sections by subsystem:
//   - Paths: working and log directories
//   - Database: document store location
//   - Oracle / ShengBTE: external executables
//   - Fitting / Renormalization / Phonon / Transport: task defaults
//   - Logging: log format and level
//   - Env: worker-specific values referenced as >>key<<
type Config struct {
	Paths           Paths             `toml:"paths"`
	Database        Database          `toml:"database"`
	Oracle          Oracle            `toml:"oracle"`
	ShengBTE        ShengBTE          `toml:"shengbte"`
	Fitting         Fitting           `toml:"fitting"`
	Renormalization Renormalization   `toml:"renormalization"`
	Phonon          Phonon            `toml:"phonon"`
	Transport       Transport         `toml:"transport"`
	Logging         Logging           `toml:"logging"`
	Env             map[string]string `toml:"env"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	// The file decides the temperature shape; normalize restores the default
	// when the key is absent.
	cfg.Transport.Temperature = nil

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("latdyn.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log directory. The working directory is
// owned by the workflow engine and is never created here.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	return nil
}

// ResolveEnv applies env_chk semantics: a value of the form >>key<< is looked
// up in the [env] table first, then in LATDYN_<KEY>. Other values pass through.
func (c *Config) ResolveEnv(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, ">>") || !strings.HasSuffix(trimmed, "<<") || len(trimmed) < 5 {
		return trimmed, nil
	}
	key := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if v, ok := c.Env[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	envKey := "LATDYN_" + strings.ToUpper(key)
	if v, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return "", fmt.Errorf("%w: %s (set [env].%s or %s)", ErrUnresolvedEnv, trimmed, key, envKey)
}

// DBFile returns the resolved document store path.
func (c *Config) DBFile() (string, error) {
	raw, err := c.ResolveEnv(c.Database.DBFile)
	if err != nil {
		return "", fmt.Errorf("database.db_file: %w", err)
	}
	return expandPath(raw)
}

// OracleCommand returns the oracle executable and leading arguments.
func (c *Config) OracleCommand() ([]string, error) {
	return c.command("oracle.command", c.Oracle.Command)
}

// ShengBTECommand returns the ShengBTE executable and leading arguments.
func (c *Config) ShengBTECommand() ([]string, error) {
	return c.command("shengbte.command", c.ShengBTE.Command)
}

func (c *Config) command(key, value string) ([]string, error) {
	raw, err := c.ResolveEnv(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	fields := strings.Fields(os.ExpandEnv(raw))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s must be set", key)
	}
	return fields, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
