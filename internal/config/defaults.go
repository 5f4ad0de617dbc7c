package config

const (
	defaultConfigPath        = "~/.config/latdyn/config.toml"
	defaultLogDir            = "~/.local/share/latdyn/logs"
	defaultDBFile            = "~/.local/share/latdyn/latdyn.db"
	defaultOracleCommand     = "latdyn-oracle"
	defaultShengBTECommand   = "ShengBTE"
	defaultImaginaryTol      = 0.025 // THz
	defaultFitMethod         = "rfe"
	defaultRenormWorkers     = 2
	defaultRenormNConfigs    = 50
	defaultRenormConvergence = 0.01
	defaultMeshDensity       = 100.0
	defaultScaleBroad        = 0.5
	defaultReciprocalDensity = 50000
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"

	defaultTransportTemperatureLo = 100.0
	defaultTransportTemperatureHi = 1500.0
	defaultTransportTemperatureDT = 100.0
)

// QHATemperatures is the reference grid for harmonic and anharmonic
// properties: 0 K to 2000 K in 100 K steps.
func QHATemperatures() []float64 {
	temps := make([]float64, 0, 21)
	for i := 0; i <= 20; i++ {
		temps = append(temps, float64(i*100))
	}
	return temps
}

// RenormTemperatures is the default renormalization grid.
func RenormTemperatures() []float64 {
	return []float64{0, 50, 100, 200, 300, 500, 700, 1000, 1500}
}

// TransportTemperature is the default ShengBTE temperature range.
func TransportTemperature() map[string]any {
	return map[string]any{
		"min":  defaultTransportTemperatureLo,
		"max":  defaultTransportTemperatureHi,
		"step": defaultTransportTemperatureDT,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Database: Database{
			DBFile: defaultDBFile,
		},
		Oracle: Oracle{
			Command: defaultOracleCommand,
		},
		ShengBTE: ShengBTE{
			Command: defaultShengBTECommand,
		},
		Fitting: Fitting{
			ImaginaryTol: defaultImaginaryTol,
			FitMethod:    defaultFitMethod,
			Temperatures: QHATemperatures(),
		},
		Renormalization: Renormalization{
			Temperatures:         RenormTemperatures(),
			Workers:              defaultRenormWorkers,
			NConfigs:             defaultRenormNConfigs,
			ConvergenceThreshold: defaultRenormConvergence,
			WithThermalExpansion: true,
		},
		Phonon: Phonon{
			MeshDensity: defaultMeshDensity,
		},
		Transport: Transport{
			Temperature:       TransportTemperature(),
			ScaleBroad:        defaultScaleBroad,
			ReciprocalDensity: defaultReciprocalDensity,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
