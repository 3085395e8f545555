package cli

import (
	"os"
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

// baseEnv defines root CLI defaults sourced from ADSTACKCTL_* env vars.
type baseEnv struct {
	// ConfigPath is the deploy.yaml path from ADSTACKCTL_CONFIG.
	ConfigPath string `env:"ADSTACKCTL_CONFIG"`
	// Region is the AWS region from ADSTACKCTL_REGION.
	Region string `env:"ADSTACKCTL_REGION"`
	// LogLevel is the logging level from ADSTACKCTL_LOG_LEVEL.
	LogLevel string `env:"ADSTACKCTL_LOG_LEVEL"`
}

// varsEnv describes inline vars and var files passed via env.
type varsEnv struct {
	// Vars is a k=v,k2=v2 list from ADSTACKCTL_VARS.
	Vars string `env:"ADSTACKCTL_VARS"`
	// VarFile is a YAML/ENV path from ADSTACKCTL_VAR_FILE.
	VarFile string `env:"ADSTACKCTL_VAR_FILE"`
}

// parseEnv fills target from ADSTACKCTL_* env vars via caarlos0/env.
func parseEnv(target any) error {
	return envparse.Parse(target)
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

// applyEnvDefaults fills global flags the user did not set from the environment.
func applyEnvDefaults(cmd *cobra.Command, opts *Options) error {
	var base baseEnv
	if err := parseEnv(&base); err != nil {
		return err
	}
	if !cmd.Flags().Changed("config") && envPresent("ADSTACKCTL_CONFIG") {
		opts.ConfigPath = strings.TrimSpace(base.ConfigPath)
	}
	if !cmd.Flags().Changed("region") && envPresent("ADSTACKCTL_REGION") {
		opts.Region = strings.TrimSpace(base.Region)
	}
	if !cmd.Flags().Changed("log-level") && envPresent("ADSTACKCTL_LOG_LEVEL") {
		if err := cmd.Flags().Set("log-level", strings.TrimSpace(base.LogLevel)); err != nil {
			return err
		}
	}
	return nil
}
