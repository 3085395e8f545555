package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/adstackctl/internal/config"
	"github.com/codex-k8s/adstackctl/internal/env"
)

func parseInlineVarsAndFiles(cmd *cobra.Command) (env.Vars, []string, error) {
	var fromEnv varsEnv
	if err := parseEnv(&fromEnv); err != nil {
		return nil, nil, err
	}

	inline := cmd.Flag("vars").Value.String()
	if !cmd.Flags().Changed("vars") && envPresent("ADSTACKCTL_VARS") {
		inline = fromEnv.Vars
	}
	inlineVars, err := env.ParseInlineVars(inline)
	if err != nil {
		return nil, nil, err
	}

	varFile := cmd.Flag("var-file").Value.String()
	if !cmd.Flags().Changed("var-file") && envPresent("ADSTACKCTL_VAR_FILE") {
		varFile = strings.TrimSpace(fromEnv.VarFile)
	}
	var varFiles []string
	if varFile != "" {
		varFiles = append(varFiles, varFile)
	}
	return inlineVars, varFiles, nil
}

func loadDeployConfigFromCmd(opts *Options, cmd *cobra.Command) (*config.DeployConfig, config.TemplateContext, error) {
	inlineVars, varFiles, err := parseInlineVarsAndFiles(cmd)
	if err != nil {
		return nil, config.TemplateContext{}, err
	}

	loadOpts := config.LoadOptions{
		Region:   opts.Region,
		UserVars: inlineVars,
		VarFiles: varFiles,
	}
	return config.Load(opts.ConfigPath, loadOpts)
}

func addVarsFlags(cmd *cobra.Command) {
	cmd.Flags().String("vars", "", "Additional variables in k=v,k2=v2 format")
	cmd.Flags().String("var-file", "", "Path to YAML/ENV file with additional variables")
}
