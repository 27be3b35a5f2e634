package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/Cronwheel/internal/config"
)

// rootOptions — глобальные флаги.
type rootOptions struct {
	envFile    string
	configPath string
	jsonOutput bool
}

// loadConfig загружает конфигурацию с учётом глобальных флагов.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.envFile, o.configPath)
}

// output создаёт Output для команды.
func (o *rootOptions) output(cmd *cobra.Command) *Output {
	return NewOutput(o.jsonOutput, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// NewRootCmd собирает дерево команд cronwheel-scheduler.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "cronwheel-scheduler",
		Short:         "Cronwheel — distributed time-wheel job scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment from file (default: .env if present)")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newMigrateCmd(opts),
		newNextCmd(opts),
		newJobCmd(opts),
	)

	return rootCmd
}
