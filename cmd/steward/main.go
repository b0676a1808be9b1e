package main

import (
	"fmt"
	"os"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/go-go-golems/steward/cmd/steward/cmds"
	"github.com/go-go-golems/steward/pkg/settings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "steward is a personal assistant for schedule, tasks, expenses and notes",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// flags are parsed by now, so --log-level and co take effect here
		if err := logging.InitLoggerFromViper(); err != nil {
			return err
		}
		log.Debug().Str("config", viper.ConfigFileUsed()).Msg("configuration loaded")
		return nil
	},
	SilenceUsage: true,
}

// flagKeys maps settings keys onto the persistent flags that override them.
var flagKeys = map[string]string{
	"llm.api-key":     "openai-api-key",
	"llm.offline":     "offline",
	"store.driver":    "store-driver",
	"store.dsn":       "store-dsn",
	"threads.backend": "threads-backend",
}

// initConfig registers the settings defaults, reads ~/.steward/config.yaml through
// clay and lets STEWARD_* variables and the persistent flags override it.
func initConfig() error {
	v := viper.GetViper()
	settings.SetDefaults(v)

	pf := rootCmd.PersistentFlags()
	pf.String("openai-api-key", "", "OpenAI API key")
	pf.Bool("offline", false, "Answer without a language model")
	pf.String("store-driver", "memory", "Record store (memory, sqlite3, mysql)")
	pf.String("store-dsn", "", "Record store data source name")
	pf.String("threads-backend", "memory", "Thread history store (memory, redis)")

	if err := clay.InitViper("steward", rootCmd); err != nil {
		return err
	}
	settings.BindEnv(v)
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, pf.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := initConfig(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing config: %s\n", err)
		os.Exit(1)
	}

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	serveCmd, err := cmds.NewServeCommand()
	cobra.CheckErr(err)
	chatCmd, err := cmds.NewChatCommand()
	cobra.CheckErr(err)
	rootCmd.AddCommand(
		serveCmd,
		chatCmd,
		cmds.NewToolsCommand(),
		cmds.NewPlanCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
