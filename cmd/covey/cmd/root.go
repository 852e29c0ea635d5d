package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/volatiletech/sqlboiler/v4/boil"
)

const (
	verboseFlag   = "verbose"
	logFormatFlag = "log-format"

	logFormatJSON    = "json"
	logFormatConsole = "console"

	// Above this verbosity, SQL statements are logged too
	sqlDebugVerbosity = 6
)

// levels maps verbosity to log level; anything higher traces
var levels = []zerolog.Level{
	zerolog.Disabled,
	zerolog.PanicLevel,
	zerolog.FatalLevel,
	zerolog.ErrorLevel,
	zerolog.WarnLevel,
	zerolog.InfoLevel,
	zerolog.DebugLevel,
}

var rootCmd = &cobra.Command{
	Use:   "covey",
	Short: "Town session authority for covey.town",
	Long: `Run the covey.town town session authority, or manage the towns of a running one.

Towns are created, listed, renamed and deleted over HTTP; members join them over WebSockets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("covey")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		switch format := viper.GetString(logFormatFlag); format {
		case logFormatJSON:
		case logFormatConsole:
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		default:
			return fmt.Errorf("unknown log format %q, expected %v or %v", format, logFormatJSON, logFormatConsole)
		}

		verbose := viper.GetInt(verboseFlag)
		boil.DebugMode = verbose > sqlDebugVerbosity

		level := zerolog.TraceLevel
		switch {
		case verbose < 0:
			level = zerolog.Disabled
		case verbose < len(levels):
			level = levels[verbose]
		}
		zerolog.SetGlobalLevel(level)

		return nil
	},
}

func Execute() error {
	rootCmd.PersistentFlags().IntP(verboseFlag, "v", 5, "Verbosity level (0 is disabled, default is info, 7 is trace and also logs SQL)")
	rootCmd.PersistentFlags().String(logFormatFlag, logFormatJSON, "Log format ("+logFormatJSON+" or "+logFormatConsole+")")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	viper.AutomaticEnv()

	return rootCmd.Execute()
}
