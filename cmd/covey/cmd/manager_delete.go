package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var managerDeleteCmd = &cobra.Command{
	Use:     "delete",
	Aliases: []string{"del", "d", "rm"},
	Short:   "Delete a town and disconnect everyone in it",
	PreRunE: validateRemoteFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(viper.GetString(townFlag)) == "" {
			return errMissingTown
		}

		if strings.TrimSpace(viper.GetString(passwordFlag)) == "" {
			return errMissingPassword
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		return newManager(ctx).DeleteTown(viper.GetString(townFlag), viper.GetString(passwordFlag))
	},
}

func init() {
	addRemoteFlags(managerDeleteCmd.PersistentFlags())
	managerDeleteCmd.PersistentFlags().String(townFlag, "", "ID of the town")
	managerDeleteCmd.PersistentFlags().String(passwordFlag, "", "Update password of the town, or the master password")

	viper.AutomaticEnv()

	managerCmd.AddCommand(managerDeleteCmd)
}
