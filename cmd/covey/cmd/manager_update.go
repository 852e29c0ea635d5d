package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	errNothingToUpdate = errors.New("nothing to update, set a name or visibility")
)

var managerUpdateCmd = &cobra.Command{
	Use:     "update",
	Aliases: []string{"upd", "u", "set"},
	Short:   "Rename a town or change whether it is listed",
	PreRunE: validateRemoteFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(viper.GetString(townFlag)) == "" {
			return errMissingTown
		}

		if strings.TrimSpace(viper.GetString(passwordFlag)) == "" {
			return errMissingPassword
		}

		var (
			name   *string
			public *bool
		)
		if cmd.PersistentFlags().Changed(nameFlag) {
			n := viper.GetString(nameFlag)
			name = &n
		}

		if cmd.PersistentFlags().Changed(publicFlag) {
			p := viper.GetBool(publicFlag)
			public = &p
		}

		if name == nil && public == nil {
			return errNothingToUpdate
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		return newManager(ctx).UpdateTown(viper.GetString(townFlag), viper.GetString(passwordFlag), name, public)
	},
}

func init() {
	addRemoteFlags(managerUpdateCmd.PersistentFlags())
	managerUpdateCmd.PersistentFlags().String(townFlag, "", "ID of the town")
	managerUpdateCmd.PersistentFlags().String(passwordFlag, "", "Update password of the town, or the master password")
	managerUpdateCmd.PersistentFlags().String(nameFlag, "", "New friendly name of the town")
	managerUpdateCmd.PersistentFlags().Bool(publicFlag, true, "List the town publicly")

	viper.AutomaticEnv()

	managerCmd.AddCommand(managerUpdateCmd)
}
