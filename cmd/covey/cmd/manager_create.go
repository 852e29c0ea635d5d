package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	errMissingName = errors.New("missing name")
)

const (
	nameFlag     = "name"
	publicFlag   = "public"
	creatorFlag  = "creator"
	capacityFlag = "capacity"
)

var managerCreateCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"ctr", "c", "mk"},
	Short:   "Create a town",
	PreRunE: validateRemoteFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(viper.GetString(nameFlag)) == "" {
			return errMissingName
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		h, err := newManager(ctx).CreateTown(
			viper.GetString(nameFlag),
			viper.GetBool(publicFlag),
			viper.GetString(creatorFlag),
			viper.GetInt(capacityFlag),
		)
		if err != nil {
			return err
		}

		w := csv.NewWriter(os.Stdout)
		defer w.Flush()

		if err := w.Write([]string{"id", "password"}); err != nil {
			return err
		}

		return w.Write([]string{h.ID, h.Secret})
	},
}

func init() {
	addRemoteFlags(managerCreateCmd.PersistentFlags())
	managerCreateCmd.PersistentFlags().String(nameFlag, "", "Friendly name of the town")
	managerCreateCmd.PersistentFlags().Bool(publicFlag, true, "List the town publicly")
	managerCreateCmd.PersistentFlags().String(creatorFlag, "", "Username of the town's creator")
	managerCreateCmd.PersistentFlags().Int(capacityFlag, 0, "Maximum occupancy of the town (0 uses the server's default)")

	viper.AutomaticEnv()

	managerCmd.AddCommand(managerCreateCmd)
}
