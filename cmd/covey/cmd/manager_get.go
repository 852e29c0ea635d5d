package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var managerGetCmd = &cobra.Command{
	Use:     "get",
	Aliases: []string{"g", "info"},
	Short:   "Show a town",
	PreRunE: validateRemoteFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(viper.GetString(townFlag)) == "" {
			return errMissingTown
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		t, err := newManager(ctx).GetTown(viper.GetString(townFlag))
		if err != nil {
			return err
		}

		w := csv.NewWriter(os.Stdout)
		defer w.Flush()

		if err := w.Write([]string{"id", "name", "public", "creator", "current", "maximum", "admins", "blockers"}); err != nil {
			return err
		}

		return w.Write([]string{
			t.ID,
			t.FriendlyName,
			fmt.Sprintf("%v", t.IsPubliclyListed),
			t.Creator,
			fmt.Sprintf("%v", t.CurrentOccupancy),
			fmt.Sprintf("%v", t.MaximumOccupancy),
			strings.Join(t.Admins, " "),
			strings.Join(t.Blockers, " "),
		})
	},
}

func init() {
	addRemoteFlags(managerGetCmd.PersistentFlags())
	managerGetCmd.PersistentFlags().String(townFlag, "", "ID of the town")

	viper.AutomaticEnv()

	managerCmd.AddCommand(managerGetCmd)
}
