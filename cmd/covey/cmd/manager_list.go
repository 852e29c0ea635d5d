package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Zechen-Wang/covey.town/internal/authority"
)

const (
	allFlag = "all"
)

var (
	errMissingMasterPassword = errors.New("missing master password")
)

var managerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"lis", "l", "ls"},
	Short:   "List public towns, or all towns with the master password",
	PreRunE: validateRemoteFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		all := viper.GetBool(allFlag)
		if all && strings.TrimSpace(viper.GetString(masterPasswordFlag)) == "" {
			return errMissingMasterPassword
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		manager := newManager(ctx)

		var (
			listings []authority.TownListing
			err      error
		)
		if all {
			listings, err = manager.ListTowns()
		} else {
			listings, err = manager.ListPublicTowns()
		}
		if err != nil {
			return err
		}

		w := csv.NewWriter(os.Stdout)
		defer w.Flush()

		return writeListings(w, listings)
	},
}

func init() {
	addRemoteFlags(managerListCmd.PersistentFlags())
	managerListCmd.PersistentFlags().Bool(allFlag, false, "Include private towns (requires the master password)")

	viper.AutomaticEnv()

	managerCmd.AddCommand(managerListCmd)
}
