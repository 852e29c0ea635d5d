package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Zechen-Wang/covey.town/internal/authority"
	"github.com/Zechen-Wang/covey.town/pkg/coveymgr"
)

const (
	raddrFlag    = "raddr"
	townFlag     = "town"
	passwordFlag = "password"
	usernameFlag = "username"
)

var (
	errMissingTown     = errors.New("missing town")
	errMissingPassword = errors.New("missing password")
	errMissingUsername = errors.New("missing username")
)

var managerCmd = &cobra.Command{
	Use:     "manager",
	Aliases: []string{"mgr", "m"},
	Short:   "Manage towns on a town session authority",
}

func init() {
	viper.AutomaticEnv()

	rootCmd.AddCommand(managerCmd)
}

func addRemoteFlags(f *pflag.FlagSet) {
	f.String(raddrFlag, "http://localhost:8081/", "Remote address")
	f.String(masterPasswordFlag, "", "Master password of the server (can also be set using the MASTER_TOWN_PASSWORD env variable)")
}

func validateRemoteFlags(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}

	_, err := parsePlatformEnv()

	return err
}

func newManager(ctx context.Context) *coveymgr.Manager {
	return coveymgr.NewManager(
		viper.GetString(raddrFlag),
		viper.GetString(masterPasswordFlag),
		ctx,
	)
}

func writeListings(w *csv.Writer, listings []authority.TownListing) error {
	if err := w.Write([]string{"id", "name", "current", "maximum"}); err != nil {
		return err
	}

	for _, t := range listings {
		if err := w.Write([]string{t.ID, t.FriendlyName, fmt.Sprintf("%v", t.CurrentOccupancy), fmt.Sprintf("%v", t.MaximumOccupancy)}); err != nil {
			return err
		}
	}

	return nil
}
