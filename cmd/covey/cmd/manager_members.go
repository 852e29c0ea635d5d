package cmd

import (
	"context"
	"encoding/csv"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Zechen-Wang/covey.town/pkg/coveymgr"
)

var managerMembersCmd = &cobra.Command{
	Use:     "members",
	Aliases: []string{"mem"},
	Short:   "List the admins and blockers of a town",
	PreRunE: validateRemoteFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(viper.GetString(townFlag)) == "" {
			return errMissingTown
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		membership, err := newManager(ctx).ListMembership(viper.GetString(townFlag))
		if err != nil {
			return err
		}

		w := csv.NewWriter(os.Stdout)
		defer w.Flush()

		if err := w.Write([]string{"role", "username"}); err != nil {
			return err
		}

		for _, username := range membership.Admins {
			if err := w.Write([]string{"admin", username}); err != nil {
				return err
			}
		}

		for _, username := range membership.Blockers {
			if err := w.Write([]string{"blocker", username}); err != nil {
				return err
			}
		}

		return nil
	},
}

var (
	managerAdminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Manage the admins of a town",
	}
	managerBlockerCmd = &cobra.Command{
		Use:     "blocker",
		Aliases: []string{"block"},
		Short:   "Manage the users blocked from a town",
	}
)

// membershipCmd builds an add or rm subcommand for one membership set
func membershipCmd(use string, aliases []string, short string, update func(m *coveymgr.Manager, town, username, password string) error) *cobra.Command {
	c := &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   short,
		PreRunE: validateRemoteFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(viper.GetString(townFlag)) == "" {
				return errMissingTown
			}

			if strings.TrimSpace(viper.GetString(usernameFlag)) == "" {
				return errMissingUsername
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			return update(newManager(ctx), viper.GetString(townFlag), viper.GetString(usernameFlag), viper.GetString(passwordFlag))
		},
	}

	addRemoteFlags(c.PersistentFlags())
	c.PersistentFlags().String(townFlag, "", "ID of the town")
	c.PersistentFlags().String(usernameFlag, "", "Username to add or remove")
	c.PersistentFlags().String(passwordFlag, "", "Update password of the town, if the server requires one for membership changes")

	return c
}

func init() {
	addRemoteFlags(managerMembersCmd.PersistentFlags())
	managerMembersCmd.PersistentFlags().String(townFlag, "", "ID of the town")

	managerAdminCmd.AddCommand(
		membershipCmd("add", []string{"a"}, "Make a user an admin of a town", (*coveymgr.Manager).AddAdmin),
		membershipCmd("rm", []string{"remove", "r"}, "Remove a user from the admins of a town", (*coveymgr.Manager).RemoveAdmin),
	)

	managerBlockerCmd.AddCommand(
		membershipCmd("add", []string{"a"}, "Block a user from joining a town", (*coveymgr.Manager).AddBlocker),
		membershipCmd("rm", []string{"remove", "r"}, "Unblock a user", (*coveymgr.Manager).RemoveBlocker),
	)

	viper.AutomaticEnv()

	managerCmd.AddCommand(managerMembersCmd, managerAdminCmd, managerBlockerCmd)
}
