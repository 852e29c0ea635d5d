package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	api "github.com/Zechen-Wang/covey.town/internal/api/websocket"
)

var managerJoinCmd = &cobra.Command{
	Use:     "join",
	Aliases: []string{"j"},
	Short:   "Join a town and print its events until it is closed",
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

		session, err := newManager(ctx).Join(viper.GetString(townFlag), viper.GetString(usernameFlag))
		if err != nil {
			return err
		}
		addInterruptHandler(cancel, session, nil)

		w := csv.NewWriter(os.Stdout)
		defer w.Flush()

		if err := w.Write([]string{"event", "town", "detail"}); err != nil {
			return err
		}
		w.Flush()

		for event := range session.Events {
			var row []string
			switch e := event.(type) {
			case *api.Welcome:
				row = []string{e.Type, e.Town, e.SessionID}
			case *api.Occupancy:
				row = []string{e.Type, e.Town, fmt.Sprintf("%v/%v", e.Current, e.Maximum)}
			case *api.Kick:
				row = []string{e.Type, e.Town, ""}
			default:
				continue
			}

			if err := w.Write(row); err != nil {
				return err
			}
			w.Flush()
		}

		if err := session.Err(); err != nil {
			return err
		}

		log.Debug().Msg("Session ended")

		return nil
	},
}

func init() {
	addRemoteFlags(managerJoinCmd.PersistentFlags())
	managerJoinCmd.PersistentFlags().String(townFlag, "", "ID of the town")
	managerJoinCmd.PersistentFlags().String(usernameFlag, "", "Username to join as")

	viper.AutomaticEnv()

	managerCmd.AddCommand(managerJoinCmd)
}
