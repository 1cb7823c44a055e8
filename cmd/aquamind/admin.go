package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/smith3v/aquamind/pkg/config"
	"github.com/smith3v/aquamind/pkg/gateway"
	"github.com/smith3v/aquamind/pkg/inbox"
	"github.com/smith3v/aquamind/pkg/phone"
	"github.com/smith3v/aquamind/pkg/store"
	"github.com/spf13/cobra"
)

var registration store.Registration

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.registry.Register(cmd.Context(), registration)
		if err != nil && !store.IsPersistence(err) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), inbox.WelcomeText(rec))
		return err
	},
}

var resetIntake bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new reminder cycle for every user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.engine.ResetCycle(cmd.Context()); err != nil {
			return err
		}
		if resetIntake {
			return a.engine.ResetIntake(cmd.Context())
		}
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary [username...]",
	Short: "Send the daily summary to users who completed the cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		usernames := args
		if len(usernames) == 0 {
			users, err := a.registry.Users(ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				usernames = append(usernames, u.Username)
			}
		}
		var errs []error
		for _, username := range usernames {
			sent, err := a.engine.SendSummary(ctx, username)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", username, err))
				continue
			}
			if sent {
				fmt.Fprintf(cmd.OutOrStdout(), "summary sent to %s\n", username)
			}
		}
		return errors.Join(errs...)
	},
}

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage the gateway team",
}

var teamCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create the team on the gateway",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := teamName(args)
		err := newGatewayClient().AddTeam(cmd.Context(), name)
		if errors.Is(err, gateway.ErrTeamExists) {
			fmt.Fprintf(cmd.OutOrStdout(), "team %s already exists\n", name)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "team %s created\n", name)
		return nil
	},
}

var teamRegisterTeam string

var teamRegisterCmd = &cobra.Command{
	Use:   "register <phone>",
	Short: "Register a phone number with the team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := teamRegisterTeam
		if name == "" {
			name = teamName(nil)
		}
		if err := newGatewayClient().RegisterNumber(cmd.Context(), args[0], name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s with team %s\n", phone.Normalize(args[0]), name)
		return nil
	},
}

func init() {
	f := registerCmd.Flags()
	f.StringVar(&registration.Username, "username", "", "username")
	f.StringVar(&registration.PhoneNumber, "phone", "", "phone number, starting with 49")
	f.StringVar(&registration.Gender, "gender", "", "male or female")
	f.IntVar(&registration.Age, "age", 0, "age in years")
	f.Float64Var(&registration.Weight, "weight", 0, "weight in kilograms")
	for _, name := range []string{"username", "phone", "gender", "age", "weight"} {
		_ = registerCmd.MarkFlagRequired(name)
	}

	resetCmd.Flags().BoolVar(&resetIntake, "intake", false, "also reset water intake")

	teamRegisterCmd.Flags().StringVar(&teamRegisterTeam, "team", "", "team name (defaults to team_name)")
	teamCmd.AddCommand(teamCreateCmd, teamRegisterCmd)
}

func teamName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.AppConfig.TeamName
}

func newGatewayClient() *gateway.Client {
	cfg := config.AppConfig.Gateway
	return gateway.NewClient(cfg.BaseURL,
		gateway.WithSender(cfg.Sender),
		gateway.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
	)
}
