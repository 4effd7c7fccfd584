package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	cfoidc "github.com/Strob0t/CloudLaunch/internal/adapter/oidc"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

var (
	launchFile  string
	launchToken string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch, inspect and move runs",
}

var runLaunchCmd = &cobra.Command{
	Use:   "launch -f request.json",
	Short: "Resolve a launch request and start the run",
	Long: `Resolves the request against its pipeline, tool and region
configuration, checks the caller's permissions from the ID token and starts
the run. The owner defaults to the token subject.`,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		var req run.LaunchRequest
		if err := readJSON(launchFile, &req); err != nil {
			return err
		}
		launches, az, err := a.launchService(cmd.Context())
		if err != nil {
			return err
		}
		id, err := az.Authenticate(cmd.Context(), launchToken)
		if err != nil {
			return err
		}
		if req.Owner == "" {
			req.Owner = id.Subject
		}
		ctx := cfoidc.ContextWithIdentity(cmd.Context(), id)
		r, err := launches.Launch(ctx, &req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	}),
}

var runGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a run with its restart links",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		r, err := a.runs.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	}),
}

var runStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Stop a run and its pod",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		return a.runs.Stop(cmd.Context(), id)
	}),
}

var runShiftCmd = &cobra.Command{
	Use:   "shift ID",
	Short: "Restart a run in another region of the same provider",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		r, err := a.shifts.RestartRunInAnotherRegion(cmd.Context(), id)
		if err != nil {
			return err
		}
		if r == nil {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "run %d was not moved\n", id)
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	}),
}

func init() {
	runLaunchCmd.Flags().StringVarP(&launchFile, "file", "f", "", "launch request JSON document (- for stdin)")
	runLaunchCmd.Flags().StringVar(&launchToken, "token", os.Getenv("CLOUDLAUNCH_TOKEN"), "OIDC ID token of the caller")
	_ = runLaunchCmd.MarkFlagRequired("file")

	runCmd.AddCommand(runLaunchCmd, runGetCmd, runStopCmd, runShiftCmd)
	rootCmd.AddCommand(runCmd)
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("run id %q: %w", s, err)
	}
	return id, nil
}
