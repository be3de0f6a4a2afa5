package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/weave/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run <program.weave>",
	Short: "Execute a program against a session, one tick at a time",
	Long: `Runs the program once per tick against the configured session and prints every
event. Without --ticks the loop runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.RunOptions{ProgramPath: args[0]}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Ticks, _ = cmd.Flags().GetInt("ticks")
		opts.Interval, _ = cmd.Flags().GetDuration("interval")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Report, _ = cmd.Flags().GetBool("report")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		if err := cli.Run(ctx, app, opts, cmd.OutOrStdout()); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			app.Logger.Info("interrupted", "signal", sig.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("session", "s", "", "Session ID (default session.id from config)")
	runCmd.Flags().IntP("ticks", "n", 1, "Number of ticks to run (0 runs until interrupted)")
	runCmd.Flags().Duration("interval", 0, "Pause between ticks")
	runCmd.Flags().Bool("fresh", false, "Delete the session before the first tick")
	runCmd.Flags().Bool("report", false, "Print a session report after the last tick")
	runCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner or events")
}
