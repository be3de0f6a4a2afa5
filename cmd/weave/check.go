package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/weave/internal/cli"
)

var checkCmd = &cobra.Command{
	Use:   "check <program.weave>...",
	Short: "Parse and lint programs without running them",
	Long: `Reports syntax errors with their position, then lints the program against the
configured host: unknown sensors and actions, unseeded parameters, empty loops.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		strict, _ := cmd.Flags().GetBool("strict")
		failed := 0
		for _, path := range args {
			if err := cli.Check(app, path, strict, cmd.OutOrStdout()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d programs failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("strict", false, "Treat lint issues as errors")
}
