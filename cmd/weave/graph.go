package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/weave/internal/cli"
)

var graphCmd = &cobra.Command{
	Use:   "graph <program.weave>",
	Short: "Print a Mermaid flowchart of a program",
	Long:  `Generates a Mermaid graph of sensors, parameters, tensions and actions. With --session the stored model values are overlaid.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		return cli.Graph(cmd.Context(), app, args[0], sessionID, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Overlay the state of this session")
}
