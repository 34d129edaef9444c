package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "matchctl",
		Short:         "ShelfMatch batch matching CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newMatchCommand())

	return rootCmd
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime)

	// .env is optional; real deployments configure via the environment
	_ = godotenv.Load()
}
