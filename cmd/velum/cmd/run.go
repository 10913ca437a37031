package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch and synchronize until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildSync()
		if err != nil {
			return err
		}

		if err := s.Start(); err != nil {
			return err
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		<-sigs

		s.RequestExit()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
