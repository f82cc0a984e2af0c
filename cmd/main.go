package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// @title                       water_timer API
// @version                     1.0
// @description                 Interval watering controller: status polling, schedule updates and the event log.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "water_timer",
		Short:        "Interval watering controller",
		Long:         `water_timer [--config=<file>] [serve|schedule]`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default configs/config.yml)")
	root.AddCommand(newServeCommand())
	root.AddCommand(newScheduleCommand())
	return root
}
