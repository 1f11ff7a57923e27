package main

import (
	"os"

	"github.com/nextabc-lab/swap"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); nil != err {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "swapgate",
		Short: "SWAP wireless network gateway",
		Long: `swapgate drives a serial modem attached to a SWAP radio network,
keeps track of motes, registers and endpoints, and exposes them over MQTT
and an AT command console.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return swap.Run(func(ctx swap.Context) error {
				return serve(ctx, configFile)
			})
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", swap.DefaultConfName, "config file name or path")
	root.AddCommand(newCheckCommand(&configFile))
	root.AddCommand(newAtCommand())
	return root
}
