package main

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nextabc-lab/swap"
	"github.com/nextabc-lab/swap/bridge"
	"github.com/nextabc-lab/swap/gateway"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// check 检查配置文件和设备描述
func newCheckCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and device profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := swap.LoadConfigByName(*configFile)
			if nil != err {
				return err
			}
			profiles, err := gateway.LoadProfiles(devicesOf(config))
			if nil != err {
				return errors.WithMessage(err, "device profiles")
			}
			consoleOpts := bridge.ParseServerOptions(sectionOf(config, "ConsoleOptions"))
			fmt.Fprintf(cmd.OutOrStdout(), "profiles: %d\n", profiles.Len())
			fmt.Fprintf(cmd.OutOrStdout(), "console: %s\n", strings.Join(consoleOpts.Addresses, ", "))
			return nil
		},
	}
}

// at 向运行中的网关控制台发送一条AT指令
func newAtCommand() *cobra.Command {
	var address string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:     "at COMMAND",
		Short:   "Send one AT command to a running gateway console",
		Example: "  swapgate at AT+CMD=5,11,0102 --address 127.0.0.1:5555",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := net.DialTimeout("tcp", address, timeout)
			if nil != err {
				return errors.WithMessage(err, "dial console")
			}
			defer conn.Close()
			if err := conn.SetDeadline(time.Now().Add(timeout)); nil != err {
				return err
			}
			if _, err := fmt.Fprintf(conn, "%s\r\n", args[0]); nil != err {
				return err
			}
			reply, err := bufio.NewReader(conn).ReadString('\n')
			if nil != err {
				return errors.WithMessage(err, "read reply")
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(reply))
			return nil
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "127.0.0.1:5555", "console address")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second*10, "reply timeout")
	return cmd
}
