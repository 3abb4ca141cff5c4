package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that Dremio is reachable and the token is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rootOpts.openPlatform()
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			if err := p.PingDremio(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: connection %s\n", p.Toolkit().Connection())
			return err
		},
	}
}
