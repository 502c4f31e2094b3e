// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewCommand returns the greenhttp root command.
func NewCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "greenhttp",
		Short:         "Serve handlers which make suspending HTTP calls on a single event loop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.AddCommand(newServeCommand(stdout))
	return root
}

func newServeCommand(stdout io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := New(ctx, cfg, Stdout(stdout))
			if err != nil {
				return err
			}

			err = svc.Run(ctx)
			if err != nil {
				return errors.Wrap(err, "service stopped unexpectedly")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}
