package main

import (
	"github.com/spf13/cobra"

	"rotmast/internal/config"
	"rotmast/internal/echo"
)

func newEchoCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Log UDP datagrams and answer them upper-cased",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.Echo.Listen = listen
			}
			if err := config.DefaultAndValidate(&a.cfg); err != nil {
				return err
			}
			srv, err := echo.Listen(cmd.Context(), a.cfg.Echo.Listen, a.logger())
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "UDP address to bind (default 127.0.0.1:7000)")
	return cmd
}
