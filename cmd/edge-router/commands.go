package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/edge-router/config"
	"github.com/angeloszaimis/edge-router/internal/route"
	"github.com/angeloszaimis/edge-router/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var (
		cfgFile          string
		hostnameFallback bool
	)

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			slog.Error("failed to load config", slog.Any("err", err))
			return err
		}
		if hostnameFallback {
			cfg.Logging.HostnameFallback = true
		}

		log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return run(ctx, cfg, log)
	}

	root := &cobra.Command{
		Use:   "edge-router",
		Short: "Edge request router for the demo application",
		Long: `edge-router answers static asset requests from an in-memory table,
rejects non GET/HEAD methods, and forwards /api/ requests and websocket
upgrades to the edge_app backend.

Configuration is read from config.yaml in ./config or the working directory.
Environment variables override file values, e.g. BACKEND_URL=http://app:8081.`,
		SilenceUsage: true,
		RunE:         serve,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config/config.yaml or ./config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the public and admin listeners",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}

	for _, cmd := range []*cobra.Command{root, serveCmd} {
		cmd.Flags().BoolVar(&hostnameFallback, "hostname-fallback", false,
			"use the machine hostname when the log source variable is unset")
	}

	root.AddCommand(
		serveCmd,
		newRoutesCmd(&cfgFile),
		newClassifyCmd(),
	)

	return root
}

func newRoutesCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the asset table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			table, err := loadTable(cfg.Assets)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tCONTENT TYPE\tBYTES")
			for _, e := range table.Entries() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Path, e.ContentType, len(e.Payload))
			}
			return tw.Flush()
		},
	}
}

func newClassifyCmd() *cobra.Command {
	var upgrade string

	cmd := &cobra.Command{
		Use:   "classify METHOD PATH",
		Short: "Show which dispatch class a request falls into",
		Example: `  edge-router classify GET /main.css
  edge-router classify POST /api/rooms/
  edge-router classify GET /?session=abc --upgrade websocket`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.ParseRequestURI(args[1])
			if err != nil {
				return fmt.Errorf("invalid path %q: %w", args[1], err)
			}

			req := route.Request{
				Method: args[0],
				Path:   u.EscapedPath(),
				Header: http.Header{},
				Query:  u.Query(),
			}
			if upgrade != "" {
				req.Header.Set("Upgrade", upgrade)
			}

			class := route.Classify(req)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, class.Kind)
			if class.Kind == route.KindAssetServe {
				fmt.Fprintf(out, "asset key: %s\n", class.AssetKey)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&upgrade, "upgrade", "", "value of the Upgrade request header")

	return cmd
}
