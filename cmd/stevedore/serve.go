package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevedore-dev/stevedore/pkg/server"
)

func serveCmd() *cobra.Command {
	config := server.DefaultConfig()
	logLevel := "info"

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(logLevel)
			server.Version = version
			srv, err := server.New(config)
			if err != nil {
				return err
			}
			return srv.Run()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config.Address, "addr", config.Address,
		"listen address")
	flags.StringVar(&config.RedirectAddress, "redirect-addr", "",
		"optional plain-HTTP listener redirecting to HTTPS")
	flags.StringVar(&config.APIURL, "apiurl", "",
		"controller WebSocket endpoint (required)")
	flags.StringVar(&config.APIVersion, "apiversion", config.APIVersion,
		"controller API version (rpc or legacy)")
	flags.StringVar(&config.StaticRoot, "static", "",
		"GUI static asset directory")
	flags.StringVar(&config.S3Bucket, "s3-bucket", "",
		"bucket holding published bundles")
	flags.StringVar(&config.S3Prefix, "s3-prefix", "",
		"key prefix for published bundles")
	flags.StringVar(&config.S3Region, "s3-region", "",
		"bundle bucket region")
	flags.StringVar(&config.AMQPURL, "amqp-url", "",
		"broker URL for deployment change events")
	flags.StringVar(&config.AMQPExchange, "amqp-exchange", config.AMQPExchange,
		"exchange for deployment change events")
	flags.StringVar(&logLevel, "log-level", logLevel,
		"log level (debug, info, warn, error)")
	cmd.MarkFlagRequired("apiurl")
	return cmd
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
}
