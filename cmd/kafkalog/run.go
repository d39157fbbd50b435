package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Tsukikage7/kafkalog/forwarder"
	"github.com/Tsukikage7/kafkalog/logger"
	"github.com/Tsukikage7/kafkalog/relay"
	"github.com/Tsukikage7/kafkalog/server"
	"github.com/Tsukikage7/kafkalog/tracing"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		addr   string
		stdin  bool
		noHTTP bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the forwarding daemon",
		Example: `  kafkalog run --config kafkalog.yaml
  tail -F app.log | kafkalog run --stdin --no-http`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if stdin {
				cfg.Stdin.Enabled = true
				cfg.Stdin.StopOnEOF = cfg.Stdin.StopOnEOF || noHTTP
			}
			if noHTTP {
				cfg.HTTP.Disabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runDaemon(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", relay.DefaultAddr, "HTTP listen address")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read newline-delimited records from standard input")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "disable the HTTP intake")
	return cmd
}

// runDaemon 组装转发器与接入端并阻塞运行，直到收到信号或输入结束.
func runDaemon(cmd *cobra.Command, cfg *relay.Config) error {
	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}

	tp, err := tracing.NewProvider(&cfg.Tracing, "kafkalog", version)
	if err != nil {
		return err
	}

	var fw *forwarder.Forwarder
	app := server.NewApp(
		server.WithName("kafkalog"),
		server.WithVersion(version),
		server.WithLogger(log),
		server.WithGracefulTimeout(cfg.GracefulTimeout),
		server.WithCleanup("forwarder", func(ctx context.Context) error {
			return fw.Close(ctx)
		}, 0),
		server.WithCleanup("tracing", tp.Shutdown, 5),
		server.WithCleanup("logger", func(context.Context) error {
			_ = log.Sync()
			return nil
		}, 10),
	)

	opts := []forwarder.Option{
		forwarder.WithLogger(log),
		forwarder.WithProducerError(func(err error) {
			log.Errorf("[Relay] 生产者不可用，停止服务: %v", err)
			app.Stop()
		}),
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, forwarder.WithTracing("kafkalog"))
	}

	fw, err = forwarder.New(&cfg.Forwarder, opts...)
	if err != nil {
		return err
	}

	if !cfg.HTTP.Disabled {
		handler := relay.NewHandler(fw,
			relay.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
			relay.WithHandlerLogger(log),
			relay.WithMetrics(fw.Collector()),
		)
		srv, err := server.NewHTTP(handler,
			server.WithHTTPAddr(cfg.HTTP.Addr),
			server.WithHTTPLogger(log),
		)
		if err != nil {
			return err
		}
		app.Use(srv)
	}

	if cfg.Stdin.Enabled {
		srcOpts := []relay.SourceOption{
			relay.WithMaxLineBytes(cfg.Stdin.MaxLineBytes),
			relay.WithSourceLogger(log),
		}
		if cfg.Stdin.StopOnEOF {
			srcOpts = append(srcOpts, relay.WithOnEOF(app.Stop))
		}
		app.Use(relay.NewLineSource(cmd.InOrStdin(), fw, srcOpts...))
	}

	return app.Run()
}
