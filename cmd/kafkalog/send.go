package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/forwarder"
	"github.com/Tsukikage7/kafkalog/logger"
)

var errNoRecord = errors.New("either --message or --json is required")

func newSendCmd(flags *globalFlags) *cobra.Command {
	var (
		message string
		raw     string
		level   string
		timeout time.Duration
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a single record and wait for the broker to confirm it",
		Example: `  kafkalog send --message "deploy finished" --level info
  kafkalog send --json '{"level":"error","message":"disk full"}'
  kafkalog send --dry-run --json '{"message":"preview"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := buildRecord(message, raw, level)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			fcfg := cfg.Forwarder
			fcfg.Delivery = forwarder.DeliveryConfirmed

			log, err := logger.NewLogger(&cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			opts := []forwarder.Option{forwarder.WithLogger(log)}

			var store *broker.LocalStore
			if dryRun {
				store = broker.NewLocalStore()
				opts = append(opts, forwarder.WithLocalStore(store))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			connErr := make(chan error, 1)
			opts = append(opts, forwarder.WithProducerError(func(err error) {
				select {
				case connErr <- err:
				default:
				}
				cancel()
			}))

			fw, err := forwarder.New(&fcfg, opts...)
			if err != nil {
				return err
			}

			sendErr := fw.SubmitSync(ctx, rec)
			closeErr := fw.Close(context.Background())

			select {
			case err := <-connErr:
				return err
			default:
			}
			if sendErr != nil {
				return sendErr
			}
			if closeErr != nil {
				return closeErr
			}

			if store != nil {
				for _, msg := range store.Messages(fw.Topic()) {
					fmt.Fprintln(cmd.OutOrStdout(), string(msg))
				}
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", fw.Topic())
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "record message")
	cmd.Flags().StringVar(&raw, "json", "", "record as a JSON object")
	cmd.Flags().StringVarP(&level, "level", "l", "info", "record level, used with --message")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time to wait for the broker")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "serialize into an in-memory store and print the payload")
	return cmd
}

func buildRecord(message, raw, level string) (forwarder.Record, error) {
	if raw != "" {
		var rec forwarder.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
		return rec, nil
	}
	if message == "" {
		return nil, errNoRecord
	}
	return forwarder.Record{"level": level, "message": message}, nil
}
