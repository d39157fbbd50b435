package main

import (
	"github.com/spf13/cobra"

	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/config"
	"github.com/Tsukikage7/kafkalog/forwarder"
	"github.com/Tsukikage7/kafkalog/relay"
)

var version = "dev"

// globalFlags 所有子命令共享的参数.
type globalFlags struct {
	configFile string
	envPrefix  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "kafkalog",
		Short: "Forward structured logs to Kafka",
		Long: `kafkalog relays JSON log records to a message broker.

Records arrive over HTTP (POST /logs) or standard input and are delivered
to Kafka (sarama or franz-go) or RabbitMQ. Records submitted before the
broker connection is ready are buffered and sent once it is.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&flags.envPrefix, "env-prefix", relay.DefaultEnvPrefix, "environment variable prefix")

	root.AddCommand(newRunCmd(flags), newCheckCmd(flags), newSendCmd(flags))
	return root
}

// envDefaults 预先登记的配置键，未出现在配置文件中的键也能被环境变量覆盖.
func envDefaults() map[string]any {
	return map[string]any{
		"forwarder.topic":                    forwarder.DefaultTopic,
		"forwarder.delivery":                 string(forwarder.DeliveryAccepted),
		"forwarder.broker.driver":            broker.DriverKafka,
		"forwarder.broker.kafka.brokers":     []string{broker.DefaultBroker},
		"forwarder.broker.kafka.client_id":   broker.DefaultClientID,
		"forwarder.broker.rabbitmq.url":      "",
		"forwarder.broker.rabbitmq.exchange": "",
		"log.level":                          "info",
		"http.addr":                          relay.DefaultAddr,
		"stdin.enabled":                      false,
	}
}

// loadConfig 加载守护进程配置. 未指定文件时只使用默认值与环境变量.
func loadConfig(flags *globalFlags) (*relay.Config, error) {
	opts := []config.Option{
		config.WithEnvPrefix(flags.envPrefix),
		config.WithDefaults(envDefaults()),
	}
	if flags.configFile == "" {
		return config.LoadFromBytes[relay.Config]([]byte("{}"), "yaml", opts...)
	}
	return config.Load[relay.Config](flags.configFile, opts...)
}
