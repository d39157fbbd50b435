// Command kafkalog 日志转发守护进程.
//
// 通过 HTTP（POST /logs）或标准输入接收 JSON 日志，转发到 Kafka 或 RabbitMQ.
//
//	kafkalog run --config kafkalog.yaml
//	tail -F app.log | kafkalog run --stdin --no-http
//	kafkalog send --json '{"level":"error","message":"disk full"}'
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
