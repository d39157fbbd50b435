package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite 配置测试套件.
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
}

type sinkConfig struct {
	Topic   string        `mapstructure:"topic"`
	Brokers []string      `mapstructure:"brokers"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// defaultedConfig 同时实现 Defaulter 与 Validatable.
type defaultedConfig struct {
	Topic    string `mapstructure:"topic"`
	Capacity int    `mapstructure:"capacity"`
}

func (c *defaultedConfig) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "default-topic"
	}
}

func (c *defaultedConfig) Validate() error {
	if c.Capacity < 0 {
		return errors.New("capacity 不能为负数")
	}
	return nil
}

func (s *ConfigTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.tempDir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *ConfigTestSuite) TestLoad_YAML() {
	path := s.writeFile("sink.yaml", `
topic: app-logs
brokers:
  - kafka-1:9092
  - kafka-2:9092
timeout: 3s
retries: 4
`)

	cfg, err := Load[sinkConfig](path)
	s.Require().NoError(err)
	s.Equal("app-logs", cfg.Topic)
	s.Equal([]string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	s.Equal(3*time.Second, cfg.Timeout)
	s.Equal(4, cfg.Retries)
}

func (s *ConfigTestSuite) TestLoad_FileNotFound() {
	_, err := Load[sinkConfig](filepath.Join(s.tempDir, "missing.yaml"))
	s.ErrorIs(err, ErrFileNotFound)
}

func (s *ConfigTestSuite) TestLoad_InvalidYAML() {
	path := s.writeFile("bad.yaml", `topic: [}`)

	_, err := Load[sinkConfig](path)
	s.ErrorIs(err, ErrReadConfig)
}

func (s *ConfigTestSuite) TestLoad_WithDefaults() {
	path := s.writeFile("partial.yaml", "topic: only-topic\n")

	cfg, err := Load[sinkConfig](path, WithDefaults(map[string]any{"retries": 7}))
	s.Require().NoError(err)
	s.Equal("only-topic", cfg.Topic)
	s.Equal(7, cfg.Retries)
}

func (s *ConfigTestSuite) TestLoad_EnvOverride() {
	path := s.writeFile("env.yaml", "topic: from-file\n")
	s.T().Setenv("KLTEST_TOPIC", "from-env")

	cfg, err := Load[sinkConfig](path, WithEnvPrefix("KLTEST"))
	s.Require().NoError(err)
	s.Equal("from-env", cfg.Topic)
}

func (s *ConfigTestSuite) TestLoad_WithoutEnv() {
	path := s.writeFile("noenv.yaml", "topic: from-file\n")
	s.T().Setenv("KLTEST_TOPIC", "from-env")

	cfg, err := Load[sinkConfig](path, WithEnvPrefix("KLTEST"), WithoutEnv())
	s.Require().NoError(err)
	s.Equal("from-file", cfg.Topic)
}

func (s *ConfigTestSuite) TestLoad_AppliesDefaultsBeforeValidation() {
	path := s.writeFile("defaulted.yaml", "capacity: 10\n")

	cfg, err := Load[defaultedConfig](path)
	s.Require().NoError(err)
	s.Equal("default-topic", cfg.Topic)
	s.Equal(10, cfg.Capacity)
}

func (s *ConfigTestSuite) TestLoad_ValidationFailure() {
	path := s.writeFile("invalid.yaml", "capacity: -1\n")

	_, err := Load[defaultedConfig](path)
	s.ErrorIs(err, ErrValidation)
}

func (s *ConfigTestSuite) TestMustLoad_Panic() {
	s.Panics(func() {
		MustLoad[sinkConfig](filepath.Join(s.tempDir, "missing.yaml"))
	})
}

func (s *ConfigTestSuite) TestLoadFromBytes_JSON() {
	data := []byte(`{"topic": "json-topic", "retries": 2}`)

	cfg, err := LoadFromBytes[sinkConfig](data, "json")
	s.Require().NoError(err)
	s.Equal("json-topic", cfg.Topic)
	s.Equal(2, cfg.Retries)
}

func (s *ConfigTestSuite) TestLoadFromBytes_InvalidJSON() {
	_, err := LoadFromBytes[sinkConfig]([]byte(`{"topic":`), "json")
	s.ErrorIs(err, ErrReadConfig)
}
