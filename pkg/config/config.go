package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Handoff HandoffConfig `mapstructure:"handoff"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ChainConfig struct {
	RpcUrl     string `mapstructure:"rpc_url"`      // 广播节点 (RPC_URL)
	RpcUrlMeta string `mapstructure:"rpc_url_meta"` // 离线签名时只读的元数据节点 (RPC_URL_META)

	Confirmations          uint64        `mapstructure:"confirmations"`
	HighValueConfirmations uint64        `mapstructure:"high_value_confirmations"`
	HighValueThreshold     string        `mapstructure:"high_value_threshold"` // ether
	Timeout                time.Duration `mapstructure:"timeout"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
}

type WalletConfig struct {
	PrivateKey     string `mapstructure:"private_key"` // PRIVATE_KEY, 只放在内存里
	KeystorePath   string `mapstructure:"keystore_path"`
	Password       string `mapstructure:"password"` // Keystore 密码 (通常通过环境变量 WALLET_PASSWORD 传入)
	Mnemonic       string `mapstructure:"mnemonic"`
	DerivationPath string `mapstructure:"derivation_path"`
}

type HandoffConfig struct {
	MQType string      `mapstructure:"mq_type"` // "", "redis" or "kafka"
	Topic  string      `mapstructure:"topic"`
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

var Global Config

// 这些变量名沿用脚本时代的约定，不带前缀
var envBindings = map[string]string{
	"wallet.private_key":  "PRIVATE_KEY",
	"wallet.password":     "WALLET_PASSWORD",
	"wallet.mnemonic":     "MNEMONIC",
	"chain.rpc_url":       "RPC_URL",
	"chain.rpc_url_meta":  "RPC_URL_META",
	"metrics.pushgateway": "PUSHGATEWAY_URL",
}

// Init 加载配置到 Global
// cfgFile 为空时在 . 和 ./config 下查找 config.yaml; envFile 为空时尝试加载 ./.env
func Init(cfgFile, envFile string) error {
	cfg, err := Load(cfgFile, envFile)
	if err != nil {
		return err
	}
	Global = *cfg
	return nil
}

// Load 读取配置文件、.env 与环境变量，不修改 Global
func Load(cfgFile, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config") // name of config file (without extension)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// 环境变量设置
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// Config file not found; 只使用默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv(envFile string) error {
	if envFile == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		envFile = ".env"
	}
	// godotenv.Load 不会覆盖已存在的环境变量
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("加载 %s 失败: %w", envFile, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")

	v.SetDefault("chain.confirmations", 3)
	v.SetDefault("chain.high_value_confirmations", 6)
	v.SetDefault("chain.high_value_threshold", "1")
	v.SetDefault("chain.timeout", 5*time.Minute)
	v.SetDefault("chain.poll_interval", 4*time.Second)

	v.SetDefault("wallet.derivation_path", "m/44'/60'/0'/0/0")

	v.SetDefault("handoff.topic", "wallet_events_signed_tx")
	v.SetDefault("handoff.redis.addr", "localhost:6379")
	v.SetDefault("handoff.redis.db", 0)
	v.SetDefault("handoff.kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("metrics.job", "evm_transfer")
}
