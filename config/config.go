package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	LockLocal = "local"
	LockEtcd  = "etcd"
	LockRedis = "redis"

	envPrefix = "PLANNINGPOKER"
)

type Config struct {
	App     AppSettings   `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Lock    LockConfig    `mapstructure:"lock"`
	ETCD    ETCDConfig    `mapstructure:"etcd"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

type AppSettings struct {
	// development 或 production，决定日志格式
	Mode string `mapstructure:"mode"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MySQLConfig struct {
	Master          string        `mapstructure:"master"`
	Slave           string        `mapstructure:"slave"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// 数据缓存Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
	Workers int      `mapstructure:"workers"`
}

type LockConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type ETCDConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type GraphQLConfig struct {
	Path       string `mapstructure:"path"`
	Playground bool   `mapstructure:"playground"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

var AppConfig Config

// setDefaults 设置全部默认值，环境变量覆盖依赖这些键已注册
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.mode", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", StorageMemory)

	v.SetDefault("mysql.master", "")
	v.SetDefault("mysql.slave", "")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.data_address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.timeout", 3*time.Second)
	v.SetDefault("redis.cache_ttl", time.Minute)
	v.SetDefault("redis.lock_addresses", []string{})

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "planningpoker.poll-events")
	v.SetDefault("kafka.group_id", "planningpoker")
	v.SetDefault("kafka.workers", 4)

	v.SetDefault("lock.driver", LockLocal)
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.retry_count", 50)
	v.SetDefault("lock.retry_interval", 100*time.Millisecond)

	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", 5*time.Second)

	v.SetDefault("graphql.path", "/graphql")
	v.SetDefault("graphql.playground", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", 5*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
}

// LoadConfig 加载配置文件，configPath为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &AppConfig, nil
}

// Validate 校验配置之间的依赖关系
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret 不能为空")
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageMySQL:
		if c.MySQL.Master == "" {
			return fmt.Errorf("storage.driver=mysql 时 mysql.master 不能为空")
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}

	switch c.Lock.Driver {
	case LockLocal, "":
	case LockEtcd:
		if len(c.ETCD.Endpoints) == 0 {
			return fmt.Errorf("lock.driver=etcd 时 etcd.endpoints 不能为空")
		}
	case LockRedis:
		if len(c.Redis.LockAddresses) == 0 {
			return fmt.Errorf("lock.driver=redis 时 redis.lock_addresses 不能为空")
		}
	default:
		return fmt.Errorf("未知的锁驱动: %s", c.Lock.Driver)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.enabled=true 时 brokers 和 topic 不能为空")
	}

	return nil
}
