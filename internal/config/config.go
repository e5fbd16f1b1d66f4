// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   StorageConfig   `mapstructure:"storage"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Brain     BrainConfig     `mapstructure:"brain"`
	RAG       RAGConfig       `mapstructure:"rag"`
	APIKeys   []string        `mapstructure:"api_keys"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// StorageConfig 选择持久化后端。backend 取值 "minio" 或 "local"，
// local 后端把所有工件写到 base_path 下，便于本地开发与测试。
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	BasePath string `mapstructure:"base_path"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ChunkingConfig 存储文本分块的默认设置。
type ChunkingConfig struct {
	ChunkSize     int    `mapstructure:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap"`
	Separator     string `mapstructure:"separator"`
	Strategy      string `mapstructure:"strategy"`
	AutoThreshold int    `mapstructure:"auto_threshold"`
}

// BrainConfig 存储新建 Brain 时使用的默认生成配置。
type BrainConfig struct {
	LLMModelName string  `mapstructure:"llm_model_name"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

// RAGConfig 存储检索增强生成相关的配置。
type RAGConfig struct {
	TopK int `mapstructure:"top_k"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	Conf = Config{}
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	// 0 是合法的重叠值，默认值只在键未配置时生效
	viper.SetDefault("chunking.chunk_overlap", 200)

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未显式配置的关键项填充默认值。
func applyDefaults() {
	if Conf.Chunking.ChunkSize <= 0 {
		Conf.Chunking.ChunkSize = 1000
	}
	if Conf.Chunking.ChunkOverlap < 0 {
		Conf.Chunking.ChunkOverlap = 0
	}
	if Conf.Chunking.Separator == "" {
		Conf.Chunking.Separator = "\n"
	}
	if Conf.Chunking.Strategy == "" {
		Conf.Chunking.Strategy = "auto"
	}
	if Conf.Chunking.AutoThreshold <= 0 {
		Conf.Chunking.AutoThreshold = 100000
	}
	if Conf.Brain.LLMModelName == "" {
		Conf.Brain.LLMModelName = "gpt-4o"
	}
	if Conf.Brain.MaxTokens <= 0 {
		Conf.Brain.MaxTokens = 1000
	}
	if Conf.RAG.TopK <= 0 {
		Conf.RAG.TopK = 5
	}
	if Conf.Storage.Backend == "" {
		Conf.Storage.Backend = "minio"
	}
	if Conf.Storage.BasePath == "" {
		Conf.Storage.BasePath = "./data"
	}
}
