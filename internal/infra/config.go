package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервера наблюдаемости.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Polling       PollingConfig       `mapstructure:"polling"`
	Throttle      ThrottleConfig      `mapstructure:"throttle"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig — отдельный listener для Prometheus.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig описывает встроенную базу (SQLite, WAL-режим).
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ElasticsearchConfig — внешнее хранилище логов, которое опрашивает поллер.
type ElasticsearchConfig struct {
	URL   string `mapstructure:"url"`
	Index string `mapstructure:"index"`
}

// PollingConfig управляет циклом опроса ошибок по сервисам.
type PollingConfig struct {
	IntervalMs     int    `mapstructure:"interval_ms"`
	ErrorThreshold int    `mapstructure:"error_threshold"`
	TimeWindow     string `mapstructure:"time_window"` // строка длительности для запроса ES ("5m")
	Services       string `mapstructure:"services"`    // comma-separated
}

// Interval переводит миллисекунды конфига в time.Duration.
func (p PollingConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// ServiceList разбирает MONITORED_SERVICES в список имен.
func (p PollingConfig) ServiceList() []string {
	out := make([]string, 0)
	for _, s := range strings.Split(p.Services, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ThrottleConfig — окно подавления повторных запусков анализа.
type ThrottleConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// AnalysisConfig — внешний скрипт-анализатор (subprocess).
type AnalysisConfig struct {
	Script  string        `mapstructure:"script"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotifyConfig — доставка HITL-ответа агенту по исходящему WebSocket.
type NotifyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig описывает подключение к Redis (опциональный L2 для троттлинга).
// Пустой Addr означает чисто локальный (L1) режим.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам для токенов операторов.
// Если ключи не заданы — сервер работает в открытом локальном режиме.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// Enabled сообщает, настроена ли проверка токенов.
func (a AuthConfig) Enabled() bool {
	return len(a.PublicKey) > 0
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_ADDR=:9000 перекроет server.addr
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Исторические имена переменных, под которые написаны hook-скрипты агентов.
	// Привязываем явно, чтобы они работали ровно так, как задокументированы.
	_ = v.BindEnv("elasticsearch.url", "ELASTICSEARCH_URL")
	_ = v.BindEnv("polling.interval_ms", "POLLING_INTERVAL_MS")
	_ = v.BindEnv("polling.error_threshold", "ERROR_THRESHOLD")
	_ = v.BindEnv("polling.time_window", "POLLING_TIME_WINDOW")
	_ = v.BindEnv("polling.services", "MONITORED_SERVICES")

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("storage.path", "pulse.db")
	v.SetDefault("elasticsearch.url", "http://localhost:9200")
	v.SetDefault("elasticsearch.index", "logs-*")
	v.SetDefault("polling.interval_ms", 60000)
	v.SetDefault("polling.error_threshold", 10)
	v.SetDefault("polling.time_window", "5m")
	v.SetDefault("polling.services", "")
	v.SetDefault("throttle.window", 5*time.Minute)
	v.SetDefault("analysis.script", "scripts/analyze_errors.py")
	v.SetDefault("analysis.timeout", 90*time.Second)
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// loadKeyResource — универсальный хелпер: ключ либо напрямую в ENV, либо файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
