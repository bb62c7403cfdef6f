package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Env      string
		Port     string
		LogLevel string
		Timezone string
	}
	Telegram struct {
		Token       string
		ChannelID   int64
		ChannelLink string
		AdminIDs    []int64
		// LinkMessageTTL через сколько удалять сообщение со ссылкой на канал
		LinkMessageTTL time.Duration
	}
	Robokassa struct {
		MerchantLogin    string
		Password1        string
		Password2        string
		TestMode         bool
		PaymentURL       string
		RecurringURL     string
		RecurringTimeout time.Duration
	}
	Subscription struct {
		Price             float64
		Currency          string
		Description       string
		RenewalPeriodDays int
	}
	Schedule struct {
		ExpiryCron    string
		RecurringCron string
	}
	Database struct {
		URL         string
		ConnectWait time.Duration
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		CacheTTL time.Duration
	}
	Kafka struct {
		Brokers     []string
		Client      string
		TopicPrefix string
	}
	Auth struct {
		JWTSecret string
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("port", "8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("timezone", "Asia/Almaty")

	v.SetDefault("telegram_token", "")
	v.SetDefault("channel_id", 0)
	v.SetDefault("channel_link", "")
	v.SetDefault("admin_id", "")
	v.SetDefault("admin_ids", "")
	v.SetDefault("link_message_ttl_seconds", 300)

	v.SetDefault("robokassa_merchant_login", "")
	v.SetDefault("robokassa_password_1", "")
	v.SetDefault("robokassa_password_2", "")
	v.SetDefault("robokassa_test_mode", true)
	v.SetDefault("robokassa_base_url", "")
	v.SetDefault("robokassa_recurring_url", "")
	v.SetDefault("recurring_timeout_seconds", 20)

	v.SetDefault("subscription_price", 20000)
	v.SetDefault("subscription_currency", "KZT")
	v.SetDefault("subscription_description", "Подписка на закрытый канал")
	v.SetDefault("renewal_period_days", 30)

	v.SetDefault("expiry_check_cron", "0 12 * * *")
	v.SetDefault("recurring_charge_cron", "0 3 * * *")

	v.SetDefault("database_url", "")
	v.SetDefault("database_connect_wait_seconds", 30)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_cache_ttl_seconds", 300)

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_client", "kafka-go")
	v.SetDefault("kafka_topic_prefix", "paywall")

	v.SetDefault("admin_jwt_secret", "")
}

// LoadConfig загружает конфигурацию из переменных окружения.
// Файл envFile (обычно .env) подгружается, если существует.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{}
	cfg.App.Env = v.GetString("app_env")
	cfg.App.Port = v.GetString("port")
	cfg.App.LogLevel = v.GetString("log_level")
	cfg.App.Timezone = v.GetString("timezone")

	cfg.Telegram.Token = v.GetString("telegram_token")
	cfg.Telegram.ChannelID = v.GetInt64("channel_id")
	cfg.Telegram.ChannelLink = v.GetString("channel_link")
	cfg.Telegram.LinkMessageTTL = seconds(v, "link_message_ttl_seconds")

	admins, err := parseAdminIDs(v.GetString("admin_ids"), v.GetString("admin_id"))
	if err != nil {
		return nil, err
	}
	cfg.Telegram.AdminIDs = admins

	cfg.Robokassa.MerchantLogin = v.GetString("robokassa_merchant_login")
	cfg.Robokassa.Password1 = v.GetString("robokassa_password_1")
	cfg.Robokassa.Password2 = v.GetString("robokassa_password_2")
	cfg.Robokassa.TestMode = v.GetBool("robokassa_test_mode")
	cfg.Robokassa.PaymentURL = v.GetString("robokassa_base_url")
	cfg.Robokassa.RecurringURL = v.GetString("robokassa_recurring_url")
	cfg.Robokassa.RecurringTimeout = seconds(v, "recurring_timeout_seconds")

	cfg.Subscription.Price = v.GetFloat64("subscription_price")
	cfg.Subscription.Currency = v.GetString("subscription_currency")
	cfg.Subscription.Description = v.GetString("subscription_description")
	cfg.Subscription.RenewalPeriodDays = v.GetInt("renewal_period_days")
	if cfg.Subscription.RenewalPeriodDays <= 0 {
		cfg.Subscription.RenewalPeriodDays = 30
	}

	cfg.Schedule.ExpiryCron = v.GetString("expiry_check_cron")
	cfg.Schedule.RecurringCron = v.GetString("recurring_charge_cron")

	cfg.Database.URL = v.GetString("database_url")
	cfg.Database.ConnectWait = seconds(v, "database_connect_wait_seconds")

	cfg.Redis.Addr = v.GetString("redis_addr")
	cfg.Redis.Password = v.GetString("redis_password")
	cfg.Redis.DB = v.GetInt("redis_db")
	cfg.Redis.CacheTTL = seconds(v, "redis_cache_ttl_seconds")

	cfg.Kafka.Brokers = splitList(v.GetString("kafka_brokers"))
	cfg.Kafka.Client = strings.ToLower(v.GetString("kafka_client"))
	cfg.Kafka.TopicPrefix = v.GetString("kafka_topic_prefix")

	cfg.Auth.JWTSecret = v.GetString("admin_jwt_secret")

	return cfg, nil
}

// Validate проверяет обязательные параметры сервиса
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.Telegram.ChannelID == 0 {
		missing = append(missing, "CHANNEL_ID")
	}
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Robokassa.MerchantLogin == "" {
		missing = append(missing, "ROBOKASSA_MERCHANT_LOGIN")
	}
	if c.Robokassa.Password1 == "" {
		missing = append(missing, "ROBOKASSA_PASSWORD_1")
	}
	if c.Robokassa.Password2 == "" {
		missing = append(missing, "ROBOKASSA_PASSWORD_2")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Subscription.Price <= 0 {
		return fmt.Errorf("SUBSCRIPTION_PRICE must be positive, got %v", c.Subscription.Price)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location часовой пояс для расписания и отображения дат
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// RenewalPeriod длительность одного оплаченного периода
func (c *Config) RenewalPeriod() time.Duration {
	return time.Duration(c.Subscription.RenewalPeriodDays) * 24 * time.Hour
}

// IsProduction боевое окружение
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAdminIDs разбирает ADMIN_IDS и добавляет ADMIN_ID, без повторов
func parseAdminIDs(list, single string) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, raw := range append(splitList(list), splitList(single)...) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", raw, err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
