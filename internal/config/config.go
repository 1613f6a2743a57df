// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ストアの種別
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// 設定キー。環境変数名は大文字にしたもの（例: database_url → DATABASE_URL）。
const (
	KeyConfigFile          = "config"
	KeyStoreDriver         = "store_driver"
	KeyDatabaseURL         = "database_url"
	KeyTokenSecret         = "token_secret"
	KeyTokenTTL            = "token_ttl"
	KeyTokenIssuer         = "token_issuer"
	KeyBcryptCost          = "bcrypt_cost"
	KeyServerPort          = "server_port"
	KeyCORSAllowedOrigin   = "cors_allowed_origin"
	KeyRateLimitGeneral    = "rate_limit_general"
	KeyRateLimitCredential = "rate_limit_credential"
	KeyLogLevel            = "log_level"
)

// デフォルト値
const (
	defaultStoreDriver         = StoreDriverPostgres
	defaultTokenTTL            = 2 * time.Hour
	defaultTokenIssuer         = "deepthoughts"
	defaultBcryptCost          = 10
	defaultServerPort          = "8080"
	defaultCORSAllowedOrigin   = "http://localhost:3000"
	defaultRateLimitGeneral    = 120
	defaultRateLimitCredential = 10
	defaultLogLevel            = "info"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver string
	DatabaseURL string

	// Token
	TokenSecret string
	TokenTTL    time.Duration
	TokenIssuer string
	BcryptCost  int

	// Rate Limit（req/min）
	RateLimitGeneral    int
	RateLimitCredential int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS（カンマ区切りで複数オリジンを指定可）
	CORSAllowedOrigin string
}

// NewViper はデフォルト値と環境変数を設定したviper.Viperを生成する。
// 優先順位はフラグ > 環境変数 > 設定ファイル > デフォルト値。
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyStoreDriver, defaultStoreDriver)
	v.SetDefault(KeyTokenTTL, defaultTokenTTL)
	v.SetDefault(KeyTokenIssuer, defaultTokenIssuer)
	v.SetDefault(KeyBcryptCost, defaultBcryptCost)
	v.SetDefault(KeyServerPort, defaultServerPort)
	v.SetDefault(KeyCORSAllowedOrigin, defaultCORSAllowedOrigin)
	v.SetDefault(KeyRateLimitGeneral, defaultRateLimitGeneral)
	v.SetDefault(KeyRateLimitCredential, defaultRateLimitCredential)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.AutomaticEnv()
	return v
}

// Load はviperからConfigを読み込む。
// configキーに設定ファイルが指定されている場合は先に読み込む。
// 必須の設定が未設定の場合はエラーを返す。
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		StoreDriver:         strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreDriver))),
		DatabaseURL:         v.GetString(KeyDatabaseURL),
		TokenSecret:         v.GetString(KeyTokenSecret),
		TokenTTL:            durationOr(v.GetDuration(KeyTokenTTL), defaultTokenTTL),
		TokenIssuer:         stringOr(v.GetString(KeyTokenIssuer), defaultTokenIssuer),
		BcryptCost:          intOr(v.GetInt(KeyBcryptCost), defaultBcryptCost),
		RateLimitGeneral:    intOr(v.GetInt(KeyRateLimitGeneral), defaultRateLimitGeneral),
		RateLimitCredential: intOr(v.GetInt(KeyRateLimitCredential), defaultRateLimitCredential),
		LogLevel:            stringOr(v.GetString(KeyLogLevel), defaultLogLevel),
		ServerPort:          stringOr(v.GetString(KeyServerPort), defaultServerPort),
		CORSAllowedOrigin:   stringOr(v.GetString(KeyCORSAllowedOrigin), defaultCORSAllowedOrigin),
	}

	var missing []string
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required settings are not set: %v", missing)
	}

	return cfg, nil
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// intOr は解析できない値や0以下の値をデフォルト値に置き換える。
func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
