package main

import (
	"encoding/json"
	"fmt"
	"strings"

	internalhttp "github.com/2026musik-code/autoscrip/internal/api/http"
	"github.com/2026musik-code/autoscrip/internal/auth"
	grpcserver "github.com/2026musik-code/autoscrip/internal/grpc/server"
	"github.com/2026musik-code/autoscrip/internal/hostops"
	"github.com/2026musik-code/autoscrip/internal/provisioning"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/2026musik-code/autoscrip/internal/sweeper"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log          LogConfig
	Http         internalhttp.Config
	Auth         auth.Config
	Grpc         grpcserver.Config
	Store        store.Config
	Crypto       CryptoConfig
	SSH          remote.Config
	Provisioning provisioning.Config
	Sweeper      sweeper.Config
	Hostops      hostops.Config
}

type CryptoConfig struct {
	Secret string `mapstructure:"secret"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/autoscrip-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("crypto.secret", "CRYPTO_SECRET")
	_ = viper.BindEnv("http.admin_api_key", "ADMIN_API_KEY")
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("store.postgres_url", "DATABASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(redacted(config), "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

func redacted(c Config) Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Http.AdminAPIKey = mask(c.Http.AdminAPIKey)
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Crypto.Secret = mask(c.Crypto.Secret)
	if c.Store.PostgresURL != "" {
		c.Store.PostgresURL = redactURL(c.Store.PostgresURL)
	}
	return c
}

// redactURL hides the password part of a connection URL.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "********"
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}
	user, _, _ := strings.Cut(userinfo, ":")
	return scheme + "://" + user + ":********@" + host
}
