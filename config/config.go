// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configPath = pflag.String("config", ".", "Directory that holds config.toml")

	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validStorageTypes = []string{"local", "s3", "r2"}
	validDBDrivers    = []string{"sqlite", "postgres"}
)

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	if !pflag.Parsed() {
		pflag.Parse()
	}
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(*configPath)

	v.AutomaticEnv()

	bindEnvs()
	SetDefaults()

	// The config file is optional, every key can also come from the environment
	if err := v.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if v.GetString("jwt.secret") == "" {
		secret := genSecret()
		v.Set("jwt.secret", secret)

		fmt.Println("[WARNING]: You haven't set a JWT secret, so one has been generated for this run only. Every token will be invalid after a restart.\nSet jwt_secret in the environment or config.toml, for example:\n\n" + genSecret())
	}

	if !v.GetBool("cloudflare.turnstile.enabled") {
		fmt.Println("[WARNING]: Cloudflare's turnstile is disabled. Register and login won't be guarded against bots")
	}

	if err := Validate(); err != nil {
		return err
	}

	// MiB -> bytes
	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}

func bindEnvs() {
	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.cors", "host_cors")

	v.BindEnv("host.ssl.enabled", "host_ssl_enabled")
	v.BindEnv("host.ssl.certificate_path", "host_ssl_certificate_path")
	v.BindEnv("host.ssl.certificate_key_path", "host_ssl_certificate_key_path")

	v.BindEnv("jwt.secret", "jwt_secret")

	v.BindEnv("db.driver", "db_driver")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("storage.type", "storage_type")
	v.BindEnv("storage.local_path", "storage_local_path")
	v.BindEnv("storage.bucket", "storage_bucket")
	v.BindEnv("storage.region", "storage_region")
	v.BindEnv("storage.endpoint", "storage_endpoint")
	v.BindEnv("storage.access_key_id", "storage_access_key_id")
	v.BindEnv("storage.secret_access_key", "storage_secret_access_key")
	v.BindEnv("storage.path_style", "storage_path_style")
	v.BindEnv("storage.public_url", "storage_public_url")
	v.BindEnv("storage.cleanup_interval", "storage_cleanup_interval")
	v.BindEnv("storage.cleanup_grace", "storage_cleanup_grace")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.allowed_types", "upload_allowed_types")

	v.BindEnv("cloudflare.account_id", "cloudflare_account_id")
	v.BindEnv("cloudflare.turnstile.enabled", "cloudflare_turnstile_enabled")
	v.BindEnv("cloudflare.turnstile.secret_token", "cloudflare_turnstile_secret_token")

	v.BindEnv("admin.id", "admin_id")
	v.BindEnv("admin.password", "admin_password")
	v.BindEnv("admin.email", "admin_email")

	v.BindEnv("security.rate_limit", "security_rate_limit")
}

// SetDefaults is also used by tests that need a fully populated config
func SetDefaults() {
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 5000)
	v.SetDefault("host.cors", "http://localhost:3000")
	v.SetDefault("host.ssl.enabled", false)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "notes.db")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.path_style", false)
	v.SetDefault("storage.cleanup_interval", "0s")
	v.SetDefault("storage.cleanup_grace", "1h")

	v.SetDefault("upload.max_size", 25)
	v.SetDefault("upload.allowed_types", []string{
		"application/pdf",
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"text/plain",
	})

	v.SetDefault("cloudflare.turnstile.enabled", false)

	v.SetDefault("security.rate_limit", 20)
}

// AllowedTypes reads upload.allowed_types. The config file gives a list, the
// environment a comma separated string.
func AllowedTypes() []string {
	var out []string
	for _, t := range v.GetStringSlice("upload.allowed_types") {
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}

	return out
}

// Validate checks the values currently loaded into viper
func Validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 || v.GetInt("host.port") > 65535 {
		return errors.New("invalid port provided")
	}

	if v.GetBool("host.ssl.enabled") {
		if v.GetString("host.ssl.certificate_path") == "" {
			return errors.New("no ssl certificate path provided")
		}

		if v.GetString("host.ssl.certificate_key_path") == "" {
			return errors.New("no ssl certificate key path provided")
		}
	}

	if !slices.Contains(validDBDrivers, v.GetString("db.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("db.dsn") == "" {
		return errors.New("db.dsn can't be empty")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if len(AllowedTypes()) == 0 {
		zap.L().Warn("No upload.allowed_types specified, the default list will be used")
	}

	if v.GetInt("security.rate_limit") < 0 {
		return errors.New("security.rate_limit can't be negative")
	}

	if v.GetDuration("storage.cleanup_interval") < 0 {
		return errors.New("storage.cleanup_interval can't be negative")
	}

	switch st := strings.ToLower(v.GetString("storage.type")); st {
	case "local":
		if v.GetString("storage.local_path") == "" {
			return errors.New("storage.local_path can't be empty")
		}
	case "s3", "r2":
		if st == "r2" && v.GetString("cloudflare.account_id") == "" {
			return errors.New("account id can't be empty")
		}
		if v.GetString("storage.access_key_id") == "" {
			return errors.New("access key id can't be empty")
		}
		if v.GetString("storage.secret_access_key") == "" {
			return errors.New("secret access key can't be empty")
		}
		if v.GetString("storage.bucket") == "" {
			return errors.New("bucket can't be empty")
		}
	default:
		if !slices.Contains(validStorageTypes, st) {
			return errors.New("invalid storage type provided")
		}
	}

	if v.GetBool("cloudflare.turnstile.enabled") && v.GetString("cloudflare.turnstile.secret_token") == "" {
		return errors.New("turnstile secret token is missing")
	}

	// Both or neither
	if (v.GetString("admin.id") == "") != (v.GetString("admin.password") == "") {
		return errors.New("admin.id and admin.password must be set together")
	}

	return nil
}
