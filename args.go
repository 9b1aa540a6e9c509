package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"silentbid/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 0, "")
	pflag.String("redis-key-prefix", "silentbid-", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-events", "silentbid-shared-event-stream", "")

	// smtp config
	pflag.String("smtp-host", "", "")
	pflag.Int("smtp-port", 587, "")
	pflag.String("smtp-user", "", "")
	pflag.String("smtp-password", "", "")
	pflag.String("from-email", "", "")

	// auth config
	pflag.String("auth-public-key", "", "base64 encoded ed25519 public key")
	pflag.String("admin-email", "", "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("SILENTBID")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	publicKey, _ := base64.StdEncoding.DecodeString(viper.GetString("auth-public-key"))
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					Events: viper.GetString("redis-stream-key-for-events"),
				},
			},
			SMTP: api.SMTPConfig{
				Host:     viper.GetString("smtp-host"),
				Port:     viper.GetInt("smtp-port"),
				Username: viper.GetString("smtp-user"),
				Password: viper.GetString("smtp-password"),
				From:     viper.GetString("from-email"),
			},
			Auth: api.AuthConfig{
				PublicKey:  ed25519.PublicKey(publicKey),
				AdminEmail: viper.GetString("admin-email"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Redis.Addr != "" &&
		len(args.ServerConfig.Auth.PublicKey) == ed25519.PublicKeySize &&
		args.ServerConfig.Auth.AdminEmail != ""
}
