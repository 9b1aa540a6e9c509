package api

import "crypto/ed25519"

type ServerConfig struct {
	DB    DBConfig
	Redis RedisConfig
	SMTP  SMTPConfig
	Auth  AuthConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	Events string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type AuthConfig struct {
	PublicKey  ed25519.PublicKey
	AdminEmail string
}
