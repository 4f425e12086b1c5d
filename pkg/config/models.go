package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Relay     RelayConfig
	Rooms     RoomsConfig
	Store     StoreConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"` // 0 disables the limit
	Mode       string `mapstructure:"mode"`       // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type RelayConfig struct {
	// EchoToSender also delivers a sent message to the sender's other live
	// connections, keeping multiple tabs consistent. The observed client
	// updates its own view optimistically, so this defaults to off.
	EchoToSender bool    `mapstructure:"echoToSender"`
	MessageRate  float64 `mapstructure:"messageRate"` // messages/sec per connection, 0 disables
	MessageBurst int     `mapstructure:"messageBurst"`
}

type RoomsConfig struct {
	IdleTTL time.Duration `mapstructure:"idleTTL"` // 0 disables the janitor
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"` // postgres DSN; empty runs the in-memory store
}

type LogConfig struct {
	Level string
}
