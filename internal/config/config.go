// Package config loads the gateway's process configuration from
// environment variables: port-to-protocol wiring, per-connection
// timeouts, and the secrets/URLs the ambient stack needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/angelzd27/api-ruptela/internal/protocol"
)

// PortConfig describes one TCP listener: which protocol family it
// speaks, and (for Jimi ports only) the hemisphere policy for longitude
// sign correction.
type PortConfig struct {
	Port           int
	Family         protocol.Family
	HemisphereWest bool
}

// Config holds all configuration for the gateway.
type Config struct {
	GatewayID string

	Ports []PortConfig

	HTTPPort int

	IdleTimeoutSeconds    int
	MaxConnectionsPerPort int

	SubscriberTokenSecret string
	Debug                 bool

	RedisURL string
	NATSURL  string
}

// Load loads configuration from environment variables. When at least one
// port variable is set, any port variable left unset disables that
// listener (so without PORT_JIMI the GPS Poll Scheduler has nothing to
// poll). When none is set, the defaults Ruptela 5027 and Jimi 5023 are
// used.
func Load() *Config {
	cfg := &Config{
		GatewayID:             getEnv("GATEWAY_ID", "node-01"),
		HTTPPort:              getEnvAsInt("HTTP_PORT", 8081),
		IdleTimeoutSeconds:    getEnvAsInt("IDLE_TIMEOUT_SECONDS", 300),
		MaxConnectionsPerPort: getEnvAsInt("MAX_CONNECTIONS_PER_PORT", 100),
		SubscriberTokenSecret: getEnv("SUBSCRIBER_TOKEN_SECRET", ""),
		Debug:                 getEnvAsBool("DEBUG", false),
		RedisURL:              getEnv("REDIS_URL", "localhost:6379"),
		NATSURL:               getEnv("NATS_URL", "nats://localhost:4222"),
	}

	if p := getEnvAsInt("PORT_RUPTELA_FMB", 0); p != 0 {
		cfg.Ports = append(cfg.Ports, PortConfig{Port: p, Family: protocol.FamilyRuptela})
	}
	if p := getEnvAsInt("PORT_RUPTELA_ECO5", 0); p != 0 {
		cfg.Ports = append(cfg.Ports, PortConfig{Port: p, Family: protocol.FamilyRuptela})
	}
	if p := getEnvAsInt("PORT_JIMI", 0); p != 0 {
		cfg.Ports = append(cfg.Ports, PortConfig{
			Port:           p,
			Family:         protocol.FamilyJimi,
			HemisphereWest: getEnvAsBool("HEMISPHERE_WEST", false),
		})
	}
	if p := getEnvAsInt("PORT_BYPASS", 0); p != 0 {
		cfg.Ports = append(cfg.Ports, PortConfig{Port: p, Family: protocol.FamilyBypass})
	}

	if len(cfg.Ports) == 0 {
		// No explicit wiring: fall back to the conventional defaults so a
		// bare `go run ./cmd/gateway` still listens on something.
		cfg.Ports = []PortConfig{
			{Port: 5027, Family: protocol.FamilyRuptela},
			{Port: 5023, Family: protocol.FamilyJimi, HemisphereWest: getEnvAsBool("HEMISPHERE_WEST", false)},
		}
	}

	return cfg
}

func (c *Config) String() string {
	var ports []string
	for _, p := range c.Ports {
		ports = append(ports, fmt.Sprintf("%s:%d", p.Family, p.Port))
	}
	return fmt.Sprintf("gateway_id=%s ports=[%s] http=%d idle_timeout=%ds",
		c.GatewayID, strings.Join(ports, ","), c.HTTPPort, c.IdleTimeoutSeconds)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
