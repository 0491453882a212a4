package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	Path   string `koanf:"path" mapstructure:"path"`
	Secret string `koanf:"secret" mapstructure:"secret"`
}

type BootstrapConfig struct {
	ExchangeTimeout     time.Duration `koanf:"exchange_timeout" mapstructure:"exchange_timeout"`
	RegistrationTimeout time.Duration `koanf:"registration_timeout" mapstructure:"registration_timeout"`
}

type Config struct {
	ServiceName       string          `koanf:"service_name" mapstructure:"service_name"`
	BaseURL           string          `koanf:"base_url" mapstructure:"base_url"`
	FluidDomainSuffix string          `koanf:"fluid_domain_suffix" mapstructure:"fluid_domain_suffix"`
	Webhook           WebhookConfig   `koanf:"webhook" mapstructure:"webhook"`
	Bootstrap         BootstrapConfig `koanf:"bootstrap" mapstructure:"bootstrap"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "droplet",
		FluidDomainSuffix: "fluid.app",
		Webhook:           WebhookConfig{Path: "/webhook"},
		Bootstrap: BootstrapConfig{
			ExchangeTimeout:     30 * time.Second,
			RegistrationTimeout: 30 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Webhook.Path) == "" {
		return fmt.Errorf("core: webhook path is required")
	}
	return nil
}

// CallbackURL joins the public base URL with the webhook path. Empty when no
// base URL is configured, in which case registration is skipped.
func (c Config) CallbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return ""
	}
	path := strings.TrimSpace(c.Webhook.Path)
	if path == "" {
		path = "/webhook"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
