package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/walletlink/internal/link"
)

type fileConfig struct {
	Source                   string   `toml:"source"`
	Href                     string   `toml:"href"`
	HostBridge               bool     `toml:"host_bridge"`
	MaxMessageBytes          uint32   `toml:"max_message_bytes"`
	ParentURL                string   `toml:"parent_url"`
	SelfURL                  string   `toml:"self_url"`
	ParentMaxConnectAttempts int      `toml:"parent_max_connect_attempts"`
	ParentTLSCAFile          string   `toml:"parent_tls_ca_file"`
	ParentTLSCertFile        string   `toml:"parent_tls_cert_file"`
	ParentTLSKeyFile         string   `toml:"parent_tls_key_file"`
	ParentTLSServerName      string   `toml:"parent_tls_server_name"`
	EmbeddedApp              bool     `toml:"embedded_app"`
	PingTimeout              string   `toml:"ping_timeout"`
	PingTimeoutEmbedded      string   `toml:"ping_timeout_embedded"`
	AdminListen              string   `toml:"admin_listen"`
	AdminRatePerSec          float64  `toml:"admin_rate_per_sec"`
	AdminRateBurst           int      `toml:"admin_rate_burst"`
	AdminCORSOrigins         []string `toml:"admin_cors_origins"`
	Consent                  string   `toml:"consent"`
	AccountStore             string   `toml:"account_store"`
	RedisURL                 string   `toml:"redis_url"`
	RedisKey                 string   `toml:"redis_key"`
}

func loadServiceConfig(path string) (link.ServiceConfig, error) {
	cfg := link.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return link.ServiceConfig{}, fmt.Errorf("load walletlinkd config: %w", err)
	}

	if meta.IsDefined("source") {
		if v := strings.TrimSpace(raw.Source); v != "" {
			cfg.Correlator.Source = v
		}
	}
	if meta.IsDefined("href") {
		cfg.Correlator.Href = strings.TrimSpace(raw.Href)
	}
	if meta.IsDefined("host_bridge") {
		cfg.HostBridge = raw.HostBridge
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.Frame.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("parent_url") {
		cfg.Parent.URL = strings.TrimSpace(raw.ParentURL)
	}
	if meta.IsDefined("self_url") {
		cfg.Parent.SelfURL = strings.TrimSpace(raw.SelfURL)
	}
	if meta.IsDefined("parent_max_connect_attempts") {
		cfg.Parent.MaxConnectAttempts = raw.ParentMaxConnectAttempts
	}
	if meta.IsDefined("parent_tls_ca_file") {
		cfg.Parent.TLS.CAFile = strings.TrimSpace(raw.ParentTLSCAFile)
	}
	if meta.IsDefined("parent_tls_cert_file") {
		cfg.Parent.TLS.CertFile = strings.TrimSpace(raw.ParentTLSCertFile)
	}
	if meta.IsDefined("parent_tls_key_file") {
		cfg.Parent.TLS.KeyFile = strings.TrimSpace(raw.ParentTLSKeyFile)
	}
	if meta.IsDefined("parent_tls_server_name") {
		cfg.Parent.TLS.ServerName = strings.TrimSpace(raw.ParentTLSServerName)
	}
	if meta.IsDefined("embedded_app") {
		cfg.Wallet.EmbeddedApp = raw.EmbeddedApp
	}
	if meta.IsDefined("ping_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PingTimeout))
		if err != nil {
			return link.ServiceConfig{}, fmt.Errorf("parse ping_timeout: %w", err)
		}
		cfg.Wallet.PingTimeout = d
	}
	if meta.IsDefined("ping_timeout_embedded") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PingTimeoutEmbedded))
		if err != nil {
			return link.ServiceConfig{}, fmt.Errorf("parse ping_timeout_embedded: %w", err)
		}
		cfg.Wallet.EmbeddedPingTimeout = d
	}
	if meta.IsDefined("admin_listen") {
		cfg.Admin.Listen = strings.TrimSpace(raw.AdminListen)
		cfg.AdminEnabled = cfg.Admin.Listen != ""
	}
	if meta.IsDefined("admin_rate_per_sec") {
		cfg.Admin.RatePerSec = raw.AdminRatePerSec
	}
	if meta.IsDefined("admin_rate_burst") {
		cfg.Admin.RateBurst = raw.AdminRateBurst
	}
	if meta.IsDefined("admin_cors_origins") {
		cfg.Admin.CORSOrigins = normalizeList(raw.AdminCORSOrigins)
	}
	if meta.IsDefined("consent") {
		cfg.Consent = link.ConsentMode(strings.ToLower(strings.TrimSpace(raw.Consent)))
	}
	if meta.IsDefined("account_store") {
		cfg.AccountStore = link.StoreKind(strings.ToLower(strings.TrimSpace(raw.AccountStore)))
	}
	if meta.IsDefined("redis_url") {
		cfg.RedisURL = strings.TrimSpace(raw.RedisURL)
	}
	if meta.IsDefined("redis_key") {
		if v := strings.TrimSpace(raw.RedisKey); v != "" {
			cfg.RedisKey = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return link.ServiceConfig{}, fmt.Errorf("validate walletlinkd config: %w", err)
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
