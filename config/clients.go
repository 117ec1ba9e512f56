package config

import (
	"github.com/vapeshed/cis-bricks/httpclient"
	"github.com/vapeshed/cis-bricks/logger"
)

// HTTPClientConfig maps the lightspeed and log sections onto an httpclient
// configuration. Transport, telemetry providers and interceptors are left for
// the caller to set.
func (c *Config) HTTPClientConfig() httpclient.Config {
	return httpclient.Config{
		BaseURL:         c.Lightspeed.BaseURL,
		Token:           c.Lightspeed.Token,
		Timeout:         c.Lightspeed.Timeout,
		MaxRetries:      c.Lightspeed.MaxRetries,
		BaseBackoff:     c.Lightspeed.Backoff,
		UserAgent:       c.Lightspeed.UserAgent,
		LogPayloads:     c.Log.Payloads,
		SensitiveFields: c.sensitiveFields(),
	}
}

// FilterConfig returns the masking configuration for loggers. Nil means the
// logger default denylist.
func (c *Config) FilterConfig() *logger.FilterConfig {
	fields := c.sensitiveFields()
	if fields == nil {
		return nil
	}
	return &logger.FilterConfig{SensitiveFields: fields, MaskValue: logger.DefaultMaskValue}
}

func (c *Config) sensitiveFields() []string {
	if len(c.Log.SensitiveFields) == 0 {
		return nil
	}
	return append([]string(nil), c.Log.SensitiveFields...)
}
