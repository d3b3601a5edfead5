package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Redis.Password)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy reference types so callers cannot mutate the original through the
	// redacted copy.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Feed.Markets = append([]string(nil), cfg.Feed.Markets...)
	out.Analytics.LiquiditySizes = append([]float64(nil), cfg.Analytics.LiquiditySizes...)
	if cfg.Assets != nil {
		out.Assets = make(map[string]map[string]string, len(cfg.Assets))
		for asset, markets := range cfg.Assets {
			m := make(map[string]string, len(markets))
			for k, v := range markets {
				m[k] = v
			}
			out.Assets[asset] = m
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
