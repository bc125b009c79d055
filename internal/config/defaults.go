package config

// SystemDefaults returns the built-in configuration for English Wikipedia.
func SystemDefaults() *Config {
	return &Config{
		Project: "enwiki",
		Site: SiteConfig{
			Domain:        "en.wikipedia.org",
			CategoryNames: []string{"Category"},
			FileNames:     []string{"File", "Image"},
			TemplateNames: []string{"Template"},
		},
		Wiki: WikiConfig{
			APIURL:       "https://en.wikipedia.org/w/api.php",
			UserAgent:    "wikifix/0.1 (https://github.com/chris-regnier/wikifix)",
			SettingsPage: "Wikipedia:WikiProject Check Wikipedia/Translation",
			Retries:      3,
		},
		CheckWiki: CheckWikiConfig{
			Priorities:     []string{"high", "medium"},
			HandlerTimeout: "10s",
		},
		Typos: TyposConfig{
			MatchTimeout: "2s",
		},
		Exclusions: map[string]string{},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			SampleRate:  1.0,
			ServiceName: "wikifix",
		},
	}
}
