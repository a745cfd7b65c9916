package main

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/otelwasm/guestmem/wasmplugin"
)

const (
	// envPrefix selects the environment variables read into the config.
	// Nested keys are separated by a double underscore, as in
	// GUESTMEM_RUNTIME__MODE.
	envPrefix = "GUESTMEM_"

	keyDelimiter = "."
)

// cliDefaults are loaded beneath every other layer. The CLI runs under a
// signal context, so guest calls must abort when it is cancelled.
var cliDefaults = map[string]any{
	"runtime.close_on_context_done": true,
}

// loadConfig merges cliDefaults, the YAML file at path (if any), the
// environment and overrides, in increasing order of precedence, then applies
// defaults and validates the result.
func loadConfig(path string, overrides map[string]any) (*wasmplugin.Config, error) {
	k := koanf.New(keyDelimiter)

	if err := k.Load(confmap.Provider(cliDefaults, keyDelimiter), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, keyDelimiter, envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Load(confmap.Provider(overrides, keyDelimiter), nil); err != nil {
		return nil, fmt.Errorf("loading flags: %w", err)
	}

	cfg := &wasmplugin.Config{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			ErrorUnused:      true,
			Result:           cfg,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps GUESTMEM_RUNTIME__MEMORY_LIMIT_PAGES to
// runtime.memory_limit_pages.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", keyDelimiter)
}
