package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load fills config, which must be a pointer to a struct, in increasing priority from
// the values already set in it, the file and the environment. Nested keys map to
// environment variables with dots replaced by underscores, e.g. HTTP_PORT. An empty
// file reads the environment only.
func Load(file string, config any) error {
	v := viper.New()
	m := make(map[string]any)

	// Registering the defaults makes every key known to viper, which is what lets
	// AutomaticEnv override keys the file does not mention.
	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}
