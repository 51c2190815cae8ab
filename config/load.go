package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXPEDITION_BROKER_URL
const EnvPrefix = "EXPEDITION"

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"url":        "broker.url",
	"exchange":   "broker.exchange",
	"log-level":  "log.level",
	"log-format": "log.format",
}

type loadOptions struct {
	flags *pflag.FlagSet
}

// LoadOption configures Load
type LoadOption func(*loadOptions)

// WithFlags lets explicitly set flags of fs override every other source
func WithFlags(fs *pflag.FlagSet) LoadOption {
	return func(o *loadOptions) {
		o.flags = fs
	}
}

// Load builds the configuration from defaults, the file at path (skipped when
// path is empty), the environment and flags, then validates it.
func Load(path string, options ...LoadOption) (*Config, error) {
	opts := &loadOptions{}
	for _, opt := range options {
		opt(opts)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if opts.flags != nil {
		for name, key := range flagKeys {
			if flag := opts.flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if !v.IsSet("suppliers") {
		cfg.Suppliers = DefaultSuppliers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every scalar default. The supplier table is applied
// after decoding so a file replaces it instead of merging into it.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("broker.url", d.Broker.URL)
	v.SetDefault("broker.exchange", d.Broker.Exchange)
	v.SetDefault("broker.connect_attempts", d.Broker.ConnectAttempts)
	v.SetDefault("broker.connect_delay", d.Broker.ConnectDelay)
	v.SetDefault("broker.reconnect_delay", d.Broker.ReconnectDelay)
	v.SetDefault("broker.idle_timeout", d.Broker.IdleTimeout)
	v.SetDefault("broker.stop_timeout", d.Broker.StopTimeout)
	v.SetDefault("broker.supplier_stop_timeout", d.Broker.SupplierStopTimeout)

	v.SetDefault("routing.order_prefix", d.Routing.OrderPrefix)
	v.SetDefault("routing.confirmation_prefix", d.Routing.ConfirmationPrefix)
	v.SetDefault("routing.broadcast_teams", d.Routing.BroadcastTeams)
	v.SetDefault("routing.broadcast_suppliers", d.Routing.BroadcastSuppliers)
	v.SetDefault("routing.broadcast_all", d.Routing.BroadcastAll)
	v.SetDefault("routing.monitor_queue", d.Routing.MonitorQueue)
	v.SetDefault("routing.monitor_binding", d.Routing.MonitorBinding)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("equipment_types", d.EquipmentTypes)
}
