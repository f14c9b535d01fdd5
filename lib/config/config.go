// Package config loads console settings from a TOML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Serial  SerialConfig
	Device  DeviceConfig
	UI      UIConfig
	Journal JournalConfig
	Metrics MetricsConfig
	Log     LogConfig
}

// SerialConfig selects and opens the serial links.
type SerialConfig struct {
	Ports        []string      // explicit device paths; empty means discover
	Discovery    string        // acm, sysfs or enumerate
	ScanMax      int           `mapstructure:"scan_max"`
	DevDir       string        `mapstructure:"dev_dir"`
	SysClass     string        `mapstructure:"sys_class"`     // sysfs tty class directory
	SerialNumber string        `mapstructure:"serial_number"` // USB serial of the one board to use
	Baud         int
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// DeviceConfig holds board and simulation settings.
type DeviceConfig struct {
	BoardAddress int `mapstructure:"board_address"`
	Debug        bool
	Simulate     bool
	SimDevices   []int `mapstructure:"sim_devices"`
	SimChannels  int   `mapstructure:"sim_channels"`
}

// UIConfig holds console settings.
type UIConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Columns      []string
}

// JournalConfig holds the setpoint journal location. An empty path disables
// the journal.
type JournalConfig struct {
	Path string
}

// MetricsConfig holds the Prometheus listen address. Empty disables the
// exporter.
type MetricsConfig struct {
	Listen string
}

// LogConfig holds the log file used while the console owns the terminal.
type LogConfig struct {
	File string
}

// DefaultColumns are the console table columns after the channel label.
var DefaultColumns = []string{"VSet", "VMon", "ISet", "IMon", "Pw", "ChStatus", "Polarity", "MaxV", "RUp", "RDwn", "Trip", "PDwn"}

func setDefaults(v *viper.Viper) {
	home := os.Getenv("HOME")
	v.SetDefault("serial.ports", []string{})
	v.SetDefault("serial.discovery", "acm")
	v.SetDefault("serial.scan_max", 10)
	v.SetDefault("serial.dev_dir", "/dev")
	v.SetDefault("serial.sys_class", "/sys/class/tty")
	v.SetDefault("serial.serial_number", "")
	v.SetDefault("serial.baud", 115200)
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("device.board_address", 0)
	v.SetDefault("device.debug", false)
	v.SetDefault("device.simulate", false)
	v.SetDefault("device.sim_devices", []int{1, 3})
	v.SetDefault("device.sim_channels", 4)
	v.SetDefault("ui.poll_interval", "100ms")
	v.SetDefault("ui.columns", DefaultColumns)
	v.SetDefault("journal.path", filepath.Join(home, ".local", "share", "hvconsole", "journal.db"))
	v.SetDefault("metrics.listen", "")
	v.SetDefault("log.file", filepath.Join(os.TempDir(), "hvconsole.log"))
}

// Load reads configuration from file and env. Env var overrides use prefix
// HVCONSOLE_; HVCONSOLE_CONFIG names the config file.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("HVCONSOLE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "hvconsole"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("HVCONSOLE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// a missing default config is fine; a named or broken one is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgPath != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.UI.PollInterval <= 0 {
		return fmt.Errorf("ui.poll_interval must be positive, got %s", c.UI.PollInterval)
	}
	if c.Serial.ScanMax < 0 {
		return fmt.Errorf("serial.scan_max must not be negative")
	}
	if c.Device.BoardAddress < 0 || c.Device.BoardAddress > 31 {
		return fmt.Errorf("device.board_address %d out of range 0-31", c.Device.BoardAddress)
	}
	if len(c.UI.Columns) == 0 {
		return fmt.Errorf("ui.columns must not be empty")
	}
	return nil
}
