package ibento

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	catrate "github.com/joeycumines/go-catrate"
)

// Config of the application shell, usually loaded from a TOML file.
type Config struct {
	// LoggingLevel is parsed by ParseLevel.
	LoggingLevel string `toml:"logging_level"`

	RunnerQueue string `toml:"runner_queue"`
	UIQueue     string `toml:"ui_queue"`

	// TickInterval paces the game loop, FrameInterval the UI loop.
	TickInterval  Duration `toml:"tick_interval"`
	FrameInterval Duration `toml:"frame_interval"`

	// MotionRates throttles mouse motion, keyed by window ("1s") to the max
	// number of samples in that window. Empty disables throttling.
	MotionRates map[string]int `toml:"motion_rates"`

	QueueCapacity int `toml:"queue_capacity"`
}

// Duration decodes "100ms" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func DefaultConfig() Config {
	return Config{
		LoggingLevel:  "info",
		RunnerQueue:   "RUNNER QUEUE",
		UIQueue:       "UI QUEUE",
		TickInterval:  Duration{100 * time.Millisecond},
		FrameInterval: Duration{16 * time.Millisecond},
		QueueCapacity: 64,
	}
}

// LoadConfig decodes path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("ibento: loading config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("ibento: unknown config keys in %s: %v", path, undecoded)
	}
	return cfg, cfg.Validate()
}

// DecodeConfig is LoadConfig, from a string.
func DecodeConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("ibento: decoding config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("ibento: unknown config keys: %v", undecoded)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.LoggingLevel); err != nil {
		return err
	}
	if c.TickInterval.Duration <= 0 {
		return fmt.Errorf("ibento: tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.FrameInterval.Duration <= 0 {
		return fmt.Errorf("ibento: frame_interval must be positive, got %v", c.FrameInterval)
	}
	if c.RunnerQueue == "" || c.UIQueue == "" {
		return fmt.Errorf("ibento: queue labels must not be empty")
	}
	_, err := c.motionRates()
	return err
}

func (c Config) motionRates() (map[time.Duration]int, error) {
	if len(c.MotionRates) == 0 {
		return nil, nil
	}
	rates := make(map[time.Duration]int, len(c.MotionRates))
	for window, limit := range c.MotionRates {
		d, err := time.ParseDuration(window)
		if err != nil {
			return nil, fmt.Errorf("ibento: motion_rates: %w", err)
		}
		if d <= 0 || limit <= 0 {
			return nil, fmt.Errorf("ibento: motion_rates: invalid rate %s = %d", window, limit)
		}
		rates[d] = limit
	}
	if err := checkRates(rates); err != nil {
		return nil, err
	}
	return rates, nil
}

// checkRates rejects the rates catrate.NewLimiter would panic on, e.g. a
// longer window with a lower limit.
func checkRates(rates map[time.Duration]int) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("ibento: motion_rates: %v", rec)
		}
	}()
	catrate.NewLimiter(rates)
	return nil
}
