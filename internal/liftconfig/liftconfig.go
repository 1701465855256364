package liftconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration accepts yaml values like "500ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	NumCars  int `yaml:"num_cars"`
	MaxFloor int `yaml:"max_floor"`
	Capacity int `yaml:"capacity"`

	FloorTravelTime Duration `yaml:"floor_travel_time"`
	DoorOpenTime    Duration `yaml:"door_open_time"`
	DoorCloseTime   Duration `yaml:"door_close_time"`
	IdlePoll        Duration `yaml:"idle_poll"`

	IngressQueueSize int      `yaml:"ingress_queue_size"`
	RetryDelay       Duration `yaml:"retry_delay"`
	MaxRetryBackoff  Duration `yaml:"max_retry_backoff"`
	StaleAfter       int      `yaml:"stale_after"`

	HallCallPeriod  Duration `yaml:"hall_call_period"`
	CabCallPeriod   Duration `yaml:"cab_call_period"`
	EmergencyPeriod Duration `yaml:"emergency_period"`
	StatsPeriod     Duration `yaml:"stats_period"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
}

// Default timings: 500ms per floor, 1s door dwell, half that to close,
// 100ms idle poll and retry.
func Default() Config {
	return Config{
		NumCars:  4,
		MaxFloor: 20,
		Capacity: 8,

		FloorTravelTime: Duration(500 * time.Millisecond),
		DoorOpenTime:    Duration(1000 * time.Millisecond),
		DoorCloseTime:   Duration(500 * time.Millisecond),
		IdlePoll:        Duration(100 * time.Millisecond),

		IngressQueueSize: 512,
		RetryDelay:       Duration(100 * time.Millisecond),
		MaxRetryBackoff:  Duration(2 * time.Second),
		StaleAfter:       50,

		HallCallPeriod:  Duration(2 * time.Second),
		CabCallPeriod:   Duration(3 * time.Second),
		EmergencyPeriod: Duration(60 * time.Second),
		StatsPeriod:     Duration(30 * time.Second),

		LogLevel: "debug",
		LogDir:   ".",
	}
}

func Load(path string) (Config, error) {
	config := Default()

	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// ApplyEnv overlays values from a .env file, if one exists. A missing
// file is not an error.
func (c *Config) ApplyEnv(path string) error {
	envFile, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if value, ok := envFile["LIFTSIM_CARS"]; ok {
		cars, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("LIFTSIM_CARS: %w", err)
		}
		c.NumCars = cars
	}
	if value, ok := envFile["LIFTSIM_FLOORS"]; ok {
		floors, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("LIFTSIM_FLOORS: %w", err)
		}
		c.MaxFloor = floors
	}
	if value, ok := envFile["LIFTSIM_LOG_LEVEL"]; ok {
		c.LogLevel = value
	}
	if value, ok := envFile["LIFTSIM_LOG_DIR"]; ok {
		c.LogDir = value
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.NumCars < 1 {
		return fmt.Errorf("num_cars must be at least 1, got %d", c.NumCars)
	}
	if c.MaxFloor < 2 {
		return fmt.Errorf("max_floor must be at least 2, got %d", c.MaxFloor)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}
	if c.IngressQueueSize < 1 {
		return fmt.Errorf("ingress_queue_size must be at least 1, got %d", c.IngressQueueSize)
	}
	if c.StaleAfter < 1 {
		return fmt.Errorf("stale_after must be at least 1, got %d", c.StaleAfter)
	}
	return nil
}
