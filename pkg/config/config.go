package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Game      GameConfig      `toml:"game"`
	Script    ScriptConfig    `toml:"script"`
	Spectator SpectatorConfig `toml:"spectator"`
	Ping      PingConfig      `toml:"ping"`
}

type ServerConfig struct {
	Name       string `toml:"name"`
	Port       int    `toml:"port"`
	MatchID    uint32 `toml:"match_id"`
	MaxPlayers int    `toml:"max_players"`
	TickRate   int    `toml:"tick_rate"`
	MapsDir    string `toml:"maps_dir"`
	DefaultMap string `toml:"default_map"`
	SendQueue  int    `toml:"send_queue"`
	BansFile   string `toml:"bans_file"`

	// logging configuration
	LogToFile     bool   `toml:"log_to_file"`
	LogFile       string `toml:"log_file"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`
}

// GameConfig holds the simulation constants. Gravity, speeds and radii are in world
// pixels per 60 Hz frame; GameSpeed scales real seconds into that unit.
type GameConfig struct {
	TurnTime        float64 `toml:"turn_time"`
	Gravity         float64 `toml:"gravity"`
	GameSpeed       float64 `toml:"game_speed"`
	MaxSimStep      float64 `toml:"max_sim_step"`
	MaxFrameDt      float64 `toml:"max_frame_dt"`
	WindRange       float64 `toml:"wind_range"`
	MoveSpeed       float64 `toml:"move_speed"`
	InitialAngle    float64 `toml:"initial_angle"`
	ExplosionRadius float64 `toml:"explosion_radius"`
	HitRadius       float64 `toml:"hit_radius"`
	HitDamage       int     `toml:"hit_damage"`
}

type ScriptConfig struct {
	Path string `toml:"path"`
}

type SpectatorConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type PingConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "bombard server",
			Port:          9090,
			MatchID:       1,
			MaxPlayers:    2,
			TickRate:      60,
			MapsDir:       "maps",
			DefaultMap:    "gen:flat",
			SendQueue:     64,
			BansFile:      "data/bans.json",
			LogFile:       "logs/bombard.log",
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
		},
		Game: GameConfig{
			TurnTime:        30,
			Gravity:         0.98,
			GameSpeed:       40,
			MaxSimStep:      3,
			MaxFrameDt:      0.1,
			WindRange:       10,
			MoveSpeed:       2,
			InitialAngle:    45,
			ExplosionRadius: 30,
			HitRadius:       20,
			HitDamage:       10,
		},
		Spectator: SpectatorConfig{
			Address: ":9091",
		},
	}
}

// LoadConfig reads a TOML file on top of Default.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := Parse(string(data), config); err != nil {
		return nil, err
	}
	return config, nil
}

func Parse(data string, config *Config) error {
	if _, err := toml.Decode(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Server.MatchID == 0 {
		config.Server.MatchID = 1
	}

	if config.Server.TickRate == 0 {
		config.Server.TickRate = 60
	}

	return nil
}

// PingPort defaults to the port after the game port.
func (c *Config) PingPort() int {
	if c.Ping.Port != 0 {
		return c.Ping.Port
	}
	return c.Server.Port + 1
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Name) == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.MaxPlayers != 2 {
		return fmt.Errorf("max_players must be 2, got %d", c.Server.MaxPlayers)
	}

	if c.Server.TickRate <= 0 || c.Server.TickRate > 1000 {
		return fmt.Errorf("tick_rate must be between 1 and 1000")
	}

	if c.Server.DefaultMap == "" {
		return fmt.Errorf("default_map cannot be empty")
	}

	if c.Server.SendQueue <= 0 {
		return fmt.Errorf("send_queue must be positive")
	}

	if c.Game.TurnTime <= 0 {
		return fmt.Errorf("turn_time must be positive")
	}

	if c.Game.GameSpeed <= 0 || c.Game.MaxSimStep <= 0 || c.Game.MaxFrameDt <= 0 {
		return fmt.Errorf("game_speed, max_sim_step and max_frame_dt must be positive")
	}

	if c.Game.WindRange < 0 {
		return fmt.Errorf("wind_range cannot be negative")
	}

	if c.Game.ExplosionRadius < 0 || c.Game.HitRadius < 0 || c.Game.HitDamage < 0 {
		return fmt.Errorf("explosion_radius, hit_radius and hit_damage cannot be negative")
	}

	if port := c.PingPort(); c.Ping.Enabled && (port <= 0 || port > 65535) {
		return fmt.Errorf("invalid ping port: %d", port)
	}

	if c.Spectator.Enabled && c.Spectator.Address == "" {
		return fmt.Errorf("spectator address cannot be empty")
	}

	return nil
}
