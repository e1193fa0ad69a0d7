// Package config loads the tuning data that sits outside the binary:
// per-difficulty endpoint tiers, allowed connection types, strike
// budgets and hop floors, plus the wall-clock constants shared by every
// session regardless of difficulty.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fourthdown/gridlink/go/internal/models"
	"gopkg.in/yaml.v3"
)

// Timing holds the non-difficulty-specific constants of spec.md §6.3.
type Timing struct {
	CountdownSeconds       int `yaml:"countdown_seconds"`
	GameDurationSeconds    int `yaml:"game_duration_seconds"`
	PathfinderDepth        int `yaml:"pathfinder_depth"`
	SolutionFanout         int `yaml:"solution_fanout"`
	EndpointSelectionTries int `yaml:"endpoint_selection_tries"`
}

// difficultyYAML is the on-disk shape of one difficulty tier; kept
// distinct from models.DifficultyParams so the YAML tags don't leak
// into the domain type.
type difficultyYAML struct {
	AllowedTypes []models.ConnectionType `yaml:"allowed_types"`
	Strikes      int                     `yaml:"strikes"`
	MinEdges     int                     `yaml:"min_edges"`
	PoolTier     string                  `yaml:"pool_tier"`
}

type fileFormat struct {
	Timing       Timing                             `yaml:"timing"`
	Difficulties map[models.Difficulty]difficultyYAML `yaml:"difficulties"`
}

// Config is the loaded, validated tuning data for the whole process.
type Config struct {
	Timing       Timing
	Difficulties map[models.Difficulty]models.DifficultyParams
}

// Load reads and parses a YAML tuning file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw fileFormat
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Timing:       raw.Timing,
		Difficulties: make(map[models.Difficulty]models.DifficultyParams, len(raw.Difficulties)),
	}

	for diff, d := range raw.Difficulties {
		cfg.Difficulties[diff] = models.DifficultyParams{
			Difficulty:   diff,
			AllowedTypes: models.NewConnectionTypeSet(d.AllowedTypes...),
			Strikes:      d.Strikes,
			MinEdges:     d.MinEdges,
			PoolTier:     d.PoolTier,
		}
	}

	for _, want := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
		if _, ok := cfg.Difficulties[want]; !ok {
			return nil, fmt.Errorf("config missing difficulty tier %q", want)
		}
	}

	return cfg, nil
}

// Get resolves a difficulty to its tuning parameters, satisfying
// matchmaker.DifficultyLookup.
func (c *Config) Get(d models.Difficulty) (models.DifficultyParams, bool) {
	p, ok := c.Difficulties[d]
	return p, ok
}

// Countdown is the pre-match countdown as a time.Duration.
func (t Timing) Countdown() time.Duration {
	return time.Duration(t.CountdownSeconds) * time.Second
}

// GameDuration is the wall-clock game budget as a time.Duration.
func (t Timing) GameDuration() time.Duration {
	return time.Duration(t.GameDurationSeconds) * time.Second
}

// Deadline is Countdown+GameDuration, the multiplayer session's total
// budget from the moment both participants are ready to forced timeout
// (spec.md §4.5.4).
func (t Timing) Deadline() time.Duration {
	return t.Countdown() + t.GameDuration()
}

// Default returns the shipped tuning data of spec.md §6.3, used as a
// whole when the config file cannot be loaded. Load does not fill
// individual keys missing from a file with these values.
func Default() *Config {
	return &Config{
		Timing: Timing{
			CountdownSeconds:       3,
			GameDurationSeconds:    60,
			PathfinderDepth:        5,
			SolutionFanout:         3,
			EndpointSelectionTries: 50,
		},
		Difficulties: map[models.Difficulty]models.DifficultyParams{
			models.DifficultyEasy: {
				Difficulty: models.DifficultyEasy,
				AllowedTypes: models.NewConnectionTypeSet(
					models.ConnectionTeammate, models.ConnectionCollege,
					models.ConnectionDraftClass, models.ConnectionPosition,
				),
				Strikes:  10,
				MinEdges: 1,
				PoolTier: "stars",
			},
			models.DifficultyMedium: {
				Difficulty:   models.DifficultyMedium,
				AllowedTypes: models.NewConnectionTypeSet(models.ConnectionTeammate, models.ConnectionCollege),
				Strikes:      5,
				MinEdges:     2,
				PoolTier:     "starters",
			},
			models.DifficultyHard: {
				Difficulty:   models.DifficultyHard,
				AllowedTypes: models.NewConnectionTypeSet(models.ConnectionTeammate),
				Strikes:      3,
				MinEdges:     2,
				PoolTier:     "recorded",
			},
		},
	}
}
