// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Experiment holds everything about a study run that is data rather than
// logic: countdown durations, the exogenous water-height schedule, and the
// step sequence per experimental condition. Step names are validated against
// the step enum when a room is created.
type Experiment struct {
	RoundSeconds       int `mapstructure:"roundSeconds"`
	ResultSeconds      int `mapstructure:"resultSeconds"`
	GameStopSeconds    int `mapstructure:"gameStopSeconds"`
	WaitingRoomSeconds int `mapstructure:"waitingRoomSeconds"`

	InitialLeveeStock int `mapstructure:"initialLeveeStock"`

	// One water-height draw per scored round, per part.
	WaterFirstPart  []int `mapstructure:"waterFirstPart"`
	WaterSecondPart []int `mapstructure:"waterSecondPart"`

	// Conditions maps an experimental condition name to its ordered step
	// sequence.
	Conditions map[string][]string `mapstructure:"conditions"`
}

// TickInterval is how often room countdowns decrement. Tests shorten it.
var TickInterval = time.Second

// Default returns the experiment parameters of the standard study run.
func Default() Experiment {
	return Experiment{
		RoundSeconds:       60,
		ResultSeconds:      20,
		GameStopSeconds:    40,
		WaitingRoomSeconds: 300,
		InitialLeveeStock:  100,
		WaterFirstPart:     []int{4, 6, 2, 8, 10, 4, 12, 6, 14, 8},
		WaterSecondPart:    []int{6, 10, 4, 12, 8, 14, 6, 16, 10, 12},
		Conditions: map[string][]string{
			"control": {
				"waitingRoom", "roleSelection", "instructions",
				"roundsFirstPart", "partTransition", "roundsSecondPart",
				"riskSurvey", "demographicSurvey", "completion",
			},
			"communication": {
				"waitingRoom", "roleSelection", "instructions", "chat",
				"roundsFirstPart", "chat", "partTransition", "roundsSecondPart",
				"riskSurvey", "demographicSurvey", "completion",
			},
		},
	}
}

// Load merges an experiment config file over the defaults. Environment
// variables override file values (LEVEE_ROUNDSECONDS and friends).
func Load(file string) (Experiment, error) {
	cfg := Default()

	v := viper.New()
	v.SetDefault("roundSeconds", cfg.RoundSeconds)
	v.SetDefault("resultSeconds", cfg.ResultSeconds)
	v.SetDefault("gameStopSeconds", cfg.GameStopSeconds)
	v.SetDefault("waitingRoomSeconds", cfg.WaitingRoomSeconds)
	v.SetDefault("initialLeveeStock", cfg.InitialLeveeStock)
	v.SetDefault("waterFirstPart", cfg.WaterFirstPart)
	v.SetDefault("waterSecondPart", cfg.WaterSecondPart)
	v.SetDefault("conditions", cfg.Conditions)

	v.SetEnvPrefix("LEVEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Experiment{}, fmt.Errorf("read config from file %s: %w", file, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Experiment{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Experiment{}, err
	}
	return cfg, nil
}

// Validate checks the structural parts of the config that do not depend on
// the step enum; step-name validation happens at room creation.
func (e Experiment) Validate() error {
	if e.RoundSeconds <= 0 || e.ResultSeconds <= 0 || e.GameStopSeconds <= 0 {
		return fmt.Errorf("countdown durations must be positive")
	}
	if len(e.WaterFirstPart) != 10 {
		return fmt.Errorf("waterFirstPart needs 10 entries, got %d", len(e.WaterFirstPart))
	}
	if len(e.WaterSecondPart) != 10 {
		return fmt.Errorf("waterSecondPart needs 10 entries, got %d", len(e.WaterSecondPart))
	}
	if len(e.Conditions) == 0 {
		return fmt.Errorf("at least one experimental condition is required")
	}
	for name, steps := range e.Conditions {
		if len(steps) == 0 {
			return fmt.Errorf("condition %q has an empty step sequence", name)
		}
	}
	return nil
}
