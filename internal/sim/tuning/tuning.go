package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	RollWindowTicks    int `yaml:"roll_window_ticks"`
	AnnounceGraceTicks int `yaml:"announce_grace_ticks"`
	AutoClaimTicks     int `yaml:"auto_claim_ticks"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type RateLimits struct {
	RollWindowTicks  int `yaml:"roll_window_ticks"`
	RollMax          int `yaml:"roll_max"`
	AwardWindowTicks int `yaml:"award_window_ticks"`
	AwardMax         int `yaml:"award_max"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
