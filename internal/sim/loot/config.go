package loot

type TableConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	// Group roll window and the grace period during which the result
	// stays visible before the entry is removed.
	RollWindowTicks    int
	AnnounceGraceTicks int

	// Personal loot auto-claim deadline.
	AutoClaimTicks int

	RateLimits RateLimitConfig
}

type RateLimitConfig struct {
	RollWindowTicks  uint64
	RollMax          int
	AwardWindowTicks uint64
	AwardMax         int
}

func (c *TableConfig) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	// 30s roll window, 3s announcement, 60s auto-claim at the default rate.
	if c.RollWindowTicks <= 0 {
		c.RollWindowTicks = 30 * c.TickRateHz
	}
	if c.AnnounceGraceTicks <= 0 {
		c.AnnounceGraceTicks = 3 * c.TickRateHz
	}
	if c.AutoClaimTicks <= 0 {
		c.AutoClaimTicks = 60 * c.TickRateHz
	}
	c.RateLimits.applyDefaults()
}

func (rl *RateLimitConfig) applyDefaults() {
	if rl.RollWindowTicks <= 0 {
		rl.RollWindowTicks = 10
	}
	if rl.RollMax <= 0 {
		rl.RollMax = 5
	}
	if rl.AwardWindowTicks <= 0 {
		rl.AwardWindowTicks = 10
	}
	if rl.AwardMax <= 0 {
		rl.AwardMax = 8
	}
}
