package tuning

import "testing"

func TestLoad(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.ProtocolVersion != "1.0" {
		t.Fatalf("protocol_version = %q", tune.ProtocolVersion)
	}
	if tune.TickRateHz != 5 {
		t.Fatalf("tick_rate_hz = %d", tune.TickRateHz)
	}
	if tune.RollWindowTicks != 150 || tune.AnnounceGraceTicks != 15 || tune.AutoClaimTicks != 300 {
		t.Fatalf("deadlines = %d/%d/%d", tune.RollWindowTicks, tune.AnnounceGraceTicks, tune.AutoClaimTicks)
	}
	if tune.RateLimits.RollMax != 5 || tune.RateLimits.RollWindowTicks != 10 {
		t.Fatalf("rate limits = %+v", tune.RateLimits)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("../../../configs/nope.yaml"); err == nil {
		t.Fatalf("missing file loaded")
	}
}
