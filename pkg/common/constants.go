package common

const (
	RedisStreamSignalChanged   = "engine.signal.changed"
	RedisStreamDecisionEmitted = "engine.decision.emitted"

	RedisStreamGroup    = "engine-group"
	RedisStreamConsumer = "engine-consumer"
)

// Signal sides.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
	SideFlat  = "FLAT"
)

// Generator reason codes for expected non-events.
const (
	ReasonMissingBars = "missing_bars"
	ReasonScoreNaN    = "score_nan"
	ReasonStaleBucket = "stale_bucket"
	ReasonUnchanged   = "unchanged"
	ReasonEmitted     = "emitted"
)

// Decision engine reason codes for expected non-events.
const (
	ReasonNoSignal           = "no_signal"
	ReasonRecoExists         = "reco_exists"
	ReasonCooldown           = "cooldown"
	ReasonHold               = "hold"
	ReasonSignalInconsistent = "signal_inconsistent"
	ReasonDecided            = "decided"
)

// Trigger gate labels recorded in signal meta and decision reasons.
const (
	TriggerCrossUp     = "cross_up"
	TriggerCrossDown   = "cross_dn"
	TriggerSustainUp   = "sustain_up"
	TriggerSustainDown = "sustain_dn"
	TriggerNone        = "none"
)
