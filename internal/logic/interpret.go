package logic

// Interpret maps a probe sample and the pumping flags to a WaterAction.
// It is evaluated against live reads every tick; nothing here persists.
//
//	bottom top  started verified -> action
//	F      F    -       -           Idle
//	T      F    F       -           ReadyToPump
//	T      F    T       F           PumpingVerified
//	T      T    F       -           EngagePump
//	T      any  T       -           EngagePump
//	F      T    any     any         Unknown
func Interpret(in Input) WaterAction {
	switch {
	case !in.Bottom && !in.Top:
		return ActionIdle
	case !in.Bottom && in.Top:
		// Top wet with bottom dry is physically impossible: a probe is lying.
		return ActionUnknown
	case !in.Started && !in.Top:
		return ActionReadyToPump
	case in.Started && !in.Verified && !in.Top:
		return ActionPumpingVerified
	default:
		// Bottom wet and either top wet, or already pumping.
		return ActionEngagePump
	}
}
