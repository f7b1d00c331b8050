package domain

// Model identifiers accepted by the generation provider.
const (
	ModelFast     = "seedance_2.0_fast"
	ModelStandard = "seedance_2.0"
)

// Per-second point rates. Reference videos double the rate because the
// provider bills multi-reference tasks at a premium.
const (
	rateFast              = 100
	rateFastWithVideo     = 200
	rateStandard          = 200
	rateStandardWithVideo = 400
)

// KnownModel reports whether the model id is part of the supported set.
func KnownModel(model string) bool {
	return model == ModelFast || model == ModelStandard
}

// Cost computes the point cost of a generation deterministically from its
// parameters. The result is fixed at submission time; provider-reported costs
// are ignored (fixed-price contract with the user).
func Cost(model string, durationSec int, hasVideoRefs bool) int {
	rate := 0
	switch model {
	case ModelFast:
		if hasVideoRefs {
			rate = rateFastWithVideo
		} else {
			rate = rateFast
		}
	case ModelStandard:
		if hasVideoRefs {
			rate = rateStandardWithVideo
		} else {
			rate = rateStandard
		}
	}
	return rate * durationSec
}
