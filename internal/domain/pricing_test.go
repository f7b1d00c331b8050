package domain

import "testing"

func TestCost(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		duration  int
		videoRefs bool
		want      int
	}{
		{name: "fast 5s", model: ModelFast, duration: 5, videoRefs: false, want: 500},
		{name: "fast 8s", model: ModelFast, duration: 8, videoRefs: false, want: 800},
		{name: "fast with video refs doubles", model: ModelFast, duration: 5, videoRefs: true, want: 1000},
		{name: "standard 5s", model: ModelStandard, duration: 5, videoRefs: false, want: 1000},
		{name: "standard with video refs", model: ModelStandard, duration: 5, videoRefs: true, want: 2000},
		{name: "unknown model costs nothing", model: "bogus", duration: 5, videoRefs: false, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cost(tc.model, tc.duration, tc.videoRefs); got != tc.want {
				t.Fatalf("Cost(%q, %d, %v) = %d, want %d", tc.model, tc.duration, tc.videoRefs, got, tc.want)
			}
		})
	}
}

func TestKnownModel(t *testing.T) {
	if !KnownModel(ModelFast) || !KnownModel(ModelStandard) {
		t.Fatalf("expected supported models to be known")
	}
	if KnownModel("veo-2") {
		t.Fatalf("unexpected model accepted")
	}
}
