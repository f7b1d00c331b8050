package domain

import "strings"

// FailureClass tags a terminal failure for billing and display purposes.
type FailureClass string

const (
	// FailureContentPolicy marks jobs rejected by the provider's safety
	// review. Provider compute was consumed, so these still settle.
	FailureContentPolicy FailureClass = "content-policy"
	// FailureTechnical marks provider errors and malformed responses. Never
	// billed.
	FailureTechnical FailureClass = "technical"
	// FailureTimeout marks jobs abandoned after the polling ceiling. Never
	// billed.
	FailureTimeout FailureClass = "timeout"
)

// Billable reports whether a failure with this class still deducts points.
func (c FailureClass) Billable() bool {
	return c == FailureContentPolicy
}

// FailureDetail carries the classification plus the provider's raw message.
type FailureDetail struct {
	Class   FailureClass `json:"class"`
	Message string       `json:"message"`
}

// Default safety-review markers observed in provider failure payloads. The
// numeric code and the Chinese term come straight from the upstream API; the
// set is overridable because it has changed across provider versions.
var defaultSafetyMarkers = []string{"2043", "审核", "review"}

// FailureClassifier maps raw provider failure messages to a FailureClass.
type FailureClassifier struct {
	safetyMarkers []string
}

// NewFailureClassifier builds a classifier with the given safety-review
// markers, falling back to the default set when none are provided.
func NewFailureClassifier(markers []string) *FailureClassifier {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, defaultSafetyMarkers...)
	}
	return &FailureClassifier{safetyMarkers: cleaned}
}

// Classify inspects a raw provider failure message and returns a detail with
// the matching class. Empty messages classify as technical.
func (fc *FailureClassifier) Classify(message string) *FailureDetail {
	for _, marker := range fc.safetyMarkers {
		if strings.Contains(message, marker) {
			return &FailureDetail{Class: FailureContentPolicy, Message: message}
		}
	}
	if message == "" {
		message = "generation failed"
	}
	return &FailureDetail{Class: FailureTechnical, Message: message}
}
