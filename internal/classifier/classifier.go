package classifier

import (
	"context"
	"strings"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// Classifier assigns a priority from a complaint description.
type Classifier interface {
	Classify(ctx context.Context, description string) (domain.Priority, error)
}

var (
	highSignals = []string{
		"fire", "flood", "collapse", "collapsed", "live wire", "electrocut", "exposed wire",
		"accident", "injur", "overflow", "contaminat", "gas leak", "sinkhole", "emergency",
		"dangerous", "hazard", "burst",
	}
	lowSignals = []string{
		"graffiti", "paint", "faded", "cosmetic", "minor", "suggestion", "litter", "signboard",
	}
)

// KeywordClassifier matches hazard and cosmetic vocabulary.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the offline classifier.
func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{}
}

// Classify never fails.
func (KeywordClassifier) Classify(_ context.Context, description string) (domain.Priority, error) {
	text := strings.ToLower(description)
	for _, signal := range highSignals {
		if strings.Contains(text, signal) {
			return domain.PriorityHigh, nil
		}
	}
	for _, signal := range lowSignals {
		if strings.Contains(text, signal) {
			return domain.PriorityLow, nil
		}
	}
	return domain.PriorityMedium, nil
}
