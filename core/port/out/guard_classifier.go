package out

import (
	"context"

	"guard_server/core/domain"
)

// Classifier is a classification strategy producing labels for normalized text.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) ([]domain.Label, error)
}

// RemoteClassifier is a strategy that needs a caller-supplied API token.
type RemoteClassifier interface {
	Name() string
	ClassifyWithToken(ctx context.Context, text, apiToken string) ([]domain.Label, error)
}

// ResultCache memoizes classification results by cache key.
type ResultCache interface {
	Get(ctx context.Context, key string) (domain.ClassificationResult, bool)
	Put(ctx context.Context, key string, result domain.ClassificationResult)
	Clear(ctx context.Context) error
}

// SlotWaiter blocks until the caller may issue the next remote call.
type SlotWaiter interface {
	Wait(ctx context.Context) error
}
