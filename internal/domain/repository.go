package domain

import "context"

// GenerationRepository persists workflow outcomes for later inspection.
type GenerationRepository interface {
	Create(ctx context.Context, rec *GenerationRecord) error
	ListRecent(ctx context.Context, limit int) ([]GenerationRecord, error)
}
