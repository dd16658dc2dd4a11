package analysis

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists analyses and their findings.
//
// Replace implements the non-additive re-analysis semantics: any live
// analysis for the study is deleted before the new one is inserted, so
// callers should run it inside a transaction.
type Repository interface {
	Replace(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	GetByStudy(ctx context.Context, studyID uuid.UUID) (*Analysis, error)
	GetByInstance(ctx context.Context, instanceID uuid.UUID) (*Analysis, error)
	MarkReviewed(ctx context.Context, id uuid.UUID) error
}
