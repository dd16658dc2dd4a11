package imaging

import (
	"context"

	"github.com/google/uuid"
)

// StudyRepository persists studies. GetOrCreate is idempotent on StudyUID:
// concurrent first-ingestions of the same study resolve to one row.
type StudyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Study, error)
	GetByUID(ctx context.Context, studyUID string) (*Study, error)
	GetOrCreate(ctx context.Context, study *Study) (*Study, error)
}

// SeriesRepository persists series, idempotent on SeriesUID.
type SeriesRepository interface {
	GetByUID(ctx context.Context, seriesUID string) (*Series, error)
	GetOrCreate(ctx context.Context, series *Series) (*Series, error)
}

// InstanceRepository persists instances, idempotent on SOPInstanceUID.
type InstanceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Instance, error)
	GetByUID(ctx context.Context, sopInstanceUID string) (*Instance, error)
	GetOrCreate(ctx context.Context, instance *Instance) (*Instance, error)
	FirstByStudy(ctx context.Context, studyID uuid.UUID) (*Instance, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Instance, error)
}

// OrderRepository reads and transitions imaging orders. Row creation is
// owned by the upstream clinical services.
type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error
}

// VisitRepository reads and transitions patient visits.
type VisitRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status VisitStatus) error
}
