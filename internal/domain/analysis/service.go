package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/aidims/aidims/internal/domain/imaging"
	"github.com/aidims/aidims/internal/inference"
	"github.com/aidims/aidims/internal/platform/apperror"
	"github.com/aidims/aidims/internal/platform/db"
	"github.com/aidims/aidims/internal/platform/events"
)

// Previewer fetches rendered previews from the image store.
type Previewer interface {
	Preview(ctx context.Context, storeID string) ([]byte, string, error)
}

// Predictor runs the inference model on a single image.
type Predictor interface {
	Predict(ctx context.Context, image []byte, filename string) (*inference.Result, error)
	Healthy(ctx context.Context) bool
}

// Service orchestrates AI analysis: preview retrieval, inference, and
// replace-style persistence of the result.
type Service struct {
	repo      Repository
	studies   imaging.StudyRepository
	instances imaging.InstanceRepository
	store     Previewer
	ai        Predictor
	tx        db.TxRunner
	log       zerolog.Logger
}

func NewService(
	repo Repository,
	studies imaging.StudyRepository,
	instances imaging.InstanceRepository,
	store Previewer,
	ai Predictor,
	tx db.TxRunner,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		studies:   studies,
		instances: instances,
		store:     store,
		ai:        ai,
		tx:        tx,
		log:       log,
	}
}

// HandleUploadCompleted is the bus handler for upload-completed events.
// Eligibility is re-checked as a guard against a misbehaving publisher;
// an ineligible study is dropped with a warning rather than failed.
func (s *Service) HandleUploadCompleted(ctx context.Context, ev events.Event) error {
	uc, ok := ev.(imaging.UploadCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", ev)
	}

	study, err := s.studies.GetByID(ctx, uc.StudyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("study %s not found", uc.StudyID)
	} else if err != nil {
		return err
	}

	if elig := imaging.CheckEligibility(study.BodyPart, study.Modality); !elig.Eligible {
		s.log.Warn().
			Str("study_id", study.ID.String()).
			Str("reason", elig.Reason).
			Msg("ineligible study on the queue, dropping")
		return nil
	}

	_, err = s.analyze(ctx, study, uc.InstanceID)
	return err
}

// AnalyzeStudy runs an on-demand analysis for a study, replacing any
// previous result. A zero instanceID means the study's first instance.
func (s *Service) AnalyzeStudy(ctx context.Context, studyID, instanceID uuid.UUID) (*Analysis, error) {
	study, err := s.studies.GetByID(ctx, studyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("study %s not found", studyID)
	} else if err != nil {
		return nil, err
	}
	if elig := imaging.CheckEligibility(study.BodyPart, study.Modality); !elig.Eligible {
		return nil, apperror.Validation("%s", elig.Reason)
	}
	return s.analyze(ctx, study, instanceID)
}

func (s *Service) analyze(ctx context.Context, study *imaging.Study, instanceID uuid.UUID) (*Analysis, error) {
	var inst *imaging.Instance
	var err error
	if instanceID != uuid.Nil {
		inst, err = s.instances.GetByID(ctx, instanceID)
	} else {
		inst, err = s.instances.FirstByStudy(ctx, study.ID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("no instance available for study %s", study.ID)
	} else if err != nil {
		return nil, err
	}

	preview, _, err := s.store.Preview(ctx, inst.StoreID)
	if err != nil {
		return nil, err
	}

	res, err := s.ai.Predict(ctx, preview, inst.StoreID+".png")
	if err != nil {
		return nil, err
	}

	result := buildAnalysis(study.ID, res, time.Now().UTC())
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.repo.Replace(ctx, result)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("study_id", study.ID.String()).
		Str("model_version", result.ModelVersion).
		Str("primary_finding", result.PrimaryFinding).
		Int("findings", len(result.Findings)).
		Msg("analysis persisted")
	return result, nil
}

// Availability reports whether a study can be analyzed and whether a
// result already exists.
type Availability struct {
	imaging.Eligibility
	ServiceUp   bool `json:"service_up"`
	HasAnalysis bool `json:"has_analysis"`
}

// CheckAvailability evaluates eligibility, inference-service health, and
// the presence of an existing analysis for a study.
func (s *Service) CheckAvailability(ctx context.Context, studyID uuid.UUID) (*Availability, error) {
	study, err := s.studies.GetByID(ctx, studyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("study %s not found", studyID)
	} else if err != nil {
		return nil, err
	}

	av := &Availability{
		Eligibility: imaging.CheckEligibility(study.BodyPart, study.Modality),
		ServiceUp:   s.ai.Healthy(ctx),
	}
	if _, err := s.repo.GetByStudy(ctx, studyID); err == nil {
		av.HasAnalysis = true
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return av, nil
}

// GetByStudy returns the live analysis for a study.
func (s *Service) GetByStudy(ctx context.Context, studyID uuid.UUID) (*Analysis, error) {
	a, err := s.repo.GetByStudy(ctx, studyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("no analysis yet for study %s", studyID)
	}
	return a, err
}

// GetByID returns a single analysis by its own id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("analysis %s not found", id)
	}
	return a, err
}

// GetByInstance resolves the analysis covering the study an instance
// belongs to.
func (s *Service) GetByInstance(ctx context.Context, instanceID uuid.UUID) (*Analysis, error) {
	a, err := s.repo.GetByInstance(ctx, instanceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("no analysis yet for instance %s", instanceID)
	}
	return a, err
}

// MarkReviewed flags an analysis as seen by a clinician.
func (s *Service) MarkReviewed(ctx context.Context, id uuid.UUID) error {
	err := s.repo.MarkReviewed(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("analysis %s not found", id)
	}
	return err
}
