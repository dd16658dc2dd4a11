package imaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/aidims/aidims/internal/imagestore"
	"github.com/aidims/aidims/internal/platform/apperror"
	"github.com/aidims/aidims/internal/platform/db"
	"github.com/aidims/aidims/internal/platform/events"
)

// ImageStore is the slice of the image store client the service uses.
type ImageStore interface {
	Store(ctx context.Context, dicom []byte) (*imagestore.UploadResult, error)
	InstanceMetadata(ctx context.Context, storeID string) (*imagestore.InstanceDetails, error)
	SeriesMetadata(ctx context.Context, storeID string) (*imagestore.SeriesDetails, error)
	StudyMetadata(ctx context.Context, storeID string) (*imagestore.StudyDetails, error)
	Preview(ctx context.Context, storeID string) ([]byte, string, error)
	File(ctx context.Context, storeID string) ([]byte, string, error)
}

// Publisher accepts events for asynchronous dispatch.
type Publisher interface {
	Publish(ev events.Event) error
}

// Service runs the ingestion flow: store the object externally, mirror
// its study/series/instance hierarchy locally, advance the order and
// visit, and announce AI-eligible uploads on the bus.
type Service struct {
	store     ImageStore
	studies   StudyRepository
	series    SeriesRepository
	instances InstanceRepository
	orders    OrderRepository
	visits    VisitRepository
	bus       Publisher
	tx        db.TxRunner
	log       zerolog.Logger
}

func NewService(
	store ImageStore,
	studies StudyRepository,
	series SeriesRepository,
	instances InstanceRepository,
	orders OrderRepository,
	visits VisitRepository,
	bus Publisher,
	tx db.TxRunner,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:     store,
		studies:   studies,
		series:    series,
		instances: instances,
		orders:    orders,
		visits:    visits,
		bus:       bus,
		tx:        tx,
		log:       log,
	}
}

// Ingest uploads a DICOM object and materializes its hierarchy.
//
// The store write is fatal on failure. Metadata read-back is not: the
// object is already safely stored, so a read-back failure logs a warning
// and returns the upload result without local bookkeeping. Local writes
// and status transitions commit or roll back as one transaction. The
// upload-completed event is published only for eligible studies, and a
// publish failure never fails the ingestion.
func (s *Service) Ingest(ctx context.Context, image []byte, orderID, patientID uuid.UUID) (*imagestore.UploadResult, error) {
	if len(image) == 0 {
		return nil, apperror.Validation("uploaded file is empty")
	}

	result, err := s.store.Store(ctx, image)
	if err != nil {
		return nil, err
	}

	instMeta, err := s.store.InstanceMetadata(ctx, result.ID)
	if err != nil {
		s.logMetadataSkip(result.ID, "instance", err)
		return result, nil
	}
	serMeta, err := s.store.SeriesMetadata(ctx, result.ParentSeries)
	if err != nil {
		s.logMetadataSkip(result.ID, "series", err)
		return result, nil
	}
	stuMeta, err := s.store.StudyMetadata(ctx, result.ParentStudy)
	if err != nil {
		s.logMetadataSkip(result.ID, "study", err)
		return result, nil
	}

	var study *Study
	var instance *Instance
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		study, instance, err = s.materialize(ctx, result, instMeta, serMeta, stuMeta, orderID, patientID)
		if err != nil {
			return err
		}
		return s.advanceOrderAndVisit(ctx, study.OrderID)
	})
	if err != nil {
		return nil, err
	}

	if elig := CheckEligibility(study.BodyPart, study.Modality); elig.Eligible {
		ev := UploadCompletedEvent{
			StudyID:    study.ID,
			InstanceID: instance.ID,
			UploadedAt: time.Now().UTC(),
		}
		if err := s.bus.Publish(ev); err != nil {
			s.log.Warn().Err(err).
				Str("study_id", study.ID.String()).
				Msg("upload-completed event not published")
		}
	}

	return result, nil
}

func (s *Service) materialize(
	ctx context.Context,
	result *imagestore.UploadResult,
	instMeta *imagestore.InstanceDetails,
	serMeta *imagestore.SeriesDetails,
	stuMeta *imagestore.StudyDetails,
	orderID, patientID uuid.UUID,
) (*Study, *Instance, error) {
	studyUID := stuMeta.MainDicomTags.Get("StudyInstanceUID")
	if studyUID == "" {
		return nil, nil, apperror.Consistency(nil, "store returned study %s without StudyInstanceUID", result.ParentStudy)
	}

	study, err := s.studies.GetByUID(ctx, studyUID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if orderID == uuid.Nil || patientID == uuid.Nil {
			return nil, nil, apperror.Validation("order id and patient id are required for a new study")
		}
		order, err := s.orders.GetByID(ctx, orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperror.NotFound("order %s not found", orderID)
		} else if err != nil {
			return nil, nil, err
		}
		study, err = s.studies.GetOrCreate(ctx, &Study{
			StudyUID:         studyUID,
			StoreID:          result.ParentStudy,
			OrderID:          order.ID,
			PatientID:        patientID,
			AssignedDoctorID: order.RequestingDoctorID,
			BodyPart:         order.BodyPart,
			Modality:         ParseModality(serMeta.MainDicomTags.Get("Modality")),
			Description:      stuMeta.MainDicomTags.Get("StudyDescription"),
			AccessionNumber:  stuMeta.MainDicomTags.Get("AccessionNumber"),
			StudyDate:        ParseStudyDate(stuMeta.MainDicomTags.Get("StudyDate")),
		})
		if err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	}

	series, err := s.series.GetOrCreate(ctx, &Series{
		SeriesUID:   serMeta.MainDicomTags.Get("SeriesInstanceUID"),
		StoreID:     result.ParentSeries,
		StudyID:     study.ID,
		Number:      ParseTagNumber(serMeta.MainDicomTags.Get("SeriesNumber")),
		Modality:    ParseModality(serMeta.MainDicomTags.Get("Modality")),
		Description: serMeta.MainDicomTags.Get("SeriesDescription"),
	})
	if err != nil {
		return nil, nil, err
	}

	instance, err := s.instances.GetOrCreate(ctx, &Instance{
		SOPInstanceUID: instMeta.MainDicomTags.Get("SOPInstanceUID"),
		StoreID:        result.ID,
		SeriesID:       series.ID,
		Number:         ParseTagNumber(instMeta.MainDicomTags.Get("InstanceNumber")),
		ImagePath:      result.Path,
	})
	if err != nil {
		return nil, nil, err
	}
	return study, instance, nil
}

func (s *Service) advanceOrderAndVisit(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.Consistency(err, "study references missing order %s", orderID)
	} else if err != nil {
		return err
	}
	if order.Status != OrderCompleted {
		if err := s.orders.UpdateStatus(ctx, order.ID, OrderCompleted); err != nil {
			return err
		}
	}

	visit, err := s.visits.GetByID(ctx, order.VisitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.Consistency(err, "order %s references missing visit %s", order.ID, order.VisitID)
	} else if err != nil {
		return err
	}
	// Waiting after ingestion means "ready for clinical review".
	if visit.Status != VisitWaiting {
		if err := s.visits.UpdateStatus(ctx, visit.ID, VisitWaiting); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) logMetadataSkip(storeID, level string, err error) {
	s.log.Warn().Err(err).
		Str("store_id", storeID).
		Str("level", level).
		Msg("metadata read-back failed, object stored without local records")
}

// InstancesByOrder lists the instances ingested for an order.
func (s *Service) InstancesByOrder(ctx context.Context, orderID uuid.UUID) ([]*Instance, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("order %s not found", orderID)
		}
		return nil, err
	}
	return s.instances.ListByOrder(ctx, orderID)
}

// InstancePreview proxies the store's rendered preview for an instance.
func (s *Service) InstancePreview(ctx context.Context, storeID string) ([]byte, string, error) {
	return s.store.Preview(ctx, storeID)
}

// InstanceFile proxies the original DICOM object for an instance.
func (s *Service) InstanceFile(ctx context.Context, storeID string) ([]byte, string, error) {
	return s.store.File(ctx, storeID)
}
