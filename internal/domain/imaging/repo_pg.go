package imaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidims/aidims/internal/platform/db"
)

// queryable abstracts pgxpool.Pool and pgx.Tx so repositories run inside
// whichever the context carries.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Study Repository --

type studyRepoPG struct {
	pool *pgxpool.Pool
}

func NewStudyRepo(pool *pgxpool.Pool) StudyRepository {
	return &studyRepoPG{pool: pool}
}

const studyColumns = `id, study_uid, store_id, order_id, patient_id, assigned_doctor_id,
	body_part, modality, description, accession_number, study_date, created_at`

func (r *studyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	return scanStudy(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+studyColumns+` FROM dicom_study WHERE id = $1`, id))
}

func (r *studyRepoPG) GetByUID(ctx context.Context, studyUID string) (*Study, error) {
	return scanStudy(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+studyColumns+` FROM dicom_study WHERE study_uid = $1`, studyUID))
}

// GetOrCreate inserts the study, relying on the study_uid unique
// constraint to collapse concurrent first-inserts; on conflict the
// existing row is read back.
func (r *studyRepoPG) GetOrCreate(ctx context.Context, s *Study) (*Study, error) {
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()

	tag, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO dicom_study (
			id, study_uid, store_id, order_id, patient_id, assigned_doctor_id,
			body_part, modality, description, accession_number, study_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (study_uid) DO NOTHING`,
		s.ID, s.StudyUID, s.StoreID, s.OrderID, s.PatientID, s.AssignedDoctorID,
		s.BodyPart, s.Modality, s.Description, s.AccessionNumber, s.StudyDate, s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 1 {
		return s, nil
	}
	return r.GetByUID(ctx, s.StudyUID)
}

func scanStudy(row pgx.Row) (*Study, error) {
	var s Study
	err := row.Scan(
		&s.ID, &s.StudyUID, &s.StoreID, &s.OrderID, &s.PatientID, &s.AssignedDoctorID,
		&s.BodyPart, &s.Modality, &s.Description, &s.AccessionNumber, &s.StudyDate, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// -- Series Repository --

type seriesRepoPG struct {
	pool *pgxpool.Pool
}

func NewSeriesRepo(pool *pgxpool.Pool) SeriesRepository {
	return &seriesRepoPG{pool: pool}
}

const seriesColumns = `id, series_uid, store_id, study_id, number, modality, description, created_at`

func (r *seriesRepoPG) GetByUID(ctx context.Context, seriesUID string) (*Series, error) {
	return scanSeries(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+seriesColumns+` FROM dicom_series WHERE series_uid = $1`, seriesUID))
}

func (r *seriesRepoPG) GetOrCreate(ctx context.Context, s *Series) (*Series, error) {
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()

	tag, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO dicom_series (id, series_uid, store_id, study_id, number, modality, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (series_uid) DO NOTHING`,
		s.ID, s.SeriesUID, s.StoreID, s.StudyID, s.Number, s.Modality, s.Description, s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 1 {
		return s, nil
	}
	return r.GetByUID(ctx, s.SeriesUID)
}

func scanSeries(row pgx.Row) (*Series, error) {
	var s Series
	err := row.Scan(&s.ID, &s.SeriesUID, &s.StoreID, &s.StudyID, &s.Number,
		&s.Modality, &s.Description, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// -- Instance Repository --

type instanceRepoPG struct {
	pool *pgxpool.Pool
}

func NewInstanceRepo(pool *pgxpool.Pool) InstanceRepository {
	return &instanceRepoPG{pool: pool}
}

const instanceColumns = `id, sop_instance_uid, store_id, series_id, number, image_path, created_at`

func (r *instanceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return scanInstance(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM dicom_instance WHERE id = $1`, id))
}

func (r *instanceRepoPG) GetByUID(ctx context.Context, sopInstanceUID string) (*Instance, error) {
	return scanInstance(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM dicom_instance WHERE sop_instance_uid = $1`, sopInstanceUID))
}

func (r *instanceRepoPG) GetOrCreate(ctx context.Context, inst *Instance) (*Instance, error) {
	inst.ID = uuid.New()
	inst.CreatedAt = time.Now().UTC()

	tag, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO dicom_instance (id, sop_instance_uid, store_id, series_id, number, image_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sop_instance_uid) DO NOTHING`,
		inst.ID, inst.SOPInstanceUID, inst.StoreID, inst.SeriesID, inst.Number, inst.ImagePath, inst.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 1 {
		return inst, nil
	}
	return r.GetByUID(ctx, inst.SOPInstanceUID)
}

func (r *instanceRepoPG) FirstByStudy(ctx context.Context, studyID uuid.UUID) (*Instance, error) {
	return scanInstance(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT i.id, i.sop_instance_uid, i.store_id, i.series_id, i.number, i.image_path, i.created_at
		FROM dicom_instance i
		JOIN dicom_series s ON s.id = i.series_id
		WHERE s.study_id = $1
		ORDER BY i.created_at, i.id
		LIMIT 1`, studyID))
}

func (r *instanceRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Instance, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT i.id, i.sop_instance_uid, i.store_id, i.series_id, i.number, i.image_path, i.created_at
		FROM dicom_instance i
		JOIN dicom_series se ON se.id = i.series_id
		JOIN dicom_study st ON st.id = se.study_id
		WHERE st.order_id = $1
		ORDER BY i.created_at, i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(row pgx.Row) (*Instance, error) {
	var i Instance
	err := row.Scan(&i.ID, &i.SOPInstanceUID, &i.StoreID, &i.SeriesID,
		&i.Number, &i.ImagePath, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// -- Order Repository --

type orderRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, visit_id, patient_id, requesting_doctor_id, body_part, modality, status,
			created_at, updated_at
		FROM imaging_order WHERE id = $1`, id).Scan(
		&o.ID, &o.VisitID, &o.PatientID, &o.RequestingDoctorID, &o.BodyPart, &o.Modality, &o.Status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE imaging_order SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

// -- Visit Repository --

type visitRepoPG struct {
	pool *pgxpool.Pool
}

func NewVisitRepo(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	var v Visit
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, patient_id, status, visit_date, created_at, updated_at
		FROM patient_visit WHERE id = $1`, id).Scan(
		&v.ID, &v.PatientID, &v.Status, &v.VisitDate, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status VisitStatus) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE patient_visit SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}
