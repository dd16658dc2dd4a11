package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidims/aidims/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const analysisColumns = `id, study_id, model_version, classification_status,
	primary_finding, overall_confidence, reviewed, analyzed_at, created_at`

func (r *repoPG) Replace(ctx context.Context, a *Analysis) error {
	c := r.conn(ctx)

	// ai_finding rows cascade with their analysis.
	if _, err := c.Exec(ctx, `DELETE FROM ai_analysis WHERE study_id = $1`, a.StudyID); err != nil {
		return err
	}

	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	_, err := c.Exec(ctx, `
		INSERT INTO ai_analysis (
			id, study_id, model_version, classification_status,
			primary_finding, overall_confidence, reviewed, analyzed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.StudyID, a.ModelVersion, a.ClassificationStatus,
		a.PrimaryFinding, a.OverallConfidence, a.Reviewed, a.AnalyzedAt, a.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, f := range a.Findings {
		f.ID = uuid.New()
		f.AnalysisID = a.ID
		_, err := c.Exec(ctx, `
			INSERT INTO ai_finding (id, analysis_id, label, confidence, x_min, y_min, x_max, y_max)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			f.ID, f.AnalysisID, f.Label, f.Confidence, f.XMin, f.YMin, f.XMax, f.YMax,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	a, err := r.scanAnalysis(r.conn(ctx).QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM ai_analysis WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return r.withFindings(ctx, a)
}

func (r *repoPG) GetByStudy(ctx context.Context, studyID uuid.UUID) (*Analysis, error) {
	a, err := r.scanAnalysis(r.conn(ctx).QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM ai_analysis WHERE study_id = $1`, studyID))
	if err != nil {
		return nil, err
	}
	return r.withFindings(ctx, a)
}

func (r *repoPG) GetByInstance(ctx context.Context, instanceID uuid.UUID) (*Analysis, error) {
	a, err := r.scanAnalysis(r.conn(ctx).QueryRow(ctx, `
		SELECT a.id, a.study_id, a.model_version, a.classification_status,
			a.primary_finding, a.overall_confidence, a.reviewed, a.analyzed_at, a.created_at
		FROM ai_analysis a
		JOIN dicom_series se ON se.study_id = a.study_id
		JOIN dicom_instance i ON i.series_id = se.id
		WHERE i.id = $1`, instanceID))
	if err != nil {
		return nil, err
	}
	return r.withFindings(ctx, a)
}

func (r *repoPG) MarkReviewed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE ai_analysis SET reviewed = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) withFindings(ctx context.Context, a *Analysis) (*Analysis, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, analysis_id, label, confidence, x_min, y_min, x_max, y_max
		FROM ai_finding WHERE analysis_id = $1
		ORDER BY confidence DESC, id`, a.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.Label, &f.Confidence,
			&f.XMin, &f.YMin, &f.XMax, &f.YMax); err != nil {
			return nil, err
		}
		a.Findings = append(a.Findings, &f)
	}
	return a, rows.Err()
}

func (r *repoPG) scanAnalysis(row pgx.Row) (*Analysis, error) {
	var a Analysis
	err := row.Scan(
		&a.ID, &a.StudyID, &a.ModelVersion, &a.ClassificationStatus,
		&a.PrimaryFinding, &a.OverallConfidence, &a.Reviewed, &a.AnalyzedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
