package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/aidims/aidims/internal/inference"
)

// Analysis is the AI verdict for one study. At most one live row exists
// per study; re-analysis replaces the previous one wholesale.
type Analysis struct {
	ID                   uuid.UUID  `json:"id"`
	StudyID              uuid.UUID  `json:"study_id"`
	ModelVersion         string     `json:"model_version"`
	ClassificationStatus string     `json:"classification_status"`
	PrimaryFinding       string     `json:"primary_finding"`
	OverallConfidence    float64    `json:"overall_confidence"`
	Reviewed             bool       `json:"reviewed"`
	AnalyzedAt           time.Time  `json:"analyzed_at"`
	CreatedAt            time.Time  `json:"created_at"`
	Findings             []*Finding `json:"findings"`
}

// Finding is one detection persisted from a model response. Bounding box
// coordinates the model did not provide stay nil and are stored as NULL.
type Finding struct {
	ID         uuid.UUID `json:"id"`
	AnalysisID uuid.UUID `json:"analysis_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	XMin       *float64  `json:"x_min,omitempty"`
	YMin       *float64  `json:"y_min,omitempty"`
	XMax       *float64  `json:"x_max,omitempty"`
	YMax       *float64  `json:"y_max,omitempty"`
}

// boundingBox splits an xmin, ymin, xmax, ymax coordinate list into
// individual pointers, nil for positions beyond what was provided.
func boundingBox(xyxy []float64) (xMin, yMin, xMax, yMax *float64) {
	at := func(i int) *float64 {
		if i >= len(xyxy) {
			return nil
		}
		v := xyxy[i]
		return &v
	}
	return at(0), at(1), at(2), at(3)
}

// buildAnalysis maps a model response to a persistable Analysis. The
// primary finding is the highest-confidence one, first occurrence
// winning ties. A response without findings falls back to the overall
// classification.
func buildAnalysis(studyID uuid.UUID, res *inference.Result, analyzedAt time.Time) *Analysis {
	a := &Analysis{
		StudyID:              studyID,
		ModelVersion:         res.ModelVersion,
		ClassificationStatus: res.Classification.Status,
		AnalyzedAt:           analyzedAt,
	}
	for i, f := range res.Findings {
		finding := &Finding{Label: f.Label, Confidence: f.ConfidenceScore}
		finding.XMin, finding.YMin, finding.XMax, finding.YMax = boundingBox(f.BboxXYXY)
		a.Findings = append(a.Findings, finding)
		if i == 0 || f.ConfidenceScore > a.OverallConfidence {
			a.PrimaryFinding = f.Label
			a.OverallConfidence = f.ConfidenceScore
		}
	}
	if len(a.Findings) == 0 {
		a.PrimaryFinding = res.Classification.Status
		a.OverallConfidence = res.Classification.Confidence
	}
	return a
}
