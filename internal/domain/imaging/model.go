package imaging

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an imaging order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderCompleted OrderStatus = "Completed"
	OrderCancelled OrderStatus = "Cancelled"
)

// VisitStatus is the lifecycle state of a patient visit.
type VisitStatus string

const (
	VisitWaiting    VisitStatus = "Waiting"
	VisitInProgress VisitStatus = "InProgress"
	VisitDone       VisitStatus = "Done"
)

// Modality classifies how a study was acquired.
type Modality string

const (
	ModalityXRay            Modality = "XRay"
	ModalityCTScan          Modality = "CTScan"
	ModalityMRI             Modality = "MRI"
	ModalityUltrasound      Modality = "Ultrasound"
	ModalityMammography     Modality = "Mammography"
	ModalityFluoroscopy     Modality = "Fluoroscopy"
	ModalityNuclearMedicine Modality = "NuclearMedicine"
)

// ParseModality maps a DICOM modality tag to a Modality. Unrecognized
// tags fall back to XRay.
func ParseModality(tag string) Modality {
	switch tag {
	case "CR", "DX", "XR":
		return ModalityXRay
	case "CT":
		return ModalityCTScan
	case "MR":
		return ModalityMRI
	case "US":
		return ModalityUltrasound
	case "MG":
		return ModalityMammography
	case "XA", "RF":
		return ModalityFluoroscopy
	case "NM", "PT":
		return ModalityNuclearMedicine
	default:
		return ModalityXRay
	}
}

// ParseStudyDate parses a DICOM DA value (yyyymmdd), falling back to the
// current time for empty or malformed input.
func ParseStudyDate(s string) time.Time {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// ParseTagNumber parses an integer tag value such as SeriesNumber or
// InstanceNumber. Returns nil when the tag is absent or malformed.
func ParseTagNumber(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

// Order is a clinician's request for an imaging procedure.
type Order struct {
	ID                 uuid.UUID   `json:"id"`
	VisitID            uuid.UUID   `json:"visit_id"`
	PatientID          uuid.UUID   `json:"patient_id"`
	RequestingDoctorID *uuid.UUID  `json:"requesting_doctor_id,omitempty"`
	BodyPart           string      `json:"body_part"`
	Modality           Modality    `json:"modality"`
	Status             OrderStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Visit is a patient encounter owning zero or more orders.
type Visit struct {
	ID        uuid.UUID   `json:"id"`
	PatientID uuid.UUID   `json:"patient_id"`
	Status    VisitStatus `json:"status"`
	VisitDate time.Time   `json:"visit_date"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Study is one imaging session. StudyUID is the externally-issued DICOM
// identifier; StoreID is the image store's own object id.
type Study struct {
	ID               uuid.UUID  `json:"id"`
	StudyUID         string     `json:"study_uid"`
	StoreID          string     `json:"store_id"`
	OrderID          uuid.UUID  `json:"order_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	AssignedDoctorID *uuid.UUID `json:"assigned_doctor_id,omitempty"`
	BodyPart         string     `json:"body_part"`
	Modality         Modality   `json:"modality"`
	Description      string     `json:"description,omitempty"`
	AccessionNumber  string     `json:"accession_number,omitempty"`
	StudyDate        time.Time  `json:"study_date"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Series groups instances sharing acquisition parameters.
type Series struct {
	ID          uuid.UUID `json:"id"`
	SeriesUID   string    `json:"series_uid"`
	StoreID     string    `json:"store_id"`
	StudyID     uuid.UUID `json:"study_id"`
	Number      *int      `json:"number,omitempty"`
	Modality    Modality  `json:"modality"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Instance is a single image object within a series.
type Instance struct {
	ID             uuid.UUID `json:"id"`
	SOPInstanceUID string    `json:"sop_instance_uid"`
	StoreID        string    `json:"store_id"`
	SeriesID       uuid.UUID `json:"series_id"`
	Number         *int      `json:"number,omitempty"`
	ImagePath      string    `json:"image_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// UploadCompletedKind tags events emitted after an eligible study gains
// a new instance.
const UploadCompletedKind = "upload.completed"

// UploadCompletedEvent announces a freshly ingested instance on an
// AI-eligible study.
type UploadCompletedEvent struct {
	StudyID    uuid.UUID
	InstanceID uuid.UUID
	UploadedAt time.Time
}

func (UploadCompletedEvent) Kind() string { return UploadCompletedKind }
