package imagestore

import (
	"encoding/json"
	"strconv"
)

// UploadResult is the store's response to an instance upload.
type UploadResult struct {
	ID            string `json:"ID"`
	ParentPatient string `json:"ParentPatient"`
	ParentSeries  string `json:"ParentSeries"`
	ParentStudy   string `json:"ParentStudy"`
	Path          string `json:"Path"`
	Status        string `json:"Status"`
}

// AlreadyStored reports whether the store recognized the upload as a
// duplicate of an instance it already holds.
func (r UploadResult) AlreadyStored() bool {
	return r.Status == "AlreadyStored"
}

// TagMap holds DICOM tags keyed by name. The store may emit numeric or
// boolean tag values; those are coerced to strings on decode. Array and
// object values are dropped.
type TagMap map[string]string

func (m *TagMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(TagMap, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var n float64
		if err := json.Unmarshal(v, &n); err == nil {
			out[k] = strconv.FormatFloat(n, 'f', -1, 64)
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			out[k] = strconv.FormatBool(b)
			continue
		}
		// arrays, objects, null
	}
	*m = out
	return nil
}

// Get returns the tag value, or the empty string when absent.
func (m TagMap) Get(name string) string {
	return m[name]
}

// InstanceDetails is the store's view of a single instance.
type InstanceDetails struct {
	ID            string `json:"ID"`
	ParentSeries  string `json:"ParentSeries"`
	MainDicomTags TagMap `json:"MainDicomTags"`
}

// SeriesDetails is the store's view of a series.
type SeriesDetails struct {
	ID            string `json:"ID"`
	ParentStudy   string `json:"ParentStudy"`
	MainDicomTags TagMap `json:"MainDicomTags"`
}

// StudyDetails is the store's view of a study.
type StudyDetails struct {
	ID                   string `json:"ID"`
	ParentPatient        string `json:"ParentPatient"`
	MainDicomTags        TagMap `json:"MainDicomTags"`
	PatientMainDicomTags TagMap `json:"PatientMainDicomTags"`
}
