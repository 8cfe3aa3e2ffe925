package entities

import (
	"bytes"
	"encoding/json"
)

// Risk labels returned by the prediction service.
const (
	RiskLabelHigh = "High risk"
	RiskLabelLow  = "Low risk"
)

// Contribution is one feature attribution (SHAP value) of a prediction.
// ShapValue is nil when the service sent something that is not a number.
type Contribution struct {
	Feature   string   `json:"feature"`
	ShapValue *float64 `json:"shap_value"`
}

// UnmarshalJSON tolerates non-numeric shap values so that one bad entry
// does not discard the whole explanation.
func (c *Contribution) UnmarshalJSON(data []byte) error {
	var raw struct {
		Feature   *string         `json:"feature"`
		ShapValue json.RawMessage `json:"shap_value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Feature = ""
	if raw.Feature != nil {
		c.Feature = *raw.Feature
	}

	c.ShapValue = nil
	trimmed := bytes.TrimSpace(raw.ShapValue)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err == nil {
		c.ShapValue = &v
	}
	return nil
}

// Explanation is the body of a successful POST /explain.
type Explanation struct {
	RiskLabel              string         `json:"risk_label"`
	ReadmissionProbability float64        `json:"readmission_probability"`
	TopContributions       []Contribution `json:"top_contributions"`
	Reasons                []string       `json:"reasons"`
}

// IsHighRisk reports whether the service flagged the patient.
func (e *Explanation) IsHighRisk() bool {
	return e != nil && e.RiskLabel == RiskLabelHigh
}

// ExplanationResult is one row of the dashboard result list: the
// explanation (or the failure) merged with the record that produced it.
// Exactly one of Explanation and Error is set.
type ExplanationResult struct {
	Index     int           `json:"index"`
	PatientID *string       `json:"patient_id"`
	Input     PatientRecord `json:"input"`
	*Explanation
	Error string `json:"error,omitempty"`
}

// NewSuccessResult builds a successful result row.
func NewSuccessResult(index int, input PatientRecord, explanation *Explanation) ExplanationResult {
	return ExplanationResult{
		Index:       index,
		PatientID:   input.PatientID,
		Input:       input,
		Explanation: explanation,
	}
}

// NewFailedResult builds a result row for a record the service could not
// explain.
func NewFailedResult(index int, input PatientRecord, reason string) ExplanationResult {
	return ExplanationResult{
		Index:     index,
		PatientID: input.PatientID,
		Input:     input,
		Error:     reason,
	}
}

// Failed reports whether the row carries an error instead of a prediction.
func (r ExplanationResult) Failed() bool {
	return r.Explanation == nil
}
