package entities

// PatientRecord is the canonical, backend-ready representation of one
// patient row. Categorical fields are nil when absent and serialise as JSON
// null; numeric fields are always non-negative, TimeInHospital is at least 1.
type PatientRecord struct {
	PatientID        *string `json:"patient_id"`
	Age              *string `json:"age"`
	MedicalSpecialty *string `json:"medical_specialty"`
	TimeInHospital   int     `json:"time_in_hospital"`
	NOutpatient      int     `json:"n_outpatient"`
	NInpatient       int     `json:"n_inpatient"`
	NEmergency       int     `json:"n_emergency"`
	NProcedures      int     `json:"n_procedures"`
	NLabProcedures   int     `json:"n_lab_procedures"`
	NMedications     int     `json:"n_medications"`
	Diag1            *string `json:"diag_1"`
	Diag2            *string `json:"diag_2"`
	Diag3            *string `json:"diag_3"`
	GlucoseTest      *string `json:"glucose_test"`
	A1CTest          *string `json:"A1Ctest"`
	Change           *string `json:"change"`
	DiabetesMed      *string `json:"diabetes_med"`
}

// Row renders the record back into a raw row keyed by canonical column
// names. Normalizing the returned row yields an equal record.
func (p PatientRecord) Row() map[string]any {
	return map[string]any{
		"patient_id":        deref(p.PatientID),
		"age":               deref(p.Age),
		"medical_specialty": deref(p.MedicalSpecialty),
		"time_in_hospital":  p.TimeInHospital,
		"n_outpatient":      p.NOutpatient,
		"n_inpatient":       p.NInpatient,
		"n_emergency":       p.NEmergency,
		"n_procedures":      p.NProcedures,
		"n_lab_procedures":  p.NLabProcedures,
		"n_medications":     p.NMedications,
		"diag_1":            deref(p.Diag1),
		"diag_2":            deref(p.Diag2),
		"diag_3":            deref(p.Diag3),
		"glucose_test":      deref(p.GlucoseTest),
		"A1Ctest":           deref(p.A1CTest),
		"change":            deref(p.Change),
		"diabetes_med":      deref(p.DiabetesMed),
	}
}

// ID returns the patient identifier or "" when none was supplied.
func (p PatientRecord) ID() string {
	if p.PatientID == nil {
		return ""
	}
	return *p.PatientID
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
