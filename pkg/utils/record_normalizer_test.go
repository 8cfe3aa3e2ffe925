package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNormalize_EmptyRowUsesDefaults(t *testing.T) {
	n := NewRecordNormalizer()

	rec := n.Normalize(map[string]any{})

	assert.Nil(t, rec.PatientID)
	assert.Nil(t, rec.Age)
	assert.Nil(t, rec.MedicalSpecialty)
	assert.Nil(t, rec.Diag1)
	assert.Nil(t, rec.Diag2)
	assert.Nil(t, rec.Diag3)
	assert.Nil(t, rec.GlucoseTest)
	assert.Nil(t, rec.A1CTest)
	assert.Nil(t, rec.Change)
	assert.Nil(t, rec.DiabetesMed)
	assert.Equal(t, 1, rec.TimeInHospital)
	assert.Equal(t, 0, rec.NOutpatient)
	assert.Equal(t, 0, rec.NInpatient)
	assert.Equal(t, 0, rec.NEmergency)
	assert.Equal(t, 0, rec.NProcedures)
	assert.Equal(t, 0, rec.NLabProcedures)
	assert.Equal(t, 0, rec.NMedications)
}

func TestNormalize_Aliases(t *testing.T) {
	n := NewRecordNormalizer()

	rec := n.Normalize(map[string]any{
		"PatientID":         "P77",
		"Specialty":         "Cardiology",
		"outpatient_visits": "2",
		"N_IN":              3.0,
		"emergency_visits":  1,
		"LOS":               "4",
		"labs":              "41",
		"meds":              "15.9",
		"primary_diag":      "Circulatory",
		"diagnosis_2":       "Diabetes",
		"tertiary_diag":     nil,
		"max_glu_serum":     "Norm",
	})

	assert.Equal(t, strPtr("P77"), rec.PatientID)
	assert.Equal(t, strPtr("Cardiology"), rec.MedicalSpecialty)
	assert.Equal(t, 2, rec.NOutpatient)
	assert.Equal(t, 3, rec.NInpatient)
	assert.Equal(t, 1, rec.NEmergency)
	assert.Equal(t, 4, rec.TimeInHospital)
	assert.Equal(t, 41, rec.NLabProcedures)
	assert.Equal(t, 15, rec.NMedications)
	assert.Equal(t, strPtr("Circulatory"), rec.Diag1)
	assert.Equal(t, strPtr("Diabetes"), rec.Diag2)
	assert.Nil(t, rec.Diag3)
	assert.Equal(t, strPtr("Norm"), rec.GlucoseTest)
}

func TestNormalize_AliasPriority(t *testing.T) {
	n := NewRecordNormalizer()

	// An empty higher-priority alias does not shadow a later one.
	rec := n.Normalize(map[string]any{
		"n_outpatient":      "",
		"outpatient_visits": "5",
		"patient_id":        nil,
		"id":                "row-9",
	})

	assert.Equal(t, 5, rec.NOutpatient)
	assert.Equal(t, strPtr("row-9"), rec.PatientID)

	// Exact key beats a case-insensitive match of the same alias.
	rec = n.Normalize(map[string]any{"age": "[60-70)", "AGE": "[10-20)"})
	assert.Equal(t, strPtr("[60-70)"), rec.Age)
}

func TestNormalize_InvalidNumbersFallBack(t *testing.T) {
	n := NewRecordNormalizer()

	rec := n.Normalize(map[string]any{
		"time_in_hospital": "0",
		"n_outpatient":     "abc",
		"n_inpatient":      "-4",
		"n_emergency":      true,
		"n_procedures":     "NaN",
	})

	assert.Equal(t, 1, rec.TimeInHospital)
	assert.Equal(t, 0, rec.NOutpatient)
	assert.Equal(t, 0, rec.NInpatient)
	assert.Equal(t, 0, rec.NEmergency)
	assert.Equal(t, 0, rec.NProcedures)
}

func TestNormalize_NumericCategoricals(t *testing.T) {
	n := NewRecordNormalizer()

	rec := n.Normalize(map[string]any{"diag_1": 250.83, "patient_id": 1226.0})

	assert.Equal(t, strPtr("250.83"), rec.Diag1)
	assert.Equal(t, strPtr("1226"), rec.PatientID)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := NewRecordNormalizer()

	first := n.Normalize(map[string]any{
		"patientid":        "P1226",
		"Age":              "[50-60)",
		"los":              3,
		"n_lab_procedures": 39,
		"procedures":       10,
		"medications":      79,
		"n_inpatient":      10,
		"n_er":             9,
		"speciality":       "Other",
		"diag_1":           "Respiratory",
		"diag_2":           "Other",
		"diag_3":           "Circulatory",
		"a1c_test":         "High",
		"change":           "yes",
		"diabetesMed":      "yes",
	})
	second := n.Normalize(first.Row())

	assert.Equal(t, first, second)
	assert.Equal(t, strPtr("High"), second.A1CTest)
	assert.Equal(t, strPtr("yes"), second.DiabetesMed)
}

func TestNormalizeAll_PreservesOrder(t *testing.T) {
	n := NewRecordNormalizer()

	recs := n.NormalizeAll([]map[string]any{{"id": "a"}, {"id": "b"}, {"id": "c"}})

	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].ID())
	assert.Equal(t, "b", recs[1].ID())
	assert.Equal(t, "c", recs[2].ID())
}

func TestNewRecordNormalizerFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  n_outpatient: [op_visits]\n"), 0o644))

	n, err := NewRecordNormalizerFromFile(path)
	require.NoError(t, err)

	rec := n.Normalize(map[string]any{"OP_Visits": "6"})
	assert.Equal(t, 6, rec.NOutpatient)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("aliases:\n  shoe_size: [feet]\n"), 0o644))
	_, err = NewRecordNormalizerFromFile(bad)
	assert.Error(t, err)
}
