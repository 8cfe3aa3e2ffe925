package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"gopkg.in/yaml.v3"
)

// Canonical column names. The first alias of every field is its canonical
// name, which is what PatientRecord.Row emits.
const (
	FieldPatientID        = "patient_id"
	FieldAge              = "age"
	FieldMedicalSpecialty = "medical_specialty"
	FieldTimeInHospital   = "time_in_hospital"
	FieldNOutpatient      = "n_outpatient"
	FieldNInpatient       = "n_inpatient"
	FieldNEmergency       = "n_emergency"
	FieldNProcedures      = "n_procedures"
	FieldNLabProcedures   = "n_lab_procedures"
	FieldNMedications     = "n_medications"
	FieldDiag1            = "diag_1"
	FieldDiag2            = "diag_2"
	FieldDiag3            = "diag_3"
	FieldGlucoseTest      = "glucose_test"
	FieldA1CTest          = "A1Ctest"
	FieldChange           = "change"
	FieldDiabetesMed      = "diabetes_med"
)

// DefaultAliases lists, per canonical field, the column names accepted
// from uploaded spreadsheets in priority order.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		FieldPatientID:        {"patient_id", "patientid", "id"},
		FieldAge:              {"age", "age_group"},
		FieldMedicalSpecialty: {"medical_specialty", "specialty", "speciality"},
		FieldTimeInHospital:   {"time_in_hospital", "length_of_stay", "los"},
		FieldNOutpatient:      {"n_outpatient", "outpatient_visits", "n_out"},
		FieldNInpatient:       {"n_inpatient", "inpatient_visits", "n_in"},
		FieldNEmergency:       {"n_emergency", "emergency_visits", "n_er"},
		FieldNProcedures:      {"n_procedures", "procedures"},
		FieldNLabProcedures:   {"n_lab_procedures", "lab_procedures", "labs"},
		FieldNMedications:     {"n_medications", "medications", "meds"},
		FieldDiag1:            {"diag_1", "diagnosis_1", "primary_diag"},
		FieldDiag2:            {"diag_2", "diagnosis_2", "secondary_diag"},
		FieldDiag3:            {"diag_3", "diagnosis_3", "tertiary_diag"},
		FieldGlucoseTest:      {"glucose_test", "glucose", "max_glu_serum"},
		FieldA1CTest:          {"A1Ctest", "a1c_test", "a1c_result"},
		FieldChange:           {"change", "med_change"},
		FieldDiabetesMed:      {"diabetes_med", "diabetesmed"},
	}
}

// AliasFile is the on-disk format of extra column aliases.
//
//	aliases:
//	  n_outpatient: [op_visits]
type AliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// RecordNormalizer maps arbitrary tabular rows onto PatientRecord.
// It is safe for concurrent use once constructed.
type RecordNormalizer struct {
	aliases map[string][]string
}

// NewRecordNormalizer creates a normalizer with the built-in alias table.
func NewRecordNormalizer() *RecordNormalizer {
	return &RecordNormalizer{aliases: DefaultAliases()}
}

// NewRecordNormalizerFromFile creates a normalizer whose alias table is the
// built-in one extended with the aliases in a YAML (or JSON) file. Extra
// aliases are tried after the built-in ones.
func NewRecordNormalizerFromFile(path string) (*RecordNormalizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file: %w", err)
	}

	var file AliasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse alias file: %w", err)
	}

	n := NewRecordNormalizer()
	for field, extra := range file.Aliases {
		if _, ok := n.aliases[field]; !ok {
			return nil, fmt.Errorf("alias file: unknown field %q", field)
		}
		n.aliases[field] = append(n.aliases[field], extra...)
	}
	return n, nil
}

// Normalize maps one raw row to a canonical record. Missing or unusable
// numeric values become the field default (0, or 1 for time in hospital),
// missing categorical values become nil. It never fails.
func (n *RecordNormalizer) Normalize(row map[string]any) entities.PatientRecord {
	keys := sortedKeys(row)

	text := func(field string) *string {
		return toText(n.lookup(row, keys, field))
	}
	count := func(field string, def int) int {
		return toCount(n.lookup(row, keys, field), def)
	}

	return entities.PatientRecord{
		PatientID:        text(FieldPatientID),
		Age:              text(FieldAge),
		MedicalSpecialty: text(FieldMedicalSpecialty),
		TimeInHospital:   count(FieldTimeInHospital, 1),
		NOutpatient:      count(FieldNOutpatient, 0),
		NInpatient:       count(FieldNInpatient, 0),
		NEmergency:       count(FieldNEmergency, 0),
		NProcedures:      count(FieldNProcedures, 0),
		NLabProcedures:   count(FieldNLabProcedures, 0),
		NMedications:     count(FieldNMedications, 0),
		Diag1:            text(FieldDiag1),
		Diag2:            text(FieldDiag2),
		Diag3:            text(FieldDiag3),
		GlucoseTest:      text(FieldGlucoseTest),
		A1CTest:          text(FieldA1CTest),
		Change:           text(FieldChange),
		DiabetesMed:      text(FieldDiabetesMed),
	}
}

// NormalizeAll normalizes rows keeping their order.
func (n *RecordNormalizer) NormalizeAll(rows []map[string]any) []entities.PatientRecord {
	out := make([]entities.PatientRecord, len(rows))
	for i, row := range rows {
		out[i] = n.Normalize(row)
	}
	return out
}

// lookup tries each alias of field in order: exact key first, then any key
// equal ignoring case. The first non-empty value wins.
func (n *RecordNormalizer) lookup(row map[string]any, keys []string, field string) any {
	for _, alias := range n.aliases[field] {
		if v, ok := row[alias]; ok && present(v) {
			return v
		}
		for _, k := range keys {
			if k != alias && strings.EqualFold(k, alias) && present(row[k]) {
				return row[k]
			}
		}
	}
	return nil
}

func sortedKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case *string:
		return t != nil && strings.TrimSpace(*t) != ""
	}
	return true
}

func toText(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = strings.TrimSpace(t)
	case *string:
		if t == nil {
			return nil
		}
		s = strings.TrimSpace(*t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		s = t.String()
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	if s == "" {
		return nil
	}
	return &s
}

// toCount coerces v to a non-negative integer. Anything unparseable,
// negative or zero collapses to def.
func toCount(v any, def int) int {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return def
	}
	n := int(math.Trunc(f))
	if n == 0 {
		return def
	}
	return n
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case *string:
		if t == nil {
			return 0, false
		}
		return toFloat(*t)
	}
	return 0, false
}
