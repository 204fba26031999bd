package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// BPCategory is the blood pressure category of a reading.
type BPCategory string

const (
	BPNormal             BPCategory = "normal"
	BPElevated           BPCategory = "elevated"
	BPStage1             BPCategory = "hypertension_stage_1"
	BPStage2             BPCategory = "hypertension_stage_2"
	BPHypertensiveCrisis BPCategory = "hypertensive_crisis"
)

// Plausible reading range. Values outside it are treated as typing errors.
const (
	minSystolic  = 60
	maxSystolic  = 250
	minDiastolic = 40
	maxDiastolic = 150
)

var bpPattern = regexp.MustCompile(`(\d{2,3})\s*[/\\-]\s*(\d{2,3})`)

// BloodPressure is a systolic/diastolic reading in mmHg.
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// ParseBloodPressure extracts the first "120/80" style reading from text.
// It reports false when no reading is present and a ValidationError when the
// reading is outside the plausible range.
func ParseBloodPressure(text string) (BloodPressure, bool, error) {
	m := bpPattern.FindStringSubmatch(text)
	if m == nil {
		return BloodPressure{}, false, nil
	}
	sys, _ := strconv.Atoi(m[1])
	dia, _ := strconv.Atoi(m[2])
	bp := BloodPressure{Systolic: sys, Diastolic: dia}
	if sys < minSystolic || sys > maxSystolic || dia < minDiastolic || dia > maxDiastolic {
		return bp, true, NewValidationError("free_text",
			fmt.Sprintf("blood pressure %d/%d is outside the plausible range", sys, dia), text)
	}
	return bp, true, nil
}

// Category classifies the reading using the AHA adult thresholds.
func (bp BloodPressure) Category() BPCategory {
	switch {
	case bp.Systolic >= 180 || bp.Diastolic >= 120:
		return BPHypertensiveCrisis
	case bp.Systolic >= 140 || bp.Diastolic >= 90:
		return BPStage2
	case bp.Systolic >= 130 || bp.Diastolic >= 80:
		return BPStage1
	case bp.Systolic >= 120:
		return BPElevated
	default:
		return BPNormal
	}
}

// Severity maps the category onto the symptom severity scale.
func (c BPCategory) Severity() Severity {
	switch c {
	case BPNormal:
		return SeverityNone
	case BPElevated:
		return SeverityMild
	case BPStage1:
		return SeverityModerate
	case BPStage2, BPHypertensiveCrisis:
		return SeveritySevere
	default:
		return SeverityUnknown
	}
}

// String returns the reading as "sys/dia".
func (bp BloodPressure) String() string {
	return fmt.Sprintf("%d/%d", bp.Systolic, bp.Diastolic)
}
