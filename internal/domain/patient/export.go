package patient

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Patients"

type exportColumn struct {
	header string
	width  float64
	value  func(r *Record) interface{}
}

var exportColumns = []exportColumn{
	{"ID", 38, func(r *Record) interface{} { return r.ID }},
	{"Submitted", 26, func(r *Record) interface{} { return r.SubmissionDate }},
	{"Full Name", 30, func(r *Record) interface{} { return r.FullName }},
	{"Date of Birth", 14, func(r *Record) interface{} { return deref(r.DateOfBirth) }},
	{"Sex", 10, func(r *Record) interface{} { return r.Sex }},
	{"Mobile No", 16, func(r *Record) interface{} { return r.MobileNo }},
	{"Email", 28, func(r *Record) interface{} { return r.Email }},
	{"Address", 36, func(r *Record) interface{} { return r.Address }},
	{"Religion", 14, func(r *Record) interface{} { return r.Religion }},
	{"Nationality", 14, func(r *Record) interface{} { return r.Nationality }},
	{"Occupation", 18, func(r *Record) interface{} { return r.Occupation }},
	{"Dental Insurance", 18, func(r *Record) interface{} { return r.DentalInsurance }},
	{"Effective Date", 14, func(r *Record) interface{} { return deref(r.EffectiveDate) }},
	{"Referred By", 18, func(r *Record) interface{} { return r.ReferredBy }},
	{"Parent / Guardian", 24, func(r *Record) interface{} { return r.ParentOrGuardianName }},
	{"Guardian Email", 28, func(r *Record) interface{} { return r.GuardianEmail }},
	{"Previous Dentist", 20, func(r *Record) interface{} { return r.PreviousDentist }},
	{"Last Dental Visit", 16, func(r *Record) interface{} { return deref(r.LastDentalVisit) }},
	{"Physician", 22, func(r *Record) interface{} { return r.PhysicianName }},
	{"Specialty", 22, func(r *Record) interface{} { return specialtyLabel(r) }},
	{"Blood Type", 12, func(r *Record) interface{} { return bloodTypeLabel(r) }},
	{"Blood Pressure", 14, func(r *Record) interface{} { return r.BloodPressure }},
	{"Good Health", 12, func(r *Record) interface{} { return yesNo(r.GoodHealth) }},
	{"Taking Medication", 16, func(r *Record) interface{} { return yesNo(r.TakingMedication) }},
	{"Medication Details", 30, func(r *Record) interface{} { return r.MedicationDetails }},
	{"Tobacco", 10, func(r *Record) interface{} { return yesNo(r.UseTobacco) }},
	{"Pregnant", 10, func(r *Record) interface{} { return yesNo(r.IsPregnant) }},
	{"Allergies", 30, func(r *Record) interface{} { return joinFlags(r.AllergyFlags(), r.AllergyOtherDetails) }},
	{"Conditions", 40, func(r *Record) interface{} { return joinFlags(r.ConditionFlags(), r.OthersDetails) }},
	{"Reason for Visit", 40, func(r *Record) interface{} { return r.ReasonForVisit }},
	{"Consent", 10, func(r *Record) interface{} { return yesNo(r.ConsentGiven) }},
	{"Signature", 26, func(r *Record) interface{} { return r.Signature }},
}

// ExportXLSX writes records as a single-sheet workbook, one row per record
// in the order given.
func ExportXLSX(records []*Record, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, col := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, col.header); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(exportSheet, name, name, col.width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for r, rec := range records {
		for i, col := range exportColumns {
			v := col.value(rec)
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func specialtyLabel(r *Record) string {
	if r.PhysicianSpecialty == OtherOption && r.PhysicianSpecialtyOther != "" {
		return r.PhysicianSpecialtyOther
	}
	return r.PhysicianSpecialty
}

func bloodTypeLabel(r *Record) string {
	if r.BloodType == OtherOption && r.BloodTypeOther != "" {
		return r.BloodTypeOther
	}
	return r.BloodType
}

// joinFlags lists the labels of set flags. A set "Other"/"Others" flag is
// replaced by its details when given.
func joinFlags(flags []Flag, otherDetails string) string {
	var set []string
	for _, fl := range flags {
		if !fl.Set {
			continue
		}
		if (fl.Label == "Other" || fl.Label == "Others") && otherDetails != "" {
			set = append(set, fl.Label+": "+otherDetails)
			continue
		}
		set = append(set, fl.Label)
	}
	return strings.Join(set, ", ")
}
