package patient

// CurrentSchemaVersion is stamped on every record written by this service.
const CurrentSchemaVersion = 4

// Enumerations accepted by the intake form.
var (
	Sexes                = []string{"male", "female"}
	BloodTypes           = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-", OtherOption}
	PhysicianSpecialties = []string{
		"general_practice", "internal_medicine", "family_medicine", "pediatrics",
		"cardiology", "endocrinology", "pulmonology", "neurology", "oncology",
		"obstetrics_gynecology", "orthopedics", "psychiatry", OtherOption,
	}
)

// OtherOption is the enum value that unlocks a free-text companion field.
const OtherOption = "other"

// Form is the user-supplied part of a patient record: everything the intake
// form or the doctor edit dialog submits. Date fields are pointers so that an
// absent date is distinguishable from a present one; nil and "" are treated
// alike.
type Form struct {
	FirstName  string `json:"firstName" validate:"required,max=50"`
	MiddleName string `json:"middleName" validate:"max=50"`
	LastName   string `json:"lastName" validate:"required,max=50"`

	DateOfBirth *string `json:"dateOfBirth"`
	Sex         string  `json:"sex" validate:"required,oneof=male female"`

	MobileNo string `json:"mobileNo" validate:"required,min=10,max=15"`
	Email    string `json:"email" validate:"required,max=100,email"`
	Address  string `json:"address" validate:"required,min=5,max=200"`

	Religion        string  `json:"religion" validate:"max=50"`
	Nationality     string  `json:"nationality" validate:"max=50"`
	HomeNo          string  `json:"homeNo" validate:"max=20"`
	Occupation      string  `json:"occupation" validate:"max=100"`
	OfficeNo        string  `json:"officeNo" validate:"max=20"`
	DentalInsurance string  `json:"dentalInsurance" validate:"max=100"`
	FaxNo           string  `json:"faxNo" validate:"max=20"`
	EffectiveDate   *string `json:"effectiveDate"`
	ReferredBy      string  `json:"referredBy" validate:"max=100"`

	ParentOrGuardianName       string `json:"parentOrGuardianName" validate:"max=100"`
	GuardianEmail              string `json:"guardianEmail" validate:"omitempty,max=100,email"`
	ParentOrGuardianOccupation string `json:"parentOrGuardianOccupation" validate:"max=100"`

	PreviousDentist string  `json:"previousDentist" validate:"max=100"`
	LastDentalVisit *string `json:"lastDentalVisit"`

	PhysicianName           string `json:"physicianName" validate:"max=100"`
	PhysicianSpecialty      string `json:"physicianSpecialty" validate:"omitempty,oneof=general_practice internal_medicine family_medicine pediatrics cardiology endocrinology pulmonology neurology oncology obstetrics_gynecology orthopedics psychiatry other"`
	PhysicianSpecialtyOther string `json:"physicianSpecialtyOther" validate:"max=100"`
	PhysicianOfficeAddress  string `json:"physicianOfficeAddress" validate:"max=200"`
	PhysicianOfficeNumber   string `json:"physicianOfficeNumber" validate:"max=20"`

	GoodHealth                    bool   `json:"q_goodHealth"`
	MedicalTreatmentNow           bool   `json:"q_medicalTreatmentNow"`
	MedicalTreatmentCondition     string `json:"q_medicalTreatmentCondition" validate:"max=500"`
	SeriousIllnessOperation       bool   `json:"q_seriousIllnessOperation"`
	SeriousIllnessOperationDetail string `json:"q_seriousIllnessOperationDetails" validate:"max=500"`
	Hospitalized                  bool   `json:"q_hospitalized"`
	HospitalizedDetails           string `json:"q_hospitalizedDetails" validate:"max=500"`
	TakingMedication              bool   `json:"q_takingMedication"`
	MedicationDetails             string `json:"q_medicationDetails" validate:"max=500"`
	UseTobacco                    bool   `json:"q_useTobacco"`
	UseDrugs                      bool   `json:"q_useDrugs"`

	AllergyLocalAnaesthetic bool   `json:"allergy_localAnaesthetic"`
	AllergyPenicillin       bool   `json:"allergy_penicillin"`
	AllergyAspirin          bool   `json:"allergy_aspirin"`
	AllergyLatex            bool   `json:"allergy_latex"`
	AllergyOther            bool   `json:"allergy_other"`
	AllergyOtherDetails     string `json:"allergy_other_details" validate:"max=200"`

	BloodType      string `json:"bloodType" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O- other"`
	BloodTypeOther string `json:"bloodTypeOther" validate:"max=20"`
	BloodPressure  string `json:"bloodPressure" validate:"max=20"`
	BleedingTime   string `json:"bleedingTime" validate:"max=50"`

	IsPregnant     bool `json:"q_isPregnant"`
	IsNursing      bool `json:"q_isNursing"`
	OnBirthControl bool `json:"q_onBirthControl"`

	Conditions

	ReasonForVisit string `json:"reasonForVisit" validate:"required,max=1000"`

	ConsentGiven bool   `json:"consentGiven" validate:"eq=true"`
	Signature    string `json:"signature" validate:"required,max=200"`
}

// Conditions is the medical-history checklist.
type Conditions struct {
	HighBloodPressure       bool   `json:"cond_highBloodPressure"`
	LowBloodPressure        bool   `json:"cond_lowBloodPressure"`
	EpilepsyConvulsions     bool   `json:"cond_epilepsyConvulsions"`
	AidsHiv                 bool   `json:"cond_aidsHiv"`
	Std                     bool   `json:"cond_std"`
	StomachTroublesUlcers   bool   `json:"cond_stomachTroublesUlcers"`
	FaintingSeizure         bool   `json:"cond_faintingSeizure"`
	RapidWeightLoss         bool   `json:"cond_rapidWeightLoss"`
	RadiationTherapy        bool   `json:"cond_radiationTherapy"`
	JointReplacementImplant bool   `json:"cond_jointReplacementImplant"`
	HeartSurgery            bool   `json:"cond_heartSurgery"`
	HeartAttack             bool   `json:"cond_heartAttack"`
	ThyroidProblem          bool   `json:"cond_thyroidProblem"`
	HeartDisease            bool   `json:"cond_heartDisease"`
	HeartMurmur             bool   `json:"cond_heartMurmur"`
	HepatitisLiverDisease   bool   `json:"cond_hepatitisLiverDisease"`
	RheumaticFever          bool   `json:"cond_rheumaticFever"`
	HayFeverAllergies       bool   `json:"cond_hayFeverAllergies"`
	RespiratoryProblems     bool   `json:"cond_respiratoryProblems"`
	HepatitisJaundice       bool   `json:"cond_hepatitisJaundice"`
	Tuberculosis            bool   `json:"cond_tuberculosis"`
	SwollenAnkles           bool   `json:"cond_swollenAnkles"`
	KidneyDisease           bool   `json:"cond_kidneyDisease"`
	Diabetes                bool   `json:"cond_diabetes"`
	ChestPain               bool   `json:"cond_chestPain"`
	Stroke                  bool   `json:"cond_stroke"`
	CancerTumors            bool   `json:"cond_cancerTumors"`
	Anemia                  bool   `json:"cond_anemia"`
	Angina                  bool   `json:"cond_angina"`
	Asthma                  bool   `json:"cond_asthma"`
	Emphysema               bool   `json:"cond_emphysema"`
	BleedingProblems        bool   `json:"cond_bleedingProblems"`
	BloodDisease            bool   `json:"cond_bloodDisease"`
	HeartInjuries           bool   `json:"cond_heartInjuries"`
	ArthritisRheumatism     bool   `json:"cond_arthritisRheumatism"`
	Others                  bool   `json:"cond_others"`
	OthersDetails           string `json:"cond_others_details" validate:"max=500"`
}

// Record is a stored patient record: the form plus the fields the service
// derives and owns.
type Record struct {
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	SubmissionDate string `json:"submissionDate"`
	SchemaVersion  int    `json:"schemaVersion"`
	Form
}

// Summary is the row shown in the doctor's table.
type Summary struct {
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	DateOfBirth    string `json:"dateOfBirth"`
	Sex            string `json:"sex"`
	MobileNo       string `json:"mobileNo"`
	Email          string `json:"email"`
	ReasonForVisit string `json:"reasonForVisit"`
	SubmissionDate string `json:"submissionDate"`
}

// Summarize returns the table row for r.
func (r *Record) Summarize() Summary {
	s := Summary{
		ID:             r.ID,
		FullName:       r.FullName,
		Sex:            r.Sex,
		MobileNo:       r.MobileNo,
		Email:          r.Email,
		ReasonForVisit: r.ReasonForVisit,
		SubmissionDate: r.SubmissionDate,
	}
	if r.DateOfBirth != nil {
		s.DateOfBirth = *r.DateOfBirth
	}
	return s
}

// Flag is a labelled checklist entry.
type Flag struct {
	Label string
	Set   bool
}

// ConditionFlags lists the checklist in display order.
func (c Conditions) ConditionFlags() []Flag {
	return []Flag{
		{"High Blood Pressure", c.HighBloodPressure},
		{"Low Blood Pressure", c.LowBloodPressure},
		{"Epilepsy / Convulsions", c.EpilepsyConvulsions},
		{"AIDS or HIV Infection", c.AidsHiv},
		{"Sexually Transmitted Disease", c.Std},
		{"Stomach Troubles / Ulcers", c.StomachTroublesUlcers},
		{"Fainting Seizure", c.FaintingSeizure},
		{"Rapid Weight Loss", c.RapidWeightLoss},
		{"Radiation Therapy", c.RadiationTherapy},
		{"Joint Replacement / Implant", c.JointReplacementImplant},
		{"Heart Surgery", c.HeartSurgery},
		{"Heart Attack", c.HeartAttack},
		{"Thyroid Problem", c.ThyroidProblem},
		{"Heart Disease", c.HeartDisease},
		{"Heart Murmur", c.HeartMurmur},
		{"Hepatitis / Liver Disease", c.HepatitisLiverDisease},
		{"Rheumatic Fever", c.RheumaticFever},
		{"Hay Fever / Allergies", c.HayFeverAllergies},
		{"Respiratory Problems", c.RespiratoryProblems},
		{"Hepatitis / Jaundice", c.HepatitisJaundice},
		{"Tuberculosis", c.Tuberculosis},
		{"Swollen Ankles", c.SwollenAnkles},
		{"Kidney Disease", c.KidneyDisease},
		{"Diabetes", c.Diabetes},
		{"Chest Pain", c.ChestPain},
		{"Stroke", c.Stroke},
		{"Cancer / Tumors", c.CancerTumors},
		{"Anemia", c.Anemia},
		{"Angina", c.Angina},
		{"Asthma", c.Asthma},
		{"Emphysema", c.Emphysema},
		{"Bleeding Problems", c.BleedingProblems},
		{"Blood Diseases", c.BloodDisease},
		{"Heart Injuries", c.HeartInjuries},
		{"Arthritis / Rheumatism", c.ArthritisRheumatism},
		{"Others", c.Others},
	}
}

// AllergyFlags lists the allergy checklist in display order.
func (f *Form) AllergyFlags() []Flag {
	return []Flag{
		{"Local Anaesthetic", f.AllergyLocalAnaesthetic},
		{"Penicillin / Antibiotics", f.AllergyPenicillin},
		{"Aspirin", f.AllergyAspirin},
		{"Latex", f.AllergyLatex},
		{"Other", f.AllergyOther},
	}
}
