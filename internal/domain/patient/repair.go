package patient

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/meditrack/meditrack/internal/platform/dates"
)

// Stored records have gone through four shapes:
//
//	v1  single fullName, contactNumber, symptoms, currentMedications,
//	    insuranceProvider, flat has* flags, four-valued gender
//	v2  split names and mobileNo, still flat has* flags and medicalHistory
//	v3  cond_* checklist, gender, no consent or signature
//	v4  sex, consentGiven, signature, "other" companions
//
// upgrades[v] turns a v document into a v+1 document in place.
var upgrades = map[int]func(map[string]any){
	1: upgradeV1,
	2: upgradeV2,
	3: upgradeV3,
}

// Repair rebuilds a current-shape record from whatever was read back from
// storage. It never panics: unusable input yields a record holding only
// defaults.
func Repair(raw any) (rec *Record) {
	rec = &Record{SchemaVersion: CurrentSchemaVersion}
	defer func() {
		if r := recover(); r != nil {
			rec.SchemaVersion = CurrentSchemaVersion
		}
	}()

	doc := toDocument(raw)
	for v := DetectVersion(doc); v < CurrentSchemaVersion; v++ {
		upgrades[v](doc)
	}

	decodeFields(reflect.ValueOf(rec).Elem(), doc)

	if rec.ID == "" {
		rec.ID = asString(doc["_id"])
	}
	if name := BuildFullName(rec.FirstName, rec.MiddleName, rec.LastName); name != "" {
		rec.FullName = name
	}
	if ts, ok := dates.ParseTimestamp(rec.SubmissionDate); ok {
		rec.SubmissionDate = dates.FormatTimestamp(ts)
	}
	rec.SchemaVersion = CurrentSchemaVersion
	return rec
}

// DetectVersion infers the schema version of a stored document. An explicit
// schemaVersion wins; otherwise the shape decides.
func DetectVersion(doc map[string]any) int {
	if v, ok := asInt(doc["schemaVersion"]); ok && v >= 1 {
		if v > CurrentSchemaVersion {
			return CurrentSchemaVersion
		}
		return v
	}
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := doc[k]; ok {
				return true
			}
		}
		return false
	}
	switch {
	case has("contactNumber", "symptoms", "currentMedications", "insuranceProvider"),
		has("fullName") && !has("firstName"):
		return 1
	case has("hasHypertension", "hasDiabetes", "hasAsthma", "hasOtherConditions", "otherConditions", "medicalHistory"):
		return 2
	case has("gender") && !has("sex"),
		!has("consentGiven", "signature"):
		return 3
	}
	return CurrentSchemaVersion
}

func upgradeV1(doc map[string]any) {
	if _, ok := doc["firstName"]; !ok {
		parts := strings.Fields(asString(doc["fullName"]))
		switch len(parts) {
		case 0:
		case 1:
			doc["firstName"] = parts[0]
		case 2:
			doc["firstName"], doc["lastName"] = parts[0], parts[1]
		default:
			doc["firstName"] = parts[0]
			doc["middleName"] = strings.Join(parts[1:len(parts)-1], " ")
			doc["lastName"] = parts[len(parts)-1]
		}
	}
	rename(doc, "contactNumber", "mobileNo")
	rename(doc, "symptoms", "reasonForVisit")
	rename(doc, "insuranceProvider", "dentalInsurance")
	if rename(doc, "currentMedications", "q_medicationDetails") {
		setDefault(doc, "q_takingMedication", true)
	}
	doc["schemaVersion"] = 2
}

func upgradeV2(doc map[string]any) {
	rename(doc, "hasHypertension", "cond_highBloodPressure")
	rename(doc, "hasDiabetes", "cond_diabetes")
	rename(doc, "hasAsthma", "cond_asthma")
	rename(doc, "hasOtherConditions", "cond_others")

	var details []string
	for _, k := range []string{"otherConditions", "medicalHistory"} {
		if s := strings.TrimSpace(asString(doc[k])); s != "" {
			details = append(details, s)
		}
	}
	if len(details) > 0 && isBlank(doc["cond_others_details"]) {
		doc["cond_others_details"] = strings.Join(details, "; ")
		setDefault(doc, "cond_others", true)
	}
	doc["schemaVersion"] = 3
}

func upgradeV3(doc map[string]any) {
	if isBlank(doc["sex"]) {
		g := strings.ToLower(strings.TrimSpace(asString(doc["gender"])))
		if g == "male" || g == "female" {
			doc["sex"] = g
		} else {
			doc["sex"] = ""
		}
	}
	setDefault(doc, "consentGiven", false)
	setDefault(doc, "signature", "")
	setDefault(doc, "physicianSpecialtyOther", "")
	setDefault(doc, "bloodTypeOther", "")
	doc["schemaVersion"] = 4
}

// rename copies from into to unless to already holds a value. It reports
// whether a value was copied.
func rename(doc map[string]any, from, to string) bool {
	v, ok := doc[from]
	if !ok || isBlank(v) || !isBlank(doc[to]) {
		return false
	}
	doc[to] = v
	return true
}

func setDefault(doc map[string]any, key string, v any) {
	if _, ok := doc[key]; !ok {
		doc[key] = v
	}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func toDocument(raw any) map[string]any {
	switch t := raw.(type) {
	case map[string]any:
		doc := make(map[string]any, len(t))
		for k, v := range t {
			doc[k] = v
		}
		return doc
	case nil:
		return map[string]any{}
	case []byte:
		return unmarshalDocument(t)
	case string:
		return unmarshalDocument([]byte(t))
	case json.RawMessage:
		return unmarshalDocument(t)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return map[string]any{}
	}
	return unmarshalDocument(b)
}

func unmarshalDocument(b []byte) map[string]any {
	doc := map[string]any{}
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		return map[string]any{}
	}
	return doc
}

// decodeFields fills the struct v from doc by JSON field name, coercing
// mismatched types instead of failing.
func decodeFields(v reflect.Value, doc map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if sf.Anonymous && fv.Kind() == reflect.Struct {
			decodeFields(fv, doc)
			continue
		}
		name := jsonFieldName(sf)
		if name == "" {
			continue
		}
		raw, ok := doc[name]
		if !ok {
			continue
		}
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(asString(raw))
		case reflect.Bool:
			fv.SetBool(asBool(raw))
		case reflect.Int:
			if n, ok := asInt(raw); ok {
				fv.SetInt(int64(n))
			}
		case reflect.Ptr:
			if fv.Type().Elem().Kind() == reflect.String {
				fv.Set(reflect.ValueOf(asDate(raw)))
			}
		}
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return dates.FormatTimestamp(t)
	}
	return ""
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "on":
			return true
		}
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

// asDate yields a canonical date or nil. Unparseable input is dropped.
func asDate(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case time.Time:
		s = dates.ToCanonicalString(t)
	default:
		return nil
	}
	out, ok := dates.NormalizePtr(&s)
	if !ok {
		return nil
	}
	return out
}
