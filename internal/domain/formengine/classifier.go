package formengine

import "strings"

// FieldRole is the semantic category inferred for a form field.
type FieldRole int

const (
	PlainText FieldRole = iota
	Numeric
	Date
	SpecialtyReference
	DoctorReference
	PatientReference
)

var roleNames = map[FieldRole]string{
	PlainText:          "text",
	Numeric:            "numeric",
	Date:               "date",
	SpecialtyReference: "specialty",
	DoctorReference:    "doctor",
	PatientReference:   "patient",
}

func (r FieldRole) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// IsReference reports whether the role is rendered as a choice list.
func (r FieldRole) IsReference() bool {
	return r == SpecialtyReference || r == DoctorReference || r == PatientReference
}

// ParseFieldRole maps a role name ("specialty", "doctor", ...) back to its
// tag.
func ParseFieldRole(s string) (FieldRole, bool) {
	for r, name := range roleNames {
		if name == s {
			return r, true
		}
	}
	return PlainText, false
}

// InputType returns the HTML input type for non-reference roles.
func (r FieldRole) InputType() string {
	switch r {
	case Numeric:
		return "number"
	case Date:
		return "date"
	default:
		return "text"
	}
}

// Classifier maps a field name and its declared schema type to a role.
type Classifier func(field, declaredType string) FieldRole

// Classify is the default naming-convention classifier. Reference markers
// win over "fecha"; "fecha" wins over the declared type.
func Classify(field, declaredType string) FieldRole {
	name := strings.ToLower(field)
	switch {
	case strings.Contains(name, "especialidad"):
		return SpecialtyReference
	case strings.Contains(name, "medico"):
		return DoctorReference
	case strings.Contains(name, "paciente"):
		return PatientReference
	case strings.Contains(name, "fecha"):
		return Date
	case declaredType == "integer":
		return Numeric
	default:
		return PlainText
	}
}
