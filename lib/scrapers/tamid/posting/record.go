package posting

// NotAvailable marks a field the page did not provide instead of
// failing the whole record over it.
const NotAvailable = "N/A"

type Field struct {
	Name  string
	Value string
}

// Record is the validated output of one posting page. Field order is
// fixed by the extractor so the report renders deterministically. A
// non-empty record always carries a "name" field.
type Record struct {
	Fields []Field
}

func (r Record) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (r Record) IsZero() bool {
	return len(r.Fields) == 0
}

func (r *Record) add(name, value string) {
	r.Fields = append(r.Fields, Field{Name: name, Value: value})
}

type Reason string

const (
	// the page lacked its content panels, the id likely points at a
	// non-existent or access-denied posting
	ReasonRedirected Reason = "redirected"
	// the posting belongs to a different content track
	ReasonWrongCategory Reason = "wrong-category"
	// the page is missing structured sub-lists or detail rows
	ReasonIncompleteSchema Reason = "incomplete-schema"
	// the posting's start period is not the configured target period
	ReasonWrongPeriod Reason = "wrong-period"
	// a required fixed-position field came back empty
	ReasonMissingField Reason = "missing-field"
)

// Rejection is the non-fatal "no record here" outcome. It never carries
// partial record data, extraction is all or nothing per page.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) String() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}

func reject(reason Reason, detail string) (Record, *Rejection) {
	return Record{}, &Rejection{Reason: reason, Detail: detail}
}
