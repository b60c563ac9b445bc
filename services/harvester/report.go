package harvester

import (
	"html/template"
	"io"
	"strings"

	"tamid-harvester/lib/scrapers/tamid/posting"
)

// Report streams valid records into an HTML document, one
// self-contained card per record, in the order they are added (which is
// completion order, not id order). It is owned by the aggregator alone;
// no other component writes to it.
type Report struct {
	w       io.Writer
	entries int
	closed  bool
}

const reportHeader = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta http-equiv="X-UA-Compatible" content="IE=edge">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Projects</title>
    <!-- Bootstrap CSS -->
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.0/dist/css/bootstrap.min.css" rel="stylesheet">
</head>
<body class="bg-light">
<div class="container my-4">
`

const reportFooter = "</div></body></html>"

var cardTemplate = template.Must(template.New("card").Parse(`<div class="card mb-4"><div class="card-body">
{{- if .Title}}<h5 class="card-title"><b>{{.Title}}</b></h5>{{end}}
{{- if .Subtitle}}<h6 class="card-subtitle mb-2 text-muted">{{.Subtitle}}</h6>{{end}}
{{- range .Rows}}
{{- if .Href}}<p class="card-text"><strong>{{.Label}}:</strong> <a href="{{.Href}}" target="_blank">{{.Href}}</a></p>
{{- else}}<p class="card-text"><strong>{{.Label}}:</strong> {{.Value}}</p>{{end}}
{{- end}}
</div></div>
`))

type cardRow struct {
	Label string
	Value string
	Href  string
}

type card struct {
	Title    string
	Subtitle string
	Rows     []cardRow
}

func NewReport(w io.Writer) (*Report, error) {
	_, err := io.WriteString(w, reportHeader)
	if err != nil {
		return nil, err
	}
	return &Report{w: w}, nil
}

// linkFields render as anchors instead of plain labelled text.
var linkFields = map[string]bool{
	"url":     true,
	"website": true,
}

// HumanizeLabel derives a display label from a field name: underscores
// become spaces and the first letter is capitalized.
func HumanizeLabel(fieldName string) string {
	label := strings.ReplaceAll(strings.ToLower(fieldName), "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func (r *Report) AddRecord(rec posting.Record) error {
	c := card{}
	for _, f := range rec.Fields {
		switch f.Name {
		case "name":
			c.Title = f.Value
		case "industry":
			c.Subtitle = f.Value
		default:
			row := cardRow{Label: HumanizeLabel(f.Name)}
			if linkFields[f.Name] && f.Value != posting.NotAvailable {
				row.Href = f.Value
			} else {
				row.Value = f.Value
			}
			c.Rows = append(c.Rows, row)
		}
	}

	err := cardTemplate.Execute(r.w, c)
	if err != nil {
		return err
	}
	r.entries++
	return nil
}

func (r *Report) Entries() int {
	return r.entries
}

// Close writes the closing wrapper. It is idempotent so it can sit in a
// defer and still be called on the happy path: the document must end up
// syntactically complete on every exit path, including interruption.
func (r *Report) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	_, err := io.WriteString(r.w, reportFooter)
	return err
}
