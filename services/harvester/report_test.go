package harvester

import (
	"bytes"
	"strings"
	"testing"

	"tamid-harvester/lib/scrapers/tamid/posting"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestHumanizeLabel(t *testing.T) {
	testCases := []struct {
		field    string
		expected string
	}{
		{"company_description", "Company description"},
		{"tech_stack", "Tech stack"},
		{"url", "Url"},
		{"name", "Name"},
		{"", ""},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, HumanizeLabel(test.field))
	}
}

// serializing a fully populated record and re-parsing the document must
// recover the same field/label mapping, with url-typed fields as
// anchors
func TestReportRoundTrip(t *testing.T) {
	rec := posting.Record{Fields: []posting.Field{
		{Name: "name", Value: "Acme"},
		{Name: "industry", Value: "Fintech"},
		{Name: "website", Value: "https://acme.example"},
		{Name: "company_description", Value: "They move money <around>."},
		{Name: "tech_stack", Value: "Go, React"},
		{Name: "url", Value: "https://portal.example/posting?id=42"},
	}}

	var out bytes.Buffer
	report, err := NewReport(&out)
	require.NoError(t, err)
	require.NoError(t, report.AddRecord(rec))
	require.NoError(t, report.Close())
	require.Equal(t, 1, report.Entries())

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out.String()))
	require.NoError(t, err)

	// name and industry render as headings
	require.Equal(t, "Acme", strings.TrimSpace(doc.Find("h5.card-title").Text()))
	require.Equal(t, "Fintech", strings.TrimSpace(doc.Find("h6.card-subtitle").Text()))

	// url-typed fields render as anchors whose href and display text
	// match the field value
	links := map[string]string{}
	doc.Find("p.card-text a").Each(func(_ int, a *goquery.Selection) {
		links[strings.TrimSpace(a.Text())] = a.AttrOr("href", "")
	})
	require.Equal(t, map[string]string{
		"https://acme.example":                 "https://acme.example",
		"https://portal.example/posting?id=42": "https://portal.example/posting?id=42",
	}, links)

	// plain fields render as humanized label/value text
	labels := map[string]string{}
	doc.Find("p.card-text").Each(func(_ int, p *goquery.Selection) {
		label := strings.TrimSuffix(strings.TrimSpace(p.Find("strong").Text()), ":")
		if p.Find("a").Length() > 0 {
			return
		}
		value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p.Text()), label+":"))
		labels[label] = value
	})
	require.Equal(t, map[string]string{
		"Company description": "They move money <around>.",
		"Tech stack":          "Go, React",
	}, labels)
}

func TestReportNotAvailableWebsiteIsPlainText(t *testing.T) {
	rec := posting.Record{Fields: []posting.Field{
		{Name: "name", Value: "Acme"},
		{Name: "website", Value: posting.NotAvailable},
	}}

	var out bytes.Buffer
	report, err := NewReport(&out)
	require.NoError(t, err)
	require.NoError(t, report.AddRecord(rec))
	require.NoError(t, report.Close())

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out.String()))
	require.NoError(t, err)
	require.Equal(t, 0, doc.Find("p.card-text a").Length())
	require.Contains(t, doc.Find("p.card-text").Text(), posting.NotAvailable)
}

func TestReportCloseIsIdempotent(t *testing.T) {
	var out bytes.Buffer
	report, err := NewReport(&out)
	require.NoError(t, err)
	require.NoError(t, report.Close())
	require.NoError(t, report.Close())
	require.Equal(t, 1, strings.Count(out.String(), "</html>"))
}
