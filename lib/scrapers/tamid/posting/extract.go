package posting

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"tamid-harvester/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Extractor turns one fetched posting page into a Record or a
// Rejection. Implementations are pure: the same id and body always
// produce the same outcome.
type Extractor interface {
	Track() string
	Extract(id int, body string) (Record, *Rejection)
}

type Options struct {
	// posting detail endpoint, id appended, recorded as the "url" field
	BaseUrl string
	// postings whose start period does not contain this string are
	// rejected (e.g. "2024")
	TargetPeriod string
}

// ForTrack selects the extractor for a content track.
func ForTrack(track string, opts Options) (Extractor, error) {
	switch track {
	case TrackTech:
		return extractor{spec: techSpec, opts: opts}, nil
	case TrackConsulting:
		return extractor{spec: consultingSpec, opts: opts}, nil
	}
	return nil, fmt.Errorf("unknown content track %q", track)
}

func Tracks() []string {
	return []string{TrackTech, TrackConsulting}
}

// portal markup signatures, shared by every track
const (
	panelSelector       = "div.u-shadow-v11.rounded.g-pa-30"
	subListSelector     = "ul.list-unstyled.margin-bottom-40"
	detailRowSelector   = "li.list-group-item"
	labelColSelector    = "div.col-xs-4"
	valueColSelector    = "div.col-xs-8"
	periodCellSelector  = "div.col-xs-6"
	projectDescSelector = "p.margin-bottom-40"

	minDetailRows = 6
	minSubLists   = 2
)

// deliverableField maps a record field to the labelled row it is read
// from: List indexes into the page's structured sub-lists, Label keys
// into that list's rows.
type deliverableField struct {
	Name  string
	List  int
	Label string
}

// trackSpec is what actually differs between content tracks.
type trackSpec struct {
	track string
	// the badge text that marks a posting as belonging to this track
	categoryMarker string
	// label-keyed fields pulled from the structured sub-lists
	deliverables []deliverableField
}

type extractor struct {
	spec trackSpec
	opts Options
}

func (e extractor) Track() string {
	return e.spec.track
}

// Extract runs the validation gates in fixed order, cheapest and most
// discriminating first; the first failing gate wins. Only after every
// gate passes are fields pulled.
func (e extractor) Extract(id int, body string) (Record, *Rejection) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return reject(ReasonRedirected, "unparseable page body")
	}

	// structural gate: both content panels must be present
	panels := doc.Find(panelSelector)
	if panels.Length() < 2 {
		return reject(ReasonRedirected, fmt.Sprintf("found %d content panels", panels.Length()))
	}
	companyPanel := panels.Eq(0)
	projectPanel := panels.Eq(1)

	// category gate
	if !e.hasCategoryMarker(doc) {
		return reject(ReasonWrongCategory, "missing badge "+strconv.Quote(e.spec.categoryMarker))
	}

	// schema-presence gate: enough structured sub-lists and enough
	// detail rows in the company panel
	subLists := doc.Find(subListSelector)
	if subLists.Length() < minSubLists {
		return reject(ReasonIncompleteSchema, fmt.Sprintf("found %d project info lists", subLists.Length()))
	}
	detailRows := htmlutil.LabelledRows(
		companyPanel.Find(detailRowSelector),
		labelColSelector, valueColSelector,
	)
	if len(detailRows) < minDetailRows {
		return reject(ReasonIncompleteSchema, fmt.Sprintf("found %d company detail rows", len(detailRows)))
	}

	// temporal gate: the project start period lives in the second
	// two-column cell of the project panel
	period := htmlutil.CleanText(projectPanel.Find(periodCellSelector).Eq(1).Text())
	if !strings.Contains(period, e.opts.TargetPeriod) {
		return reject(ReasonWrongPeriod, "start period "+strconv.Quote(period))
	}

	return e.pullFields(id, companyPanel, detailRows, subLists)
}

func (e extractor) hasCategoryMarker(doc *goquery.Document) bool {
	found := false
	doc.Find("strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if htmlutil.CleanText(s.Text()) == e.spec.categoryMarker {
			found = true
			return false
		}
		return true
	})
	return found
}

// pullFields assembles the record once every gate has passed. Company
// fields come from fixed positions, deliverable fields are label-keyed
// with an N/A fallback so a single reworded row does not sink the
// record.
func (e extractor) pullFields(
	id int,
	companyPanel *goquery.Selection,
	detailRows []htmlutil.LabelledRow,
	subLists *goquery.Selection,
) (Record, *Rejection) {
	name := detailRows[0].Value
	if name == "" {
		return reject(ReasonMissingField, "company name row is empty")
	}

	var rec Record
	rec.add("name", name)
	rec.add("industry", detailRows[1].Value)
	if detailRows[2].Href != "" {
		rec.add("website", detailRows[2].Href)
	} else {
		rec.add("website", NotAvailable)
	}
	rec.add("company_description", detailRows[3].Value)

	projectDesc := htmlutil.CleanText(companyPanel.Find(projectDescSelector).First().Text())
	if projectDesc == "" {
		slog.Debug("posting has no project description", "id", id)
		projectDesc = NotAvailable
	}
	rec.add("project_description", projectDesc)

	lists := make([][]htmlutil.LabelledRow, subLists.Length())
	subLists.Each(func(i int, ul *goquery.Selection) {
		lists[i] = htmlutil.LabelledRows(
			ul.Find(detailRowSelector),
			labelColSelector, valueColSelector,
		)
	})

	for _, field := range e.spec.deliverables {
		value := NotAvailable
		if field.List < len(lists) {
			if v, ok := htmlutil.LookupLabel(lists[field.List], field.Label); ok && v != "" {
				value = v
			}
		}
		rec.add(field.Name, value)
	}

	rec.add("url", e.opts.BaseUrl+strconv.Itoa(id))
	return rec, nil
}
