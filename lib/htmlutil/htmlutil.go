package htmlutil

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText trims a scraped string and collapses runs of inner
// whitespace, which the portal's markup is full of.
func CleanText(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// LabelledRow is one label/value row of the portal's two-column list
// layout (a label cell next to a value cell).
type LabelledRow struct {
	Label string
	Value string
	// href of the first anchor inside the value cell, if any
	Href string
}

// LabelledRows parses every list item in `sel` that follows the portal's
// label/value column convention. Rows missing either cell are kept with
// the missing side empty so positional lookups stay stable.
func LabelledRows(sel *goquery.Selection, labelCol, valueCol string) []LabelledRow {
	var rows []LabelledRow
	sel.Each(func(_ int, li *goquery.Selection) {
		row := LabelledRow{
			Label: CleanText(li.Find(labelCol).First().Text()),
		}
		value := li.Find(valueCol).First()
		row.Value = CleanText(value.Text())
		if a := value.Find("a").First(); a.Length() > 0 {
			row.Href = strings.TrimSpace(a.AttrOr("href", ""))
		}
		rows = append(rows, row)
	})
	return rows
}

// how close a fuzzy label match has to be before it counts
const labelSimilarityThreshold = 0.88

// LookupLabel finds the value whose label contains `label`. When no row
// matches exactly, the closest label by Jaro-Winkler similarity is used
// as long as it clears the threshold; below that, ok is false.
func LookupLabel(rows []LabelledRow, label string) (string, bool) {
	for _, row := range rows {
		if strings.Contains(row.Label, label) {
			return row.Value, true
		}
	}

	best := -1
	bestSim := 0.0
	for i, row := range rows {
		if row.Label == "" {
			continue
		}
		sim := matchr.JaroWinkler(row.Label, label, false)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	if best >= 0 && bestSim >= labelSimilarityThreshold {
		return rows[best].Value, true
	}
	return "", false
}
