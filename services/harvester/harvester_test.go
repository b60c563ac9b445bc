package harvester

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tamid-harvester/lib/scrapers/tamid/posting"
	"tamid-harvester/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/mazen160/go-random"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned page bodies keyed by id; unknown ids get an
// empty page (which extractors reject as redirected).
type fakeFetcher struct {
	pages map[int]string
	errs  map[int]error
}

func (f *fakeFetcher) FetchPosting(ctx context.Context, id int) (string, error) {
	if err, ok := f.errs[id]; ok {
		return "", err
	}
	return f.pages[id], nil
}

func (f *fakeFetcher) PostingURL(id int) string {
	return fmt.Sprintf("https://portal.example/posting?id=%d", id)
}

// passthroughExtractor accepts any non-empty body as a one-field record
// and rejects empty ones.
type passthroughExtractor struct{}

func (passthroughExtractor) Track() string { return "test" }

func (passthroughExtractor) Extract(id int, body string) (posting.Record, *posting.Rejection) {
	if body == "" {
		return posting.Record{}, &posting.Rejection{Reason: posting.ReasonRedirected}
	}
	var rec posting.Record
	rec.Fields = append(rec.Fields, posting.Field{Name: "name", Value: body})
	return rec, nil
}

// every id in the range must surface exactly once, with no duplicates
// and no drops, regardless of range shape
func TestEveryIdObservedExactlyOnce(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/harvester")
	defer cleanup()

	for trial := 0; trial < 20; trial++ {
		start, err := random.IntRange(1, 1000)
		require.NoError(t, err)
		span, err := random.IntRange(0, 60)
		require.NoError(t, err)
		end := start + span

		fetcher := &fakeFetcher{pages: map[int]string{}, errs: map[int]error{}}
		for id := start; id <= end; id++ {
			switch id % 3 {
			case 0:
				fetcher.pages[id] = fmt.Sprintf("company %d", id)
			case 1:
				fetcher.pages[id] = ""
			case 2:
				fetcher.errs[id] = fmt.Errorf("connection reset")
			}
		}

		outcomes := Run(context.Background(), fetcher, passthroughExtractor{}, Options{
			Start:       start,
			End:         end,
			Concurrency: 7,
		})

		seen := map[int]int{}
		for outcome := range outcomes {
			seen[outcome.ID]++
		}

		require.Len(t, seen, end-start+1)
		for id := start; id <= end; id++ {
			require.Equal(t, 1, seen[id], "id %d", id)
		}
	}
}

func TestSingleIdRange(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]string{5: "only"}}

	outcomes := Run(context.Background(), fetcher, passthroughExtractor{}, Options{
		Start: 5,
		End:   5,
	})

	var collected []Outcome
	for outcome := range outcomes {
		collected = append(collected, outcome)
	}
	require.Len(t, collected, 1)
	require.Equal(t, 5, collected[0].ID)
	name, _ := collected[0].Record.Get("name")
	require.Equal(t, "only", name)
}

// countingFetcher tallies fetches so tests can assert none happen.
type countingFetcher struct {
	calls atomic.Int64
}

func (f *countingFetcher) FetchPosting(ctx context.Context, id int) (string, error) {
	f.calls.Add(1)
	return "body", nil
}

func (f *countingFetcher) PostingURL(id int) string {
	return fmt.Sprintf("https://portal.example/posting?id=%d", id)
}

// a context cancelled before the run starts must not produce a single
// fetch, only a closed outcome stream
func TestCancelledContextIssuesNoFetches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &countingFetcher{}
	outcomes := Run(ctx, fetcher, passthroughExtractor{}, Options{
		Start:       1,
		End:         50,
		Concurrency: 4,
		Delay:       time.Millisecond,
	})
	for range outcomes {
	}
	require.Equal(t, int64(0), fetcher.calls.Load())
}

// cancelling mid-run must still close the outcome channel and leave the
// report syntactically complete
func TestCancellationClosesStreamAndFinalizesReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &fakeFetcher{pages: map[int]string{}}
	for id := 1; id <= 500; id++ {
		fetcher.pages[id] = fmt.Sprintf("company %d", id)
	}

	outcomes := Run(ctx, fetcher, passthroughExtractor{}, Options{
		Start:       1,
		End:         500,
		Concurrency: 3,
		Delay:       time.Millisecond,
	})

	var out bytes.Buffer
	report, err := NewReport(&out)
	require.NoError(t, err)
	defer report.Close()

	stats := NewRunStats(500)
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	done := make(chan struct{})
	go func() {
		Aggregate(ctx, outcomes, report, stats, "testrun", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("aggregation did not finish after cancellation")
	}

	require.NoError(t, report.Close())
	require.True(t, stats.Completed < 500, "cancellation should stop scheduling")
	require.True(t, strings.HasSuffix(out.String(), "</div></body></html>"))
}

func TestStatsMinMaxIndependentOfArrivalOrder(t *testing.T) {
	stats := NewRunStats(4)
	// completion order scrambled on purpose
	stats.noteValid(7)
	stats.noteValid(3)
	stats.noteRejection(posting.ReasonWrongCategory)
	stats.noteValid(5)

	require.Equal(t, 3, stats.ValidCount)
	require.Equal(t, 3, stats.FirstValidID)
	require.Equal(t, 7, stats.LastValidID)
	require.Equal(t, 4, stats.Completed)
}

func TestAdjustedRuntime(t *testing.T) {
	stats := NewRunStats(11)
	stats.Elapsed = 10 * time.Second
	require.Equal(t, 5*time.Second, stats.AdjustedRuntime(500*time.Millisecond))

	short := NewRunStats(1)
	short.Elapsed = time.Second
	require.Equal(t, time.Second, short.AdjustedRuntime(time.Hour))

	overpaced := NewRunStats(100)
	overpaced.Elapsed = time.Second
	require.Equal(t, time.Duration(0), overpaced.AdjustedRuntime(time.Second))
}

const validPostingTemplate = `<html><body>
<strong>Tech Consulting</strong>
<div class="u-shadow-v11 rounded g-pa-30">
<li class="list-group-item"><div class="col-xs-4">Company Name</div><div class="col-xs-8">%s</div></li>
<li class="list-group-item"><div class="col-xs-4">Industry</div><div class="col-xs-8">Robotics</div></li>
<li class="list-group-item"><div class="col-xs-4">Website</div><div class="col-xs-8"><a href="https://%s.example">site</a></div></li>
<li class="list-group-item"><div class="col-xs-4">Company Description</div><div class="col-xs-8">Robots.</div></li>
<li class="list-group-item"><div class="col-xs-4">Contact</div><div class="col-xs-8">Sam</div></li>
<li class="list-group-item"><div class="col-xs-4">Size</div><div class="col-xs-8">10</div></li>
<p class="margin-bottom-40">Automate a warehouse.</p>
</div>
<div class="u-shadow-v11 rounded g-pa-30"><div class="col-xs-6">Project Start</div><div class="col-xs-6">February 2024</div></div>
<ul class="list-unstyled margin-bottom-40"><li class="list-group-item"><div class="col-xs-4">Deliverable Description</div><div class="col-xs-8">A dashboard</div></li></ul>
<ul class="list-unstyled margin-bottom-40"><li class="list-group-item"><div class="col-xs-4">Work Type</div><div class="col-xs-8">Remote</div></li></ul>
</body></html>`

// full pipeline over a synthetic range: ids 5..7 are valid postings,
// id 8 carries the wrong category badge
func TestHarvestScenario(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/harvester")
	defer cleanup()

	fetcher := &fakeFetcher{pages: map[int]string{
		5: fmt.Sprintf(validPostingTemplate, "Initech", "initech"),
		6: fmt.Sprintf(validPostingTemplate, "Globex", "globex"),
		7: fmt.Sprintf(validPostingTemplate, "Umbrella", "umbrella"),
		8: strings.Replace(
			fmt.Sprintf(validPostingTemplate, "Hooli", "hooli"),
			"<strong>Tech Consulting</strong>",
			"<strong>Consulting</strong>",
			1,
		),
	}}

	extractor, err := posting.ForTrack(posting.TrackTech, posting.Options{
		BaseUrl:      "https://portal.example/posting?id=",
		TargetPeriod: "2024",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	report, err := NewReport(&out)
	require.NoError(t, err)

	stats := NewRunStats(4)
	outcomes := Run(context.Background(), fetcher, extractor, Options{Start: 5, End: 8})
	Aggregate(context.Background(), outcomes, report, stats, "testrun", nil)
	require.NoError(t, report.Close())

	require.Equal(t, 3, stats.ValidCount)
	require.Equal(t, 5, stats.FirstValidID)
	require.Equal(t, 7, stats.LastValidID)
	require.Equal(t, 1, stats.Rejections[posting.ReasonWrongCategory])
	require.Equal(t, 0, stats.TransportErrors)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out.String()))
	require.NoError(t, err)
	require.Equal(t, 3, doc.Find("div.card").Length())

	names := map[string]bool{}
	doc.Find("h5.card-title").Each(func(_ int, s *goquery.Selection) {
		names[strings.TrimSpace(s.Text())] = true
	})
	require.Equal(t, map[string]bool{"Initech": true, "Globex": true, "Umbrella": true}, names)
	require.NotContains(t, out.String(), "Hooli")
}
