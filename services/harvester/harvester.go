package harvester

import (
	"context"
	"sync"
	"time"

	"tamid-harvester/lib/scrapers/tamid/posting"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/harvester")

const DefaultConcurrency = 10

// Fetcher is the authenticated session the run shares across workers.
// It must be safe for concurrent requests and is never re-authenticated
// mid-run.
type Fetcher interface {
	FetchPosting(ctx context.Context, id int) (string, error)
	PostingURL(id int) string
}

// Outcome is the result of one posting id. Exactly one of Record,
// Rejection and Err is set.
type Outcome struct {
	ID        int
	Record    posting.Record
	Rejection *posting.Rejection
	Err       error
}

type Options struct {
	// closed interval of posting ids, Start <= End
	Start int
	End   int
	// worker pool width, DefaultConcurrency when zero
	Concurrency int
	// pause between consecutive requests of one worker, to stay under
	// the portal's tolerance
	Delay time.Duration
}

// Run fetches and extracts every id in [Start, End] on a bounded worker
// pool and streams outcomes in completion order, which is not id order.
// per-id transport failures become Outcome.Err and never abort the
// batch; there is no retry, a failed id is terminal for this run.
//
// cancelling ctx stops scheduling promptly; the channel always closes
// once in-flight work has drained, so consumers can rely on ranging
// over it.
func Run(ctx context.Context, fetcher Fetcher, extractor posting.Extractor, opts Options) <-chan Outcome {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	ids := make(chan int)
	outcomes := make(chan Outcome, concurrency)

	go func() {
		defer close(ids)
		for id := opts.Start; id <= opts.End; id++ {
			select {
			case ids <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, fetcher, extractor, opts.Delay, ids, outcomes)
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	return outcomes
}

func worker(
	ctx context.Context,
	fetcher Fetcher,
	extractor posting.Extractor,
	delay time.Duration,
	ids <-chan int,
	outcomes chan<- Outcome,
) {
	first := true
	for id := range ids {
		if !first {
			pause(ctx, delay)
		}
		first = false

		// an id claimed before cancellation is dropped, not fetched
		if ctx.Err() != nil {
			return
		}
		outcomes <- fetchAndExtract(ctx, fetcher, extractor, id)
	}
}

func fetchAndExtract(ctx context.Context, fetcher Fetcher, extractor posting.Extractor, id int) Outcome {
	ctx, span := tracer.Start(ctx, "fetchAndExtract")
	defer span.End()
	span.SetAttributes(attribute.Int("posting_id", id))

	body, err := fetcher.FetchPosting(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return Outcome{ID: id, Err: err}
	}

	record, rejection := extractor.Extract(id, body)
	if rejection != nil {
		span.SetAttributes(attribute.String("rejection", rejection.String()))
		return Outcome{ID: id, Rejection: rejection}
	}
	return Outcome{ID: id, Record: record}
}

func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
