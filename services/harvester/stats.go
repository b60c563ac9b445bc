package harvester

import (
	"time"

	"tamid-harvester/lib/scrapers/tamid/posting"
)

// RunStats accumulates the run summary. It is owned by the aggregator
// and updated once per observed outcome.
type RunStats struct {
	Total     int
	Completed int

	ValidCount int
	// numeric min/max over valid posting ids, independent of the order
	// outcomes arrive in
	FirstValidID int
	LastValidID  int
	hasValid     bool

	Rejections      map[posting.Reason]int
	TransportErrors int

	Elapsed time.Duration
}

func NewRunStats(total int) *RunStats {
	return &RunStats{
		Total:      total,
		Rejections: map[posting.Reason]int{},
	}
}

func (s *RunStats) HasValid() bool {
	return s.hasValid
}

func (s *RunStats) noteValid(id int) {
	s.Completed++
	s.ValidCount++
	if !s.hasValid || id < s.FirstValidID {
		s.FirstValidID = id
	}
	if !s.hasValid || id > s.LastValidID {
		s.LastValidID = id
	}
	s.hasValid = true
}

func (s *RunStats) noteRejection(reason posting.Reason) {
	s.Completed++
	s.Rejections[reason]++
}

func (s *RunStats) noteTransportError() {
	s.Completed++
	s.TransportErrors++
}

// AdjustedRuntime subtracts the configured inter-request pacing from
// the elapsed wall time, approximating how long the run spent doing
// real work.
func (s *RunStats) AdjustedRuntime(delay time.Duration) time.Duration {
	if s.Total <= 1 {
		return s.Elapsed
	}
	adjusted := s.Elapsed - delay*time.Duration(s.Total-1)
	if adjusted < 0 {
		return 0
	}
	return adjusted
}
