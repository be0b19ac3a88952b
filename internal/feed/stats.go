package feed

import "github.com/alanyoungcy/tradesim/internal/domain"

// Stats combines connection and parsing statistics for status reporting.
type Stats struct {
	Feed     *WSFeed
	Ingestor *Ingestor
}

// FeedStats returns a point-in-time copy of the counters.
func (s Stats) FeedStats() domain.FeedStats {
	st := domain.FeedStats{
		Accepted:  s.Ingestor.Accepted(),
		Rejected:  s.Ingestor.Rejected(),
		LastError: s.Ingestor.LastError(),
	}
	if s.Feed != nil {
		st.Connected = s.Feed.Connected()
		st.URL = s.Feed.URL()
		st.LastMessageAt = s.Feed.LastMessageAt()
		st.MessageLatency = s.Feed.MessageLatency()
		st.Reconnects = s.Feed.Reconnects()
	}
	return st
}
