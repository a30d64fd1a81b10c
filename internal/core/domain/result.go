package domain

import "time"

// QueryResult is one completed query kept in an agent's in-memory history.
type QueryResult struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultRing keeps the most recent query results for one agent, evicting
// the oldest entry once capacity is exceeded. It is not safe for concurrent
// use; the lifecycle manager serializes access under its cache lock.
type ResultRing struct {
	cap     int
	entries []QueryResult
}

const DefaultResultCap = 10

func NewResultRing(capacity int) *ResultRing {
	if capacity <= 0 {
		capacity = DefaultResultCap
	}
	return &ResultRing{cap: capacity}
}

func (r *ResultRing) Append(res QueryResult) {
	r.entries = append(r.entries, res)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

func (r *ResultRing) Len() int {
	return len(r.entries)
}

// Items returns the retained results in insertion order, oldest first.
func (r *ResultRing) Items() []QueryResult {
	out := make([]QueryResult, len(r.entries))
	copy(out, r.entries)
	return out
}
