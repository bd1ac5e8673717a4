package model

// DefaultEventLimit is applied when an event query does not set a limit.
const DefaultEventLimit = 50

// MaxEventLimit caps a single event query.
const MaxEventLimit = 1000

// EventFilter holds criteria for querying the event log.
type EventFilter struct {
	Name  string `json:"name,omitempty"`
	Limit int    `json:"limit,omitempty"`

	// BeforeID, when set, restricts results to events with a smaller id.
	// Paging from newest to oldest passes the last id of the previous page.
	BeforeID int64 `json:"before_id,omitempty"`
}

// EffectiveLimit returns the limit clamped to [1, MaxEventLimit], using
// DefaultEventLimit when unset.
func (f EventFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultEventLimit
	case f.Limit > MaxEventLimit:
		return MaxEventLimit
	}
	return f.Limit
}
