package model

// NameCount is an event name with the number of events recorded under it.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// EventStats aggregates the event log.
type EventStats struct {
	TotalEvents    int64       `json:"total_events"`
	EventsLastHour int64       `json:"events_last_hour"`
	TopEventNames  []NameCount `json:"top_event_names"`
}

// Stats is the combined view over the event log and the live registry.
type Stats struct {
	EventStats
	TotalSubscriptions int `json:"total_subscriptions"`
	DistinctEventNames int `json:"distinct_event_names"`
}
