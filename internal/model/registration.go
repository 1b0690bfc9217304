package model

import "time"

// Registration pairs a user with an event they intend to attend.
// (EventID, Username) is unique.
type Registration struct {
	ID           int64     `json:"registration_id"`
	EventID      int64     `json:"event_id"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// EventRegistrant is one row of an event's attendee list.
type EventRegistrant struct {
	Registration
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserRegistration is one row of a user's schedule, carrying enough of the
// event to render it without a second lookup.
type UserRegistration struct {
	Registration
	Title           string    `json:"title"`
	Location        string    `json:"location"`
	Date            time.Time `json:"date"`
	Price           float64   `json:"price"`
	Capacity        int       `json:"capacity"`
	RegisteredCount int       `json:"registered_count"`
}
