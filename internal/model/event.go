package model

import "time"

// Event is a capacity-limited happening that users register for.
//
// CreatorName and RegisteredCount are read-side projections: repositories
// fill them from a join on users and a live count of event_registrations.
// They are ignored on write.
type Event struct {
	ID              int64     `json:"event_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	Date            time.Time `json:"date"`
	Capacity        int       `json:"capacity"`
	Price           float64   `json:"price"`
	CreatedBy       string    `json:"created_by"`
	CreatorName     string    `json:"creator_name"`
	ExternalID      *string   `json:"external_id,omitempty"`
	ImageURL        string    `json:"image_url"`
	URL             string    `json:"url"`
	RegisteredCount int       `json:"registered_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// SpotsLeft is the number of registrations the event can still accept.
func (e *Event) SpotsLeft() int {
	if left := e.Capacity - e.RegisteredCount; left > 0 {
		return left
	}
	return 0
}

// EventPatch is a whitelist of updatable event columns. Nil means unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Date        *time.Time
	Capacity    *int
	Price       *float64
	ImageURL    *string
	URL         *string
}

func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.Date == nil && p.Capacity == nil && p.Price == nil &&
		p.ImageURL == nil && p.URL == nil
}

// EventFilter narrows an event listing. Zero values mean "no constraint".
type EventFilter struct {
	Search    string // case-insensitive substring of title or description
	MinPrice  *float64
	MaxPrice  *float64
	StartDate *time.Time // inclusive
	EndDate   *time.Time // inclusive
	CreatedBy string
}
