package service

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/model"
)

// EventQuery holds the raw GET /api/events query parameters.
type EventQuery struct {
	Search    string
	MinPrice  string
	MaxPrice  string
	StartDate string
	EndDate   string
}

const dateOnly = "2006-01-02"

// ParseEventFilter turns query strings into a model.EventFilter.
//
// Dates accept RFC 3339 or YYYY-MM-DD. A bare endDate covers the whole day,
// so endDate=2026-05-01 includes an event at 18:00 that day.
func ParseEventFilter(q EventQuery) (model.EventFilter, error) {
	var f model.EventFilter
	f.Search = strings.TrimSpace(q.Search)

	var err error
	if f.MinPrice, err = parsePrice("minPrice", q.MinPrice); err != nil {
		return f, err
	}
	if f.MaxPrice, err = parsePrice("maxPrice", q.MaxPrice); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, apperror.ValidationFailed("minPrice", "minPrice cannot be greater than maxPrice")
	}

	if f.StartDate, err = parseDate("startDate", q.StartDate, false); err != nil {
		return f, err
	}
	if f.EndDate, err = parseDate("endDate", q.EndDate, true); err != nil {
		return f, err
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return f, apperror.ValidationFailed("startDate", "startDate cannot be after endDate")
	}
	return f, nil
}

func parsePrice(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, apperror.ValidationFailed(field, field+" must be a non-negative number")
	}
	return &v, nil
}

func parseDate(field, raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return nil, apperror.ValidationFailed(field, field+" must be a date (YYYY-MM-DD or RFC 3339)")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}
