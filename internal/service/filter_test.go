package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/community-events/internal/apperror"
)

func TestParseEventFilter_Empty(t *testing.T) {
	f, err := ParseEventFilter(EventQuery{})
	require.NoError(t, err)
	assert.Empty(t, f.Search)
	assert.Nil(t, f.MinPrice)
	assert.Nil(t, f.MaxPrice)
	assert.Nil(t, f.StartDate)
	assert.Nil(t, f.EndDate)
}

func TestParseEventFilter_Values(t *testing.T) {
	f, err := ParseEventFilter(EventQuery{
		Search:    "  go  ",
		MinPrice:  "5",
		MaxPrice:  "99.99",
		StartDate: "2026-05-01",
		EndDate:   "2026-05-31",
	})
	require.NoError(t, err)

	assert.Equal(t, "go", f.Search)
	assert.Equal(t, 5.0, *f.MinPrice)
	assert.Equal(t, 99.99, *f.MaxPrice)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), *f.StartDate)
	assert.Equal(t, time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC), *f.EndDate,
		"a bare end date covers the whole day")
}

func TestParseEventFilter_RFC3339(t *testing.T) {
	f, err := ParseEventFilter(EventQuery{EndDate: "2026-05-31T12:00:00+02:00"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 31, 10, 0, 0, 0, time.UTC), *f.EndDate)
}

func TestParseEventFilter_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		q     EventQuery
		field string
	}{
		{"price not a number", EventQuery{MinPrice: "cheap"}, "minPrice"},
		{"negative price", EventQuery{MaxPrice: "-1"}, "maxPrice"},
		{"NaN min price", EventQuery{MinPrice: "NaN"}, "minPrice"},
		{"NaN max price", EventQuery{MaxPrice: "nan"}, "maxPrice"},
		{"infinite min price", EventQuery{MinPrice: "Inf"}, "minPrice"},
		{"infinite max price", EventQuery{MaxPrice: "+Infinity"}, "maxPrice"},
		{"min above max", EventQuery{MinPrice: "10", MaxPrice: "5"}, "minPrice"},
		{"bad date", EventQuery{StartDate: "next tuesday"}, "startDate"},
		{"start after end", EventQuery{StartDate: "2026-06-01", EndDate: "2026-05-01"}, "startDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEventFilter(tt.q)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}
