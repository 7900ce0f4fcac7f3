// Package projection computes the dashboard's filtered views and summary
// statistics as a pure fold over a record set.
package projection

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// Filter narrows a record set. Zero values match everything.
type Filter struct {
	Search string        `form:"search" json:"search,omitempty"`
	Status entity.Status `form:"status" json:"status,omitempty"`
}

// Matches reports whether rec passes the filter
func (f Filter) Matches(rec entity.Record) bool {
	if f.Status != "" && rec.CurrentStatus() != f.Status {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(f.Search))
	if query != "" && !strings.Contains(rec.SearchText(), query) {
		return false
	}
	return true
}

// Apply returns the records that pass the filter, preserving order
func Apply[T entity.Record](records []T, f Filter) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Stats is the summary shown above a record table
type Stats struct {
	Total          int                               `json:"total"`
	CountByStatus  map[entity.Status]int             `json:"count_by_status"`
	TotalAmount    decimal.Decimal                   `json:"total_amount"`
	AmountByStatus map[entity.Status]decimal.Decimal `json:"amount_by_status"`
}

// Count returns the number of records with the given status
func (s Stats) Count(status entity.Status) int {
	return s.CountByStatus[status]
}

// SumFor returns the summed amount of records with the given status
func (s Stats) SumFor(status entity.Status) decimal.Decimal {
	if amount, ok := s.AmountByStatus[status]; ok {
		return amount
	}
	return decimal.Zero
}

// Compute folds the filtered records into Stats
func Compute[T entity.Record](records []T, f Filter) Stats {
	stats := Stats{
		CountByStatus:  map[entity.Status]int{},
		TotalAmount:    decimal.Zero,
		AmountByStatus: map[entity.Status]decimal.Decimal{},
	}
	for _, rec := range records {
		if !f.Matches(rec) {
			continue
		}
		status := rec.CurrentStatus()
		amount := rec.TotalAmount()

		stats.Total++
		stats.CountByStatus[status]++
		stats.TotalAmount = stats.TotalAmount.Add(amount)
		stats.AmountByStatus[status] = stats.SumFor(status).Add(amount)
	}
	return stats
}
