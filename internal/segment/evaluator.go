package segment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mallsoft/peyk/internal/customer"
)

// Evaluator computes the concrete customer set a segment matches. Two
// evaluations against the same directory data and the same "now" yield
// the identical set, ordered by customer ID.
type Evaluator struct {
	directory customer.Directory
}

// NewEvaluator creates an evaluator over a customer directory
func NewEvaluator(directory customer.Directory) *Evaluator {
	return &Evaluator{directory: directory}
}

// Evaluate returns the customers matching the segment at the given time
func (e *Evaluator) Evaluate(ctx context.Context, seg *Segment, now time.Time) ([]*customer.Customer, error) {
	switch seg.Type {
	case TypeAll:
		return e.directory.Customers(ctx, seg.StoreID)

	case TypeNew:
		days := seg.Criteria.Days
		if days == 0 {
			days = DefaultNewDays
		}
		since := now.AddDate(0, 0, -days)
		return e.filterCustomers(ctx, seg.StoreID, func(c *customer.Customer) bool {
			return !c.RegisteredAt.Before(since)
		})

	case TypeReturning:
		minOrders := seg.Criteria.MinOrders
		if minOrders == 0 {
			minOrders = DefaultMinOrders
		}
		counts, err := e.directory.OrderCounts(ctx, seg.StoreID)
		if err != nil {
			return nil, fmt.Errorf("failed to load order counts: %w", err)
		}
		return e.filterCustomers(ctx, seg.StoreID, func(c *customer.Customer) bool {
			return counts[c.ID] >= minOrders
		})

	case TypeHighValue:
		minAmount := seg.Criteria.MinAmount
		if minAmount == 0 {
			minAmount = DefaultMinAmount
		}
		totals, err := e.directory.DeliveredTotals(ctx, seg.StoreID)
		if err != nil {
			return nil, fmt.Errorf("failed to load delivered totals: %w", err)
		}
		return e.filterCustomers(ctx, seg.StoreID, func(c *customer.Customer) bool {
			return totals[c.ID] >= minAmount
		})

	case TypeInactive:
		days := seg.Criteria.Days
		if days == 0 {
			days = DefaultInactiveDays
		}
		active, err := e.directory.ActiveSince(ctx, seg.StoreID, now.AddDate(0, 0, -days))
		if err != nil {
			return nil, fmt.Errorf("failed to load active customers: %w", err)
		}
		return e.filterCustomers(ctx, seg.StoreID, func(c *customer.Customer) bool {
			_, isActive := active[c.ID]
			return !isActive
		})

	case TypeBirthday:
		month := now.Month()
		return e.filterCustomers(ctx, seg.StoreID, func(c *customer.Customer) bool {
			return c.BirthDate != nil && c.BirthDate.Month() == month
		})

	case TypeLocation:
		city := strings.ToLower(seg.Criteria.City)
		province := strings.ToLower(seg.Criteria.Province)
		return e.filterCustomers(ctx, seg.StoreID, func(c *customer.Customer) bool {
			if city != "" && !strings.Contains(strings.ToLower(c.City), city) {
				return false
			}
			if province != "" && !strings.Contains(strings.ToLower(c.Province), province) {
				return false
			}
			return true
		})

	case TypeCustom:
		// Escape hatch for store-specific logic. Unimplemented criteria
		// yield an empty set rather than an error.
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown segment type: %q", seg.Type)
	}
}

// Count evaluates the segment and returns the matching customer count.
// It runs the same evaluation path as Evaluate, never a shortcut, so the
// cached count cannot drift from what dispatch would resolve.
func (e *Evaluator) Count(ctx context.Context, seg *Segment, now time.Time) (int, error) {
	customers, err := e.Evaluate(ctx, seg, now)
	if err != nil {
		return 0, err
	}
	return len(customers), nil
}

func (e *Evaluator) filterCustomers(ctx context.Context, storeID string, keep func(*customer.Customer) bool) ([]*customer.Customer, error) {
	all, err := e.directory.Customers(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}

	var matched []*customer.Customer
	for _, c := range all {
		if keep(c) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}
