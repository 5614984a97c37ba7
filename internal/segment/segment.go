package segment

import (
	"fmt"
	"time"
)

// Type selects a segmentation strategy
type Type string

const (
	TypeAll       Type = "all"
	TypeNew       Type = "new"
	TypeReturning Type = "returning"
	TypeHighValue Type = "high_value"
	TypeInactive  Type = "inactive"
	TypeBirthday  Type = "birthday_this_month"
	TypeLocation  Type = "location"
	TypeCustom    Type = "custom"
)

// Default criteria values, applied when the corresponding field is zero.
const (
	DefaultNewDays      = 30
	DefaultMinOrders    = 2
	DefaultMinAmount    = 1_000_000
	DefaultInactiveDays = 90
)

// Criteria holds the structured parameters of a segment. Only the fields
// relevant to the segment's type are consulted.
type Criteria struct {
	Days      int    `json:"days,omitempty"`       // new, inactive
	MinOrders int    `json:"min_orders,omitempty"` // returning
	MinAmount int64  `json:"min_amount,omitempty"` // high_value, Rials
	City      string `json:"city,omitempty"`       // location
	Province  string `json:"province,omitempty"`   // location
}

// Segment defines a dynamic group of customers. CustomerCount is a
// point-in-time cache for display; dispatch always re-evaluates.
type Segment struct {
	ID             string     `json:"id"`
	StoreID        string     `json:"store_id"`
	Name           string     `json:"name"`
	Type           Type       `json:"type"`
	Description    string     `json:"description,omitempty"`
	Criteria       Criteria   `json:"criteria"`
	CustomerCount  int        `json:"customer_count"`
	CountUpdatedAt *time.Time `json:"count_updated_at,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Validate checks that the segment definition is usable
func (s *Segment) Validate() error {
	switch s.Type {
	case TypeAll, TypeNew, TypeReturning, TypeHighValue, TypeInactive, TypeBirthday, TypeCustom:
	case TypeLocation:
		if s.Criteria.City == "" && s.Criteria.Province == "" {
			return fmt.Errorf("location segment requires a city or province filter")
		}
	default:
		return fmt.Errorf("unknown segment type: %q", s.Type)
	}

	if s.Criteria.Days < 0 || s.Criteria.MinOrders < 0 || s.Criteria.MinAmount < 0 {
		return fmt.Errorf("segment criteria must not be negative")
	}

	return nil
}
