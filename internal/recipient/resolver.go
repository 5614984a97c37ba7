package recipient

import (
	"context"
	"fmt"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/mallsoft/peyk/internal/customer"
	"github.com/mallsoft/peyk/internal/segment"
)

// defaultRegion is used when a mobile number carries no country prefix.
const defaultRegion = "IR"

// SourceCustom marks a recipient supplied directly on the campaign rather
// than resolved from a segment.
const SourceCustom = "custom"

// Custom is an ad-hoc recipient attached to a campaign by hand.
type Custom struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Mobile     string `json:"mobile"`
}

// Recipient is one resolved delivery target. Mobile holds the E.164 form
// when normalization succeeded, otherwise the raw input with Invalid set.
type Recipient struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Mobile     string `json:"mobile"`
	Source     string `json:"source"` // "segment:<id>" or "custom"
	Invalid    bool   `json:"invalid,omitempty"`
}

// Resolver merges segment evaluations with ad-hoc recipients into one
// ordered set of unique delivery targets.
type Resolver struct {
	evaluator *segment.Evaluator
}

// NewResolver creates a resolver over a segment evaluator
func NewResolver(evaluator *segment.Evaluator) *Resolver {
	return &Resolver{evaluator: evaluator}
}

// Resolve evaluates the segments in order, appends the custom recipients,
// and deduplicates by normalized mobile number. The first occurrence of a
// number keeps its position; a later duplicate only contributes its name
// when the kept entry has none. Numbers that fail normalization are kept
// with Invalid set so callers can account for them; they are never
// silently dropped.
func (r *Resolver) Resolve(ctx context.Context, segments []*segment.Segment, custom []Custom, now time.Time) ([]*Recipient, error) {
	var ordered []*Recipient
	index := make(map[string]*Recipient)

	add := func(rec *Recipient) {
		existing, ok := index[rec.Mobile]
		if !ok {
			index[rec.Mobile] = rec
			ordered = append(ordered, rec)
			return
		}
		if existing.Name == "" && rec.Name != "" {
			existing.Name = rec.Name
		}
		if existing.CustomerID == "" && rec.CustomerID != "" {
			existing.CustomerID = rec.CustomerID
		}
	}

	for _, seg := range segments {
		customers, err := r.evaluator.Evaluate(ctx, seg, now)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate segment %s: %w", seg.ID, err)
		}

		source := "segment:" + seg.ID
		for _, c := range customers {
			if c.Mobile == "" {
				continue
			}
			mobile, valid := Normalize(c.Mobile)
			add(&Recipient{
				CustomerID: c.ID,
				Name:       c.FullName(),
				Mobile:     mobile,
				Source:     source,
				Invalid:    !valid,
			})
		}
	}

	for _, cr := range custom {
		if cr.Mobile == "" {
			continue
		}
		mobile, valid := Normalize(cr.Mobile)
		add(&Recipient{
			CustomerID: cr.CustomerID,
			Name:       cr.Name,
			Mobile:     mobile,
			Source:     SourceCustom,
			Invalid:    !valid,
		})
	}

	return ordered, nil
}

// ResolveForCustomers builds recipients directly from customer records,
// skipping segment evaluation. Used for previews.
func (r *Resolver) ResolveForCustomers(customers []*customer.Customer, source string) []*Recipient {
	var out []*Recipient
	for _, c := range customers {
		if c.Mobile == "" {
			continue
		}
		mobile, valid := Normalize(c.Mobile)
		out = append(out, &Recipient{
			CustomerID: c.ID,
			Name:       c.FullName(),
			Mobile:     mobile,
			Source:     source,
			Invalid:    !valid,
		})
	}
	return out
}

// Normalize parses a mobile number and returns its E.164 form. Numbers
// without a country prefix are treated as Iranian. On failure the raw
// input is returned with ok=false.
func Normalize(raw string) (normalized string, ok bool) {
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return raw, false
	}
	if !phonenumbers.IsValidNumber(num) {
		return raw, false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}
