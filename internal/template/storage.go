package template

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTemplates     = []byte("templates")
	bucketTemplateNames = []byte("template_names")
)

// ErrNotFound is returned when a template does not exist
var ErrNotFound = fmt.Errorf("template not found")

// Storage provides template storage operations
type Storage struct {
	db *bolt.DB
}

// NewStorage creates template storage on an existing database
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTemplates, bucketTemplateNames} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template buckets: %w", err)
	}
	return &Storage{db: db}, nil
}

func templateKey(storeID, id string) []byte {
	return []byte(storeID + "/" + id)
}

func nameKey(storeID, name string) []byte {
	return []byte(storeID + "/" + name)
}

// Create creates a new template. Names are unique within a store.
func (s *Storage) Create(ctx context.Context, tmpl *Template) error {
	if tmpl.StoreID == "" {
		return fmt.Errorf("template store_id is required")
	}
	if tmpl.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if err := Validate(tmpl); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		templates := tx.Bucket(bucketTemplates)
		names := tx.Bucket(bucketTemplateNames)

		if existing := names.Get(nameKey(tmpl.StoreID, tmpl.Name)); existing != nil {
			return fmt.Errorf("template with name %q already exists", tmpl.Name)
		}

		tmpl.ID = uuid.New().String()
		tmpl.CreatedAt = time.Now()
		tmpl.UpdatedAt = tmpl.CreatedAt

		data, err := json.Marshal(tmpl)
		if err != nil {
			return fmt.Errorf("failed to marshal template: %w", err)
		}

		if err := templates.Put(templateKey(tmpl.StoreID, tmpl.ID), data); err != nil {
			return err
		}
		return names.Put(nameKey(tmpl.StoreID, tmpl.Name), []byte(tmpl.ID))
	})
}

// Get retrieves a template by ID, or nil if not found
func (s *Storage) Get(ctx context.Context, storeID, id string) (*Template, error) {
	var tmpl *Template

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get(templateKey(storeID, id))
		if data == nil {
			return nil
		}
		tmpl = &Template{}
		return json.Unmarshal(data, tmpl)
	})

	return tmpl, err
}

// Update replaces an existing template
func (s *Storage) Update(ctx context.Context, tmpl *Template) error {
	if err := Validate(tmpl); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		templates := tx.Bucket(bucketTemplates)
		names := tx.Bucket(bucketTemplateNames)

		key := templateKey(tmpl.StoreID, tmpl.ID)
		existing := templates.Get(key)
		if existing == nil {
			return ErrNotFound
		}

		var prev Template
		if err := json.Unmarshal(existing, &prev); err != nil {
			return err
		}

		// Re-index on rename
		if prev.Name != tmpl.Name {
			if other := names.Get(nameKey(tmpl.StoreID, tmpl.Name)); other != nil {
				return fmt.Errorf("template with name %q already exists", tmpl.Name)
			}
			if err := names.Delete(nameKey(tmpl.StoreID, prev.Name)); err != nil {
				return err
			}
			if err := names.Put(nameKey(tmpl.StoreID, tmpl.Name), []byte(tmpl.ID)); err != nil {
				return err
			}
		}

		tmpl.CreatedAt = prev.CreatedAt
		tmpl.UsageCount = prev.UsageCount
		tmpl.UpdatedAt = time.Now()

		data, err := json.Marshal(tmpl)
		if err != nil {
			return fmt.Errorf("failed to marshal template: %w", err)
		}
		return templates.Put(key, data)
	})
}

// Delete removes a template. Referential checks against campaigns are the
// caller's responsibility.
func (s *Storage) Delete(ctx context.Context, storeID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		templates := tx.Bucket(bucketTemplates)

		key := templateKey(storeID, id)
		data := templates.Get(key)
		if data == nil {
			return ErrNotFound
		}

		var tmpl Template
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return err
		}

		if err := tx.Bucket(bucketTemplateNames).Delete(nameKey(storeID, tmpl.Name)); err != nil {
			return err
		}
		return templates.Delete(key)
	})
}

// List returns a store's templates, ordered by ID
func (s *Storage) List(ctx context.Context, storeID string, filter ListFilter) ([]*Template, error) {
	var result []*Template

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTemplates).Cursor()
		prefix := []byte(storeID + "/")

		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var tmpl Template
			if err := json.Unmarshal(v, &tmpl); err != nil {
				continue
			}
			if filter.Category != "" && tmpl.Category != filter.Category {
				continue
			}
			if filter.Active != nil && tmpl.Active != *filter.Active {
				continue
			}
			result = append(result, &tmpl)
		}
		return nil
	})

	return result, err
}

// IncrementUsage bumps a template's usage counter
func (s *Storage) IncrementUsage(ctx context.Context, storeID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		templates := tx.Bucket(bucketTemplates)

		key := templateKey(storeID, id)
		data := templates.Get(key)
		if data == nil {
			return ErrNotFound
		}

		var tmpl Template
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return err
		}

		tmpl.UsageCount++
		tmpl.UpdatedAt = time.Now()

		updated, err := json.Marshal(&tmpl)
		if err != nil {
			return err
		}
		return templates.Put(key, updated)
	})
}
