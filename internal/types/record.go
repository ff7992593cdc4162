package types

import (
	"encoding/json"
	"time"
)

// FieldID is the field every record carries its identifier under.
const FieldID = "ID"

// Record is a single scraped directory entry keyed by its identifier.
// Fields keep the order in which they were first set so exports can
// reproduce the page layout column by column.
type Record struct {
	// ID is the directory identifier taken from the listing link.
	ID string

	// URL is the detail page this record was extracted from.
	URL string

	// ScrapedAt is when the record was created.
	ScrapedAt time.Time

	fields map[string]string
	order  []string
}

// NewRecord creates an empty Record for a detail page.
func NewRecord(id, sourceURL string) *Record {
	return &Record{
		ID:        id,
		URL:       sourceURL,
		ScrapedAt: time.Now(),
		fields:    make(map[string]string),
	}
}

// Set sets a field value. Re-setting an existing field keeps its position.
func (r *Record) Set(key, value string) {
	if _, ok := r.fields[key]; !ok {
		r.order = append(r.order, key)
	}
	r.fields[key] = value
}

// Get retrieves a field value.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// GetString retrieves a field value, or "" when absent.
func (r *Record) GetString(key string) string {
	return r.fields[key]
}

// Has returns true if the field exists.
func (r *Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Delete removes a field.
func (r *Record) Delete(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Rename moves a field to a new name, keeping its position. If newKey is
// already set it is overwritten and oldKey removed.
func (r *Record) Rename(oldKey, newKey string) {
	val, ok := r.fields[oldKey]
	if !ok || oldKey == newKey {
		return
	}
	if _, exists := r.fields[newKey]; exists {
		r.fields[newKey] = val
		r.Delete(oldKey)
		return
	}
	delete(r.fields, oldKey)
	r.fields[newKey] = val
	for i, k := range r.order {
		if k == oldKey {
			r.order[i] = newKey
			break
		}
	}
}

// Keys returns all field names in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.order)
}

// ToMap returns a copy of the fields.
func (r *Record) ToMap() map[string]string {
	m := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		m[k] = v
	}
	return m
}

// MarshalJSON writes the fields as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range r.order {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.fields[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := &Record{
		ID:        r.ID,
		URL:       r.URL,
		ScrapedAt: r.ScrapedAt,
		fields:    make(map[string]string, len(r.fields)),
		order:     append([]string(nil), r.order...),
	}
	for k, v := range r.fields {
		clone.fields[k] = v
	}
	return clone
}
