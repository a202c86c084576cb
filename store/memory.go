package store

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
)

// Memory is a Store held entirely in process memory, mainly for tests.
// Documents round-trip through JSON so filter matching behaves like the
// SQLite backend.
type Memory struct {
	mu    sync.Mutex
	colls map[string][]memoryDoc
}

type memoryDoc struct {
	id   string
	data json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{colls: map[string][]memoryDoc{}}
}

func (m *Memory) Create(ctx context.Context, collection string, doc any) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(err, "store.create.id")
	}
	if err := m.Put(ctx, collection, id.String(), doc); err != nil {
		return "", err
	}
	return id.String(), nil
}

func (m *Memory) Put(_ context.Context, collection, id string, doc any) error {
	data, err := marshalWithID(doc, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.colls[collection]
	for i := range docs {
		if docs[i].id == id {
			docs[i].data = data
			return nil
		}
	}
	m.colls[collection] = append(docs, memoryDoc{id: id, data: data})
	return nil
}

func (m *Memory) Get(_ context.Context, collection, id string, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.colls[collection] {
		if doc.id == id {
			return errors.Wrap(json.Unmarshal(doc.data, out), "store.get.unmarshal")
		}
	}
	return errors.Wrapf(apperr.ErrNotFound, "%s/%s", collection, id)
}

func (m *Memory) Query(_ context.Context, collection string, filters Filters, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := []json.RawMessage{}
	for _, doc := range m.colls[collection] {
		if matchesFilters(doc.data, filters) {
			matches = append(matches, doc.data)
		}
	}

	list, err := json.Marshal(matches)
	if err != nil {
		return errors.Wrap(err, "store.query.marshal")
	}
	return errors.Wrap(json.Unmarshal(list, out), "store.query.unmarshal")
}

func (m *Memory) Update(_ context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.colls[collection]
	for i := range docs {
		if docs[i].id != id {
			continue
		}

		var merged map[string]any
		if err := json.Unmarshal(docs[i].data, &merged); err != nil {
			return errors.Wrap(err, "store.update.unmarshal")
		}
		for field, value := range fields {
			merged[field] = normalize(value)
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return errors.Wrap(err, "store.update.marshal")
		}
		docs[i].data = data
		return nil
	}
	return errors.Wrapf(apperr.ErrNotFound, "%s/%s", collection, id)
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.colls[collection]
	for i := range docs {
		if docs[i].id == id {
			m.colls[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func marshalWithID(doc any, id string) (json.RawMessage, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "store.put.marshal")
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "store.put.unmarshal")
	}
	fields["id"] = id
	return json.Marshal(fields)
}

func matchesFilters(data json.RawMessage, filters Filters) bool {
	if len(filters) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for field, want := range filters {
		if !reflect.DeepEqual(fields[field], normalize(want)) {
			return false
		}
	}
	return true
}

// normalize pushes a filter/update value through JSON so comparisons see the
// same types a decoded document does (float64 numbers, etc).
func normalize(value any) any {
	data, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return value
	}
	return out
}
