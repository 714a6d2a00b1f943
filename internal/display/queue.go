package display

import (
	"container/list"
	"fmt"

	"github.com/jmylchreest/alertd/internal/model"
)

// overflowQueue holds requests waiting for a free live slot, in arrival order.
type overflowQueue struct {
	items *list.List                 // List of *record
	index map[model.ID]*list.Element // Fast lookup by id
}

func newOverflowQueue() *overflowQueue {
	return &overflowQueue{
		items: list.New(),
		index: make(map[model.ID]*list.Element),
	}
}

// Enqueue appends rec to the tail of the queue.
func (q *overflowQueue) Enqueue(rec *record) error {
	if _, exists := q.index[rec.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.id)
	}
	q.index[rec.id] = q.items.PushBack(rec)
	return nil
}

// Peek returns the head of the queue without removing it.
func (q *overflowQueue) Peek() (*record, bool) {
	elem := q.items.Front()
	if elem == nil {
		return nil, false
	}
	return elem.Value.(*record), true
}

// DequeueNext pops the head of the queue.
func (q *overflowQueue) DequeueNext() (*record, bool) {
	elem := q.items.Front()
	if elem == nil {
		return nil, false
	}
	rec := q.items.Remove(elem).(*record)
	delete(q.index, rec.id)
	return rec, true
}

// Remove takes id out of the queue wherever it is.
func (q *overflowQueue) Remove(id model.ID) (*record, bool) {
	elem, exists := q.index[id]
	if !exists {
		return nil, false
	}
	rec := q.items.Remove(elem).(*record)
	delete(q.index, id)
	return rec, true
}

func (q *overflowQueue) Contains(id model.ID) bool {
	_, exists := q.index[id]
	return exists
}

func (q *overflowQueue) Len() int {
	return q.items.Len()
}

// IDs returns queued ids from head to tail.
func (q *overflowQueue) IDs() []model.ID {
	ids := make([]model.ID, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(*record).id)
	}
	return ids
}

// Records returns queued records from head to tail.
func (q *overflowQueue) Records() []*record {
	recs := make([]*record, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		recs = append(recs, e.Value.(*record))
	}
	return recs
}

// Drain empties the queue and returns its records from head to tail.
func (q *overflowQueue) Drain() []*record {
	recs := q.Records()
	q.items.Init()
	q.index = make(map[model.ID]*list.Element)
	return recs
}
