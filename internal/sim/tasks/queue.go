package tasks

import "sort"

// Batch is the FIFO list of items of one phase.
type Batch[T any] struct {
	Phase int
	Items []T
}

// Queue holds items grouped by phase. Pop drains phases in ascending order
// and items within a phase in insertion order.
type Queue[T any] struct {
	batches []Batch[T]
}

// Push appends item to its phase.
func (q *Queue[T]) Push(phase int, item T) {
	i := sort.Search(len(q.batches), func(i int) bool { return q.batches[i].Phase >= phase })
	if i < len(q.batches) && q.batches[i].Phase == phase {
		q.batches[i].Items = append(q.batches[i].Items, item)
		return
	}
	q.batches = append(q.batches, Batch[T]{})
	copy(q.batches[i+1:], q.batches[i:])
	q.batches[i] = Batch[T]{Phase: phase, Items: []T{item}}
}

// Pop removes the next item.
func (q *Queue[T]) Pop() (item T, phase int, ok bool) {
	for len(q.batches) > 0 {
		b := &q.batches[0]
		if len(b.Items) == 0 {
			q.batches = q.batches[1:]
			continue
		}
		item = b.Items[0]
		var zero T
		b.Items[0] = zero
		b.Items = b.Items[1:]
		return item, b.Phase, true
	}
	return item, 0, false
}

func (q *Queue[T]) Len() int {
	n := 0
	for _, b := range q.batches {
		n += len(b.Items)
	}
	return n
}

// Batches returns the non-empty phases in drain order.
func (q *Queue[T]) Batches() []Batch[T] {
	out := make([]Batch[T], 0, len(q.batches))
	for _, b := range q.batches {
		if len(b.Items) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// Items returns every item in drain order.
func (q *Queue[T]) Items() []T {
	out := make([]T, 0, q.Len())
	for _, b := range q.batches {
		out = append(out, b.Items...)
	}
	return out
}

// Clear empties the queue and returns what was in it.
func (q *Queue[T]) Clear() []T {
	out := q.Items()
	q.batches = nil
	return out
}
