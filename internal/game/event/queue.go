package event

import (
	"container/heap"

	"github.com/google/uuid"
)

// highWaterMark is the occupancy ratio at which the queue doubles its capacity.
const highWaterMark = 0.8

// queueItem is one entry in the priority queue. The event itself holds no
// queue-position fields; the position lives in priorityQueue.index.
type queueItem struct {
	due int64 // ms since scheduler start
	seq uint64
	ev  Event
}

// priorityQueue is a binary min-heap ordered by (due, seq). seq increases with
// every insertion, so items with equal due time leave in insertion order.
//
// It is not safe for concurrent use; the Scheduler guards it with its mutex.
type priorityQueue struct {
	items   []*queueItem
	index   map[uuid.UUID]int
	nextSeq uint64
}

func newPriorityQueue(capacity int) *priorityQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &priorityQueue{
		items: make([]*queueItem, 0, capacity),
		index: make(map[uuid.UUID]int, capacity),
	}
}

// heap.Interface

func (q *priorityQueue) Len() int { return len(q.items) }

func (q *priorityQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.due == b.due {
		return a.seq < b.seq
	}
	return a.due < b.due
}

func (q *priorityQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.index[q.items[i].ev.ID()] = i
	q.index[q.items[j].ev.ID()] = j
}

func (q *priorityQueue) Push(x any) {
	it := x.(*queueItem)
	q.index[it.ev.ID()] = len(q.items)
	q.items = append(q.items, it)
}

func (q *priorityQueue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	delete(q.index, it.ev.ID())
	return it
}

// Capacity returns the number of items the queue holds before its next resize.
func (q *priorityQueue) Capacity() int { return cap(q.items) }

// contains reports whether id is in the queue.
func (q *priorityQueue) contains(id uuid.UUID) bool {
	_, ok := q.index[id]
	return ok
}

// dueOf returns the priority of id and whether it is queued.
func (q *priorityQueue) dueOf(id uuid.UUID) (int64, bool) {
	i, ok := q.index[id]
	if !ok {
		return 0, false
	}
	return q.items[i].due, true
}

// enqueue inserts ev with priority due. It reports whether the backing storage
// was grown.
//
// Precondition: ev is not already in the queue.
func (q *priorityQueue) enqueue(ev Event, due int64) (resized bool) {
	if float64(len(q.items)+1) >= highWaterMark*float64(cap(q.items)) {
		grown := make([]*queueItem, len(q.items), cap(q.items)*2)
		copy(grown, q.items)
		q.items = grown
		resized = true
	}
	q.nextSeq++
	heap.Push(q, &queueItem{due: due, seq: q.nextSeq, ev: ev})
	return resized
}

// peek returns the head item, or nil when empty.
func (q *priorityQueue) peek() *queueItem {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// dequeue removes and returns the head item.
//
// Precondition: Len() > 0.
func (q *priorityQueue) dequeue() *queueItem {
	return heap.Pop(q).(*queueItem)
}

// updatePriority moves id to a new due time in O(log n). The item keeps its
// sequence number so ties against older items still resolve by first insertion.
func (q *priorityQueue) updatePriority(id uuid.UUID, due int64) bool {
	i, ok := q.index[id]
	if !ok {
		return false
	}
	q.items[i].due = due
	heap.Fix(q, i)
	return true
}
