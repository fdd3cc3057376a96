// ABOUTME: Priority queue of decoded chunks awaiting scheduling
// ABOUTME: Orders buffers by server timestamp regardless of arrival order
package resonate

import (
	"container/heap"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
)

// BufferQueue is a min-heap of buffers keyed on server timestamp
type BufferQueue struct {
	items []audio.Buffer
}

// NewBufferQueue creates an empty queue
func NewBufferQueue() *BufferQueue {
	q := &BufferQueue{}
	heap.Init(q)
	return q
}

// Implement heap.Interface
func (q *BufferQueue) Len() int { return len(q.items) }

func (q *BufferQueue) Less(i, j int) bool {
	return q.items[i].Timestamp < q.items[j].Timestamp
}

func (q *BufferQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *BufferQueue) Push(x any) {
	q.items = append(q.items, x.(audio.Buffer))
}

func (q *BufferQueue) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items[n-1] = audio.Buffer{}
	q.items = q.items[:n-1]
	return item
}

// Add enqueues a buffer
func (q *BufferQueue) Add(buf audio.Buffer) {
	heap.Push(q, buf)
}

// Drain removes every buffer, earliest server timestamp first
func (q *BufferQueue) Drain() []audio.Buffer {
	out := make([]audio.Buffer, 0, q.Len())
	for q.Len() > 0 {
		out = append(out, heap.Pop(q).(audio.Buffer))
	}
	return out
}

// Clear drops every buffer and returns how many were dropped
func (q *BufferQueue) Clear() int {
	n := len(q.items)
	q.items = nil
	return n
}
