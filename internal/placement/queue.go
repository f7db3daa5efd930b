package placement

import (
	"container/heap"

	"github.com/ayjanu/EEC-Project/internal/domain"
)

// pendingTask is a task that failed placement, waiting to be retried.
type pendingTask struct {
	task     domain.TaskID
	deadline domain.Time
}

// pendingHeap orders pending tasks by ascending target completion, so
// retries run shortest-deadline-first.
type pendingHeap []pendingTask

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(pendingTask)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the pending-task queue: tasks that found no placement wait
// here and are retried on every periodic tick and on every machine
// wake-up.
type Queue struct {
	heap   pendingHeap
	queued map[domain.TaskID]struct{}
}

// NewQueue creates an empty pending queue.
func NewQueue() *Queue {
	return &Queue{queued: make(map[domain.TaskID]struct{})}
}

// Push inserts a task unless it is already queued.
func (q *Queue) Push(task domain.TaskID, deadline domain.Time) {
	if _, ok := q.queued[task]; ok {
		return
	}
	q.queued[task] = struct{}{}
	heap.Push(&q.heap, pendingTask{task: task, deadline: deadline})
}

// Pop removes and returns the task with the nearest deadline.
func (q *Queue) Pop() (domain.TaskID, bool) {
	if q.heap.Len() == 0 {
		return 0, false
	}
	item := heap.Pop(&q.heap).(pendingTask)
	delete(q.queued, item.task)
	return item.task, true
}

// Remove drops a task from the queue if present. Used when a queued task
// completes or is cancelled by the simulator before a retry lands it.
func (q *Queue) Remove(task domain.TaskID) {
	if _, ok := q.queued[task]; !ok {
		return
	}
	delete(q.queued, task)
	for i := range q.heap {
		if q.heap[i].task == task {
			heap.Remove(&q.heap, i)
			return
		}
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return q.heap.Len()
}
