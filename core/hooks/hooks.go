// Package hooks runs ordered interceptors around model operations.
package hooks

import "context"

// Func is one interceptor. Returning nil continues the pipeline; any error
// aborts it.
type Func[C any] func(ctx context.Context, c C) error

// Run calls hooks in order against the shared context c. The first error is
// returned unchanged and no later hook runs. An empty list returns nil.
func Run[C any](ctx context.Context, c C, hooks []Func[C]) error {
	for _, h := range hooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Phase is when a hook runs relative to the adapter call.
type Phase string

const (
	Before Phase = "before"
	After  Phase = "after"
)

// Event is the kind of operation a hook intercepts.
type Event string

const (
	Find   Event = "find"
	Save   Event = "save"
	Delete Event = "delete"
)

// Key identifies one hook list.
type Key struct {
	Phase Phase
	Event Event
}

func (k Key) String() string { return string(k.Phase) + " " + string(k.Event) }

// Queue holds the hook lists of one model, keyed by phase and event.
// Registration is expected to finish before the first Run.
type Queue[C any] struct {
	lists map[Key][]Func[C]
}

// NewQueue returns an empty queue.
func NewQueue[C any]() *Queue[C] {
	return &Queue[C]{lists: make(map[Key][]Func[C])}
}

// Add appends fn to the list for k.
func (q *Queue[C]) Add(k Key, fn Func[C]) {
	q.lists[k] = append(q.lists[k], fn)
}

// List returns the hooks registered for k.
func (q *Queue[C]) List(k Key) []Func[C] {
	return q.lists[k]
}

// Len returns the number of hooks registered for k.
func (q *Queue[C]) Len(k Key) int {
	return len(q.lists[k])
}
