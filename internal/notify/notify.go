// Package notify implements explicit change notification for loop-owned
// components. Observers are called synchronously on the loop.
package notify

// Kind classifies a Change.
type Kind int

const (
	Inserted Kind = iota
	Removed
	Moved
	Updated
	MainPositionChanged
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Removed:
		return "removed"
	case Moved:
		return "moved"
	case Updated:
		return "updated"
	case MainPositionChanged:
		return "main_position_changed"
	default:
		return "unknown"
	}
}

// Change describes a single-row mutation of an ordered collection.
// Index is the affected row; To is the destination for Moved and
// MainPositionChanged.
type Change struct {
	Kind  Kind
	Index int
	To    int
}

// Observers is a list of subscribers to values of type T.
type Observers[T any] struct {
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (o *Observers[T]) Subscribe(fn func(T)) (cancel func()) {
	o.next++
	id := o.next
	o.subs = append(o.subs, subscriber[T]{id: id, fn: fn})
	return func() {
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every subscriber with v in subscription order.
func (o *Observers[T]) Emit(v T) {
	subs := o.subs
	for _, s := range subs {
		s.fn(v)
	}
}

// Len reports the number of subscribers.
func (o *Observers[T]) Len() int {
	return len(o.subs)
}
