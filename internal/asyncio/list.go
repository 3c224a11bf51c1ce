package asyncio

// Disposition is returned by a Walk visitor to tell the list what happened
// to the current record.
type Disposition int

const (
	// Keep leaves the record in place; the walk advances to its successor.
	Keep Disposition = iota
	// Unlinked tells the list the visitor already removed the current
	// record (via Remove) from whichever list it was in. The walk has
	// already captured the successor before invoking the visitor, so this
	// is always safe.
	Unlinked
	// Stop ends the traversal immediately, leaving all remaining records
	// untouched.
	Stop
)

// EventList is an intrusive doubly-linked list of *OperationRecord with a
// sentinel head. It supports O(1) append and removal and a traversal that
// tolerates unlinking the current record mid-walk. There is no random
// access.
type EventList struct {
	sentinel OperationRecord
	length   int
}

// NewEventList returns an empty list, ready to use.
func NewEventList() *EventList {
	l := &EventList{}
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel

	return l
}

// PushBack places rec at the tail of the list. O(1).
func (l *EventList) PushBack(rec *OperationRecord) {
	last := l.sentinel.prev
	rec.prev = last
	rec.next = &l.sentinel
	last.next = rec
	l.sentinel.prev = rec
	rec.owner = l
	l.length++
}

// Remove detaches rec from the list without freeing it. The caller must
// know rec is currently a member of l. O(1).
func (l *EventList) Remove(rec *OperationRecord) {
	rec.prev.next = rec.next
	rec.next.prev = rec.prev
	rec.prev = nil
	rec.next = nil
	rec.owner = nil
	l.length--
}

// Len returns the current length of the list.
func (l *EventList) Len() int {
	return l.length
}

// Front returns the first record, or nil if the list is empty.
func (l *EventList) Front() *OperationRecord {
	if l.sentinel.next == &l.sentinel {
		return nil
	}

	return l.sentinel.next
}

// Walk traverses the list in insertion order, invoking visit on each
// record. The successor is captured before visit runs, so visit may call
// Remove on the current record (and report Unlinked) without corrupting
// the traversal. visit may also append new records to a different list —
// those never appear in this walk, since the successor pointer was already
// fixed before visit ran.
//
// Records appended to THIS list during the walk (by calling PushBack on l
// itself from within visit) are also excluded. The tail at entry is
// snapshotted once before the loop starts; the walk stops after visiting
// that snapshotted record, rather than running until it naturally reaches
// the sentinel. A PushBack mid-walk relinks the snapshotted tail's next
// pointer to the new record, so following cur.next past the snapshot would
// walk straight into it — stopping at the snapshot instead gives callers
// like the Wait Engine the insertion-order-snapshot semantics they need,
// not a generational sweep that can run off the end into fresh appends.
func (l *EventList) Walk(visit func(rec *OperationRecord) Disposition) {
	if l.sentinel.next == &l.sentinel {
		return
	}

	tailAtEntry := l.sentinel.prev
	cur := l.sentinel.next

	for {
		next := cur.next
		atTail := cur == tailAtEntry

		switch visit(cur) {
		case Stop:
			return
		case Unlinked, Keep:
			// Unlinked: visitor already called Remove; next was captured
			// above so the walk is unaffected.
			// Keep: nothing to do, advance.
		}

		if atTail {
			return
		}

		cur = next
	}
}
