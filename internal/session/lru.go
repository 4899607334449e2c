package session

// lruList orders session entries from most to least recently used. It is not safe for
// concurrent use; MemoryStore guards it with its own mutex.
type lruList struct {
	head *entry // most recently used
	tail *entry // least recently used
}

func newLRUList() *lruList {
	l := &lruList{head: &entry{}, tail: &entry{}}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

func (l *lruList) pushFront(e *entry) {
	e.prev = l.head
	e.next = l.head.next
	l.head.next.prev = e
	l.head.next = e
}

func (l *lruList) remove(e *entry) {
	if e.prev == nil || e.next == nil {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (l *lruList) moveToFront(e *entry) {
	l.remove(e)
	l.pushFront(e)
}

// back returns the least recently used entry, nil when empty
func (l *lruList) back() *entry {
	if l.tail.prev == l.head {
		return nil
	}
	return l.tail.prev
}

// ids lists entry ids from most to least recently used
func (l *lruList) ids() []string {
	var out []string
	for e := l.head.next; e != l.tail; e = e.next {
		out = append(out, e.session.ID)
	}
	return out
}
