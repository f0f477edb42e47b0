package storage

// Write is a pending write of src to style at dest.
type Write struct {
	Dest   Destination
	Style  string
	Source Source
}

// Delete is a pending removal of style at dest.
type Delete struct {
	Dest  Destination
	Style string
}

type entryKey struct {
	dest  Destination
	style string
}

// Queue stages writes and deletes in memory, keyed by destination and style,
// until they are flushed. Queuing the same destination and style again
// replaces the earlier entry in place. A Queue is owned by one attachment and
// is not safe for concurrent use.
type Queue struct {
	writes    []Write
	writeIdx  map[entryKey]int
	deletes   []Delete
	deleteIdx map[entryKey]int
}

// QueueWrite stages src for style at dest.
func (q *Queue) QueueWrite(dest Destination, style string, src Source) {
	if q.writeIdx == nil {
		q.writeIdx = make(map[entryKey]int)
	}
	k := entryKey{dest, style}
	if i, ok := q.writeIdx[k]; ok {
		q.writes[i].Source = src
		return
	}
	q.writeIdx[k] = len(q.writes)
	q.writes = append(q.writes, Write{Dest: dest, Style: style, Source: src})
}

// QueueDelete stages the removal of style at dest.
func (q *Queue) QueueDelete(dest Destination, style string) {
	if q.deleteIdx == nil {
		q.deleteIdx = make(map[entryKey]int)
	}
	k := entryKey{dest, style}
	if _, ok := q.deleteIdx[k]; ok {
		return
	}
	q.deleteIdx[k] = len(q.deletes)
	q.deletes = append(q.deletes, Delete{Dest: dest, Style: style})
}

// DiscardWrites drops every pending write.
func (q *Queue) DiscardWrites() {
	q.writes = nil
	q.writeIdx = nil
}

// Pending reports the number of queued writes and deletes.
func (q *Queue) Pending() (writes, deletes int) {
	return len(q.writes), len(q.deletes)
}

// Writes returns the pending writes in queue order.
func (q *Queue) Writes() []Write {
	return append([]Write(nil), q.writes...)
}

// Deletes returns the pending deletes in queue order.
func (q *Queue) Deletes() []Delete {
	return append([]Delete(nil), q.deletes...)
}

// dropWrites removes the first n writes, which have been flushed.
func (q *Queue) dropWrites(n int) {
	rest := q.writes[n:]
	q.writes = nil
	q.writeIdx = nil
	for _, w := range rest {
		q.QueueWrite(w.Dest, w.Style, w.Source)
	}
}

// dropDeletes removes the first n deletes, which have been flushed.
func (q *Queue) dropDeletes(n int) {
	rest := q.deletes[n:]
	q.deletes = nil
	q.deleteIdx = nil
	for _, d := range rest {
		q.QueueDelete(d.Dest, d.Style)
	}
}
