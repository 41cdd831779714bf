package packet

// PktInQueue is a doubly-linked FIFO of PktIn nodes with the total_size
// accounting invariant of spec.md §3: total_size == 0 iff the queue is
// empty, and total_size is always the sum of formalSize over linked nodes.
//
// Popped nodes are moved onto a FreeQueue rather than freed immediately —
// see spec.md §4.1: this lets a handler keep borrowed slices into the packet
// body valid for the duration of the call that consumed it.
type PktInQueue struct {
	head, tail *PktIn
	totalSize  int
	callback   *Callback
	free       *FreeQueue
}

// NewPktInQueue builds an empty queue. free may be nil if this queue's pops
// are never freed through a FreeQueue (tests only; production code always
// supplies one so memory is reclaimed).
func NewPktInQueue(free *FreeQueue) *PktInQueue {
	return &PktInQueue{free: free}
}

// SetCallback attaches (or replaces) the idempotent callback fired whenever
// Push makes the queue non-empty.
func (q *PktInQueue) SetCallback(cb *Callback) { q.callback = cb }

// Empty reports whether the queue currently holds no packets.
func (q *PktInQueue) Empty() bool { return q.head == nil }

// TotalSize returns the running total_size, which must be zero exactly when
// Empty() is true.
func (q *PktInQueue) TotalSize() int { return q.totalSize }

// Push appends node to the tail. node must not already be linked into any
// queue — re-pushing a linked node is a bug and panics, per spec.md §3.
func (q *PktInQueue) Push(node *PktIn) {
	if node.linked {
		panic("packet: PktIn re-pushed while already linked")
	}
	node.prev = q.tail
	node.next = nil
	if q.tail != nil {
		q.tail.next = node
	} else {
		q.head = node
	}
	q.tail = node
	node.linked = true
	q.totalSize += node.formalSize
	if q.callback != nil {
		q.callback.Queue()
	}
}

// PushFront prepends node to the head (used to put a packet back at the
// front after a partial filter pass).
func (q *PktInQueue) PushFront(node *PktIn) {
	if node.linked {
		panic("packet: PktIn re-pushed while already linked")
	}
	node.next = q.head
	node.prev = nil
	if q.head != nil {
		q.head.prev = node
	} else {
		q.tail = node
	}
	q.head = node
	node.linked = true
	q.totalSize += node.formalSize
	if q.callback != nil {
		q.callback.Queue()
	}
}

// Peek returns the head node without removing it, or nil if empty.
func (q *PktInQueue) Peek() *PktIn { return q.head }

// Pop removes and returns the head node, moving it onto the FreeQueue (if
// any) instead of freeing it immediately. Returns nil if the queue is empty.
func (q *PktInQueue) Pop() *PktIn {
	node := q.head
	if node == nil {
		return nil
	}
	q.head = node.next
	if q.head != nil {
		q.head.prev = nil
	} else {
		q.tail = nil
	}
	node.next, node.prev = nil, nil
	node.linked = false
	q.totalSize -= node.formalSize
	if q.free != nil {
		q.free.Add(node)
	}
	return node
}

// Clear pops every node (freeing each through the FreeQueue as usual).
func (q *PktInQueue) Clear() {
	for q.Pop() != nil {
	}
}

// ConcatenatePktIn appends q1 then q2's contents onto dest. dest must be
// empty, or be identical to q1 or q2, matching the precondition in
// spec.md §4.1. After the call q1 and q2 are empty.
func ConcatenatePktIn(dest, q1, q2 *PktInQueue) {
	if dest != q1 && dest != q2 && !dest.Empty() {
		panic("packet: concatenate requires dest empty or == q1/q2")
	}
	var nodes []*PktIn
	for n := q1.head; n != nil; {
		next := n.next
		nodes = append(nodes, n)
		n = next
	}
	for n := q2.head; n != nil; {
		next := n.next
		nodes = append(nodes, n)
		n = next
	}
	q1.head, q1.tail, q1.totalSize = nil, nil, 0
	q2.head, q2.tail, q2.totalSize = nil, nil, 0
	if dest != q1 && dest != q2 {
		dest.head, dest.tail, dest.totalSize = nil, nil, 0
	}
	for _, n := range nodes {
		n.next, n.prev, n.linked = nil, nil, false
	}
	for _, n := range nodes {
		dest.pushRaw(n)
	}
}

// pushRaw links node at the tail without re-checking the callback-free
// concatenation precondition (used only by ConcatenatePktIn, which has
// already validated it and wants a single callback-firing Push).
func (q *PktInQueue) pushRaw(node *PktIn) {
	node.prev = q.tail
	node.next = nil
	if q.tail != nil {
		q.tail.next = node
	} else {
		q.head = node
	}
	q.tail = node
	node.linked = true
	q.totalSize += node.formalSize
	if q.callback != nil {
		q.callback.Queue()
	}
}

// FreeQueue defers PktIn reclamation so dispatch handlers can hold borrowed
// slices into a packet's body until they return (spec.md §4.1, §5). It is
// constructed per-connection rather than as process-wide global state
// (spec.md §9).
type FreeQueue struct {
	pending []*PktIn
}

// NewFreeQueue returns an empty FreeQueue.
func NewFreeQueue() *FreeQueue { return &FreeQueue{} }

// Add moves node onto the free list. It does not reset node immediately —
// that happens in Drain, after the current dispatch call has returned.
func (f *FreeQueue) Add(node *PktIn) {
	f.pending = append(f.pending, node)
}

// Drain resets and releases every pending node. Call this once per filter
// iteration, after all packets drained in that iteration have been
// dispatched.
func (f *FreeQueue) Drain() {
	for _, n := range f.pending {
		n.reset()
	}
	f.pending = f.pending[:0]
}

// PktOutQueue is the outbound analogue of PktInQueue. Popped PktOut nodes
// are not deferred through a free queue: spec.md §5 says outbound packets
// are freed immediately once the BPP has serialized them, so Pop simply
// unlinks and returns the node for the caller (the BPP) to discard.
type PktOutQueue struct {
	head, tail *PktOut
	totalSize  int
	callback   *Callback
}

// NewPktOutQueue builds an empty outbound queue.
func NewPktOutQueue() *PktOutQueue { return &PktOutQueue{} }

// SetCallback attaches the idempotent callback fired whenever Push makes the
// queue non-empty (the BPP's "output pending" callback, spec.md §4.2).
func (q *PktOutQueue) SetCallback(cb *Callback) { q.callback = cb }

// Empty reports whether the queue currently holds no packets.
func (q *PktOutQueue) Empty() bool { return q.head == nil }

// TotalSize returns the running total_size.
func (q *PktOutQueue) TotalSize() int { return q.totalSize }

// Push appends node to the tail.
func (q *PktOutQueue) Push(node *PktOut) {
	if node.linked {
		panic("packet: PktOut re-pushed while already linked")
	}
	node.prev = q.tail
	node.next = nil
	if q.tail != nil {
		q.tail.next = node
	} else {
		q.head = node
	}
	q.tail = node
	node.linked = true
	q.totalSize += node.formalSize
	if q.callback != nil {
		q.callback.Queue()
	}
}

// Peek returns the head node without removing it, or nil if empty.
func (q *PktOutQueue) Peek() *PktOut { return q.head }

// Pop removes and returns the head node, or nil if empty.
func (q *PktOutQueue) Pop() *PktOut {
	node := q.head
	if node == nil {
		return nil
	}
	q.head = node.next
	if q.head != nil {
		q.head.prev = nil
	} else {
		q.tail = nil
	}
	node.next, node.prev = nil, nil
	node.linked = false
	q.totalSize -= node.formalSize
	return node
}

// Clear discards every queued packet without serializing it (used when a
// channel's peer has closed and further output is pointless).
func (q *PktOutQueue) Clear() {
	for q.Pop() != nil {
	}
}
