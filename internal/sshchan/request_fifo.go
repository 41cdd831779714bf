package sshchan

import "github.com/websoft9/sshcore/internal/packet"

// RequestHandler is invoked with the SUCCESS/FAILURE reply packet for the
// request it was registered against, or nil if the request was abandoned
// (the connection or channel is being torn down before a reply ever
// arrives — spec.md §4.4 CLOSE, §7 "invoked with a null packet").
type RequestHandler func(reply *packet.PktIn)

// requestNode is one outstanding request's FIFO entry.
type requestNode struct {
	handler RequestHandler
	next    *requestNode
}

// RequestFIFO is the outstanding-request queue described in spec.md §3 for
// both per-channel requests and the connection-wide global-request queue:
// a plain FIFO, since replies must be matched to requests strictly in send
// order (spec.md §5).
type RequestFIFO struct {
	head, tail *requestNode
	n          int
}

// Push enqueues handler for the next reply.
func (f *RequestFIFO) Push(handler RequestHandler) {
	node := &requestNode{handler: handler}
	if f.tail != nil {
		f.tail.next = node
	} else {
		f.head = node
	}
	f.tail = node
	f.n++
}

// Empty reports whether there are no outstanding requests.
func (f *RequestFIFO) Empty() bool { return f.head == nil }

// Len returns the number of outstanding requests.
func (f *RequestFIFO) Len() int { return f.n }

// Pop removes the head handler and returns it, or nil with ok=false if the
// FIFO is empty (an underflow here is always a protocol error at the call
// site — spec.md §4.4 SUCCESS/FAILURE).
func (f *RequestFIFO) Pop() (RequestHandler, bool) {
	node := f.head
	if node == nil {
		return nil, false
	}
	f.head = node.next
	if f.head == nil {
		f.tail = nil
	}
	f.n--
	return node.handler, true
}

// DrainAbandoned pops every outstanding handler and invokes each with a nil
// packet, in FIFO order (spec.md §4.4 CLOSE, §8 "Abandoned requests").
func (f *RequestFIFO) DrainAbandoned() {
	for {
		h, ok := f.Pop()
		if !ok {
			return
		}
		h(nil)
	}
}
