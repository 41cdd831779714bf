package packet

import "testing"

func TestPktInQueueAccounting(t *testing.T) {
	free := NewFreeQueue()
	q := NewPktInQueue(free)

	if !q.Empty() || q.TotalSize() != 0 {
		t.Fatal("new queue must be empty with zero total size")
	}

	p1 := NewPktIn(94, 1, []byte("hello"))
	p2 := NewPktIn(94, 2, []byte("world!"))
	q.Push(p1)
	q.Push(p2)

	want := p1.formalSize + p2.formalSize
	if q.TotalSize() != want {
		t.Fatalf("total_size = %d, want %d", q.TotalSize(), want)
	}

	got := q.Pop()
	if got != p1 {
		t.Fatal("Pop must return FIFO head")
	}
	if q.TotalSize() != p2.formalSize {
		t.Fatalf("total_size after pop = %d, want %d", q.TotalSize(), p2.formalSize)
	}

	q.Pop()
	if !q.Empty() || q.TotalSize() != 0 {
		t.Fatal("queue must be empty with zero total_size once drained")
	}
}

func TestRePushPanics(t *testing.T) {
	q := NewPktInQueue(nil)
	p := NewPktIn(1, 0, nil)
	q.Push(p)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on re-push of linked node")
		}
	}()
	q.Push(p)
}

func TestFreeQueueDefersReclamation(t *testing.T) {
	free := NewFreeQueue()
	q := NewPktInQueue(free)
	p := NewPktIn(94, 1, []byte("payload"))
	q.Push(p)
	q.Pop()

	// Body must still be valid until Drain runs — this is the whole point of
	// the deferred free (spec.md §4.1).
	if string(p.body) != "payload" {
		t.Fatal("popped packet body must remain valid until FreeQueue.Drain")
	}
	free.Drain()
	if p.body != nil {
		t.Fatal("Drain must reset the packet")
	}
}

func TestConcatenatePreservesOrderAndSize(t *testing.T) {
	free := NewFreeQueue()
	q1 := NewPktInQueue(free)
	q2 := NewPktInQueue(free)
	dest := NewPktInQueue(free)

	a := NewPktIn(1, 1, []byte("a"))
	b := NewPktIn(1, 2, []byte("b"))
	c := NewPktIn(1, 3, []byte("c"))
	q1.Push(a)
	q1.Push(b)
	q2.Push(c)

	wantSize := a.formalSize + b.formalSize + c.formalSize
	ConcatenatePktIn(dest, q1, q2)

	if !q1.Empty() || !q2.Empty() {
		t.Fatal("q1 and q2 must be empty after concatenate")
	}
	if dest.TotalSize() != wantSize {
		t.Fatalf("dest total_size = %d, want %d", dest.TotalSize(), wantSize)
	}
	order := []*PktIn{dest.Pop(), dest.Pop(), dest.Pop()}
	if order[0] != a || order[1] != b || order[2] != c {
		t.Fatal("concatenate must preserve order: q1 then q2")
	}
}

func TestIdempotentCallbackCoalesces(t *testing.T) {
	sched := NewScheduler()
	runs := 0
	cb := NewCallback(sched, func() { runs++ })

	cb.Queue()
	cb.Queue()
	cb.Queue()
	sched.Drain()

	if runs != 1 {
		t.Fatalf("callback ran %d times, want 1", runs)
	}
}

func TestIdempotentCallbackRequeueDuringDrainRunsNextPass(t *testing.T) {
	sched := NewScheduler()
	runs := 0
	var cb *Callback
	cb = NewCallback(sched, func() {
		runs++
		if runs == 1 {
			cb.Queue() // re-queue from within the callback itself
		}
	})
	cb.Queue()
	sched.Drain()
	if runs != 2 {
		t.Fatalf("expected callback to run again on the same Drain's follow-up pass, got %d runs", runs)
	}
}

func TestPktOutQueueFIFO(t *testing.T) {
	q := NewPktOutQueue()
	p1 := NewPktOut(94)
	p1.WriteUint32(1)
	p2 := NewPktOut(94)
	p2.WriteUint32(2)
	q.Push(p1)
	q.Push(p2)

	if q.Pop() != p1 || q.Pop() != p2 {
		t.Fatal("PktOutQueue must be FIFO")
	}
	if !q.Empty() || q.TotalSize() != 0 {
		t.Fatal("queue must be empty after draining")
	}
}
