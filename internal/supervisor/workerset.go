package supervisor

import "github.com/eapache/queue"

// workerSet is the FIFO of live worker PIDs awaiting reap, backed by
// github.com/eapache/queue. A fixed-size counter would do for pure
// admission control, but the supervisor also logs which PID was reaped,
// so the live set is tracked rather than just its length.
type workerSet struct {
	q *queue.Queue
}

func newWorkerSet() *workerSet {
	return &workerSet{q: queue.New()}
}

// add records a newly forked worker's PID.
func (w *workerSet) add(pid int) {
	w.q.Add(pid)
}

// remove drops pid from the set if present, reporting whether it was
// found. Order among the remaining entries is preserved.
func (w *workerSet) remove(pid int) bool {
	n := w.q.Length()
	found := false
	for i := 0; i < n; i++ {
		elem := w.q.Remove().(int)
		if elem == pid && !found {
			found = true
			continue
		}
		w.q.Add(elem)
	}
	return found
}

// len reports the current worker count.
func (w *workerSet) len() int {
	return w.q.Length()
}
