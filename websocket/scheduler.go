package websocket

import (
	"io"
	"time"

	"golang.org/x/time/rate"
)

// writeScheduler is the two-tier FIFO write queue: a priority queue for
// control frames (CLOSE/PING/PONG) and a normal queue for data frames,
// drained by flush under a byte-rate budget.
//
// golang.org/x/time/rate provides the token bucket: writeRate bytes/sec,
// burst writeRate, so a cycle starting with a full bucket can still flush
// one full write_rate-sized chunk at once, matching the per-cycle cap the
// flush algorithm wants.
type writeScheduler struct {
	priorityQueue [][]byte
	normalQueue   [][]byte
	cursor        []byte
	limiter       *rate.Limiter
	closeAfter    bool
}

func newWriteScheduler(writeRate int) *writeScheduler {
	if writeRate <= 0 {
		writeRate = defaultRate
	}
	return &writeScheduler{
		limiter: rate.NewLimiter(rate.Limit(writeRate), writeRate),
	}
}

func (s *writeScheduler) setRate(writeRate int) {
	if writeRate <= 0 {
		writeRate = defaultRate
	}
	s.limiter.SetLimit(rate.Limit(writeRate))
	s.limiter.SetBurst(writeRate)
}

// enqueue appends frame to the priority queue (for CLOSE/PING/PONG opcodes)
// or the normal queue.
func (s *writeScheduler) enqueue(frame []byte, priority bool) {
	if priority {
		s.priorityQueue = append(s.priorityQueue, frame)
		return
	}
	s.normalQueue = append(s.normalQueue, frame)
}

func (s *writeScheduler) armCloseAfterWrite() {
	s.closeAfter = true
}

// isEmpty reports whether both queues and the cursor are empty — i.e.
// there is nothing left to write.
func (s *writeScheduler) isEmpty() bool {
	return len(s.cursor) == 0 && len(s.priorityQueue) == 0 && len(s.normalQueue) == 0
}

// flush runs one cycle of the flush algorithm:
//  1. if the cursor is empty, pop the head of the priority queue, else the
//     normal queue, into the cursor;
//  2. if still empty, there is nothing to do;
//  3. attempt to write min(write_rate, len(cursor)) bytes, gated by the
//     token bucket (skip the cycle entirely if the bucket can't cover the
//     whole attempted write — simpler than partial token consumption, and
//     the cursor already carries over any remainder to the next cycle);
//  4. on transport failure, return the error so the caller emits
//     Error(Write);
//  5. on short write, retain the unwritten tail in the cursor;
//  6. report whether the scheduler just became empty with close_after_write
//     armed, so the caller can close the transport.
func (s *writeScheduler) flush(w io.Writer, now time.Time) (shouldClose bool, err error) {
	if len(s.cursor) == 0 {
		if len(s.priorityQueue) > 0 {
			s.cursor = s.priorityQueue[0]
			s.priorityQueue = s.priorityQueue[1:]
		} else if len(s.normalQueue) > 0 {
			s.cursor = s.normalQueue[0]
			s.normalQueue = s.normalQueue[1:]
		}
	}

	if len(s.cursor) == 0 {
		return s.closeAfter && s.isEmpty(), nil
	}

	attempt := len(s.cursor)
	if int(s.limiter.Burst()) < attempt {
		attempt = s.limiter.Burst()
	}
	if !s.limiter.AllowN(now, attempt) {
		return false, nil
	}

	n, writeErr := w.Write(s.cursor[:attempt])
	s.cursor = s.cursor[n:]
	if writeErr != nil {
		return false, writeErr
	}

	return s.closeAfter && s.isEmpty(), nil
}
