package slot

import (
	"bytes"
	"runtime"
	"strconv"

	"github.com/petermattis/goid"
)

// goroutineID returns the calling goroutine's id. It is goid.Get unless the
// startup check finds goid disagreeing with the runtime, in which case the
// id is parsed from the stack header.
var goroutineID = goid.Get

func init() {
	if !goidAgrees() {
		goroutineID = stackGoroutineID
	}
}

// goidAgrees compares goid.Get with the stack header id on the current
// goroutine and on a freshly spawned one.
func goidAgrees() bool {
	if goid.Get() != stackGoroutineID() {
		return false
	}
	ok := make(chan bool)
	go func() {
		ok <- goid.Get() == stackGoroutineID()
	}()
	return <-ok
}

// stackGoroutineID parses the "goroutine N [" header runtime.Stack writes.
func stackGoroutineID() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		panic("slot: unreadable goroutine header " + strconv.Quote(string(b)))
	}
	return id
}
