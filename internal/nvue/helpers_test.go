package nvue

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"
)

// sentRequest records one call to fakeConn.Send
type sentRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// fakeReply is a canned answer; err short-circuits with a connection error
type fakeReply struct {
	status int
	body   string
	err    error
}

// fakeConn replays replies in order and records every request
type fakeConn struct {
	mu       sync.Mutex
	replies  []fakeReply
	requests []sentRequest
}

func newFakeConn(replies ...fakeReply) *fakeConn {
	return &fakeConn{replies: replies}
}

func (f *fakeConn) Send(_ context.Context, path string, body []byte, headers map[string]string, method string) (*RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, sentRequest{
		Method:  method,
		Path:    path,
		Body:    string(body),
		Headers: headers,
	})

	if len(f.replies) == 0 {
		return &RawResponse{StatusCode: 500, Status: "500 Internal Server Error", Body: strings.NewReader("no reply queued")}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	if reply.err != nil {
		return nil, reply.err
	}
	status := reply.status
	if status == 0 {
		status = 200
	}
	return &RawResponse{StatusCode: status, Body: bytes.NewReader([]byte(reply.body))}, nil
}

func (f *fakeConn) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// fakeClock records sleeps without blocking
type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	return nil
}

// recordingObserver collects transaction events as strings
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) RevisionCreated(id string) { o.add("created " + id) }
func (o *recordingObserver) RevisionPatched(id string) { o.add("patched " + id) }
func (o *recordingObserver) ApplyRequested(id string, _ bool) { o.add("apply " + id) }
func (o *recordingObserver) ApplyPolled(id string, _ int, state string) {
	o.add("poll " + id + " " + state)
}
func (o *recordingObserver) ApplyFinished(id string, state RevisionState, _ int) {
	o.add("finished " + id + " " + state.String())
}
func (o *recordingObserver) RequestFailed(op Operation, _ error) { o.add("failed " + op.String()) }

func newTestClient(conn Connection, opts ...Option) (*Client, *fakeClock) {
	clock := &fakeClock{}
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewClient(conn, opts...), clock
}
