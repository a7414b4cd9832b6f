package worker

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tliron/commonlog"

	"github.com/avgusev/streamline-studio/blockcache"
	"github.com/avgusev/streamline-studio/bus"
	"github.com/avgusev/streamline-studio/stream"
)

var streamLog = commonlog.GetLogger("worker.stream")

// SingleBlock identifies the fixed package and module used to resolve
// one block for the cache-fetch path.
type SingleBlock struct {
	Package string
	Module  string
}

// Stream owns the streaming client and is the block cache's only
// writer. One session runs at a time; queued requests wait for the
// current session to drain completely.
type Stream struct {
	client stream.Client
	cache  *blockcache.Cache
	single SingleBlock

	in  *bus.Queue[bus.StreamRequest]
	out *bus.Queue[bus.Notification]
}

// NewStream creates the worker. Call Run on its own goroutine.
func NewStream(client stream.Client, cache *blockcache.Cache, single SingleBlock,
	in *bus.Queue[bus.StreamRequest], out *bus.Queue[bus.Notification]) *Stream {
	return &Stream{client: client, cache: cache, single: single, in: in, out: out}
}

// Run drains the request queue until it is closed.
func (w *Stream) Run() {
	for req := range w.in.Receive() {
		w.handle(req)
	}
}

func (w *Stream) handle(req bus.StreamRequest) {
	switch r := req.(type) {
	case bus.RunRange:
		w.runRange(r)
	case bus.FetchSingleBlock:
		w.fetchSingleBlock(r)
	default:
		streamLog.Errorf("unknown request %T", req)
	}
}

// runRange forwards every record of one range session to the message
// log. An open failure is reported once and the request dropped; there
// is no retry.
func (w *Stream) runRange(r bus.RunRange) {
	records, err := w.client.Open(context.Background(), stream.Request{
		Endpoint: r.Endpoint,
		Package:  r.Package,
		Module:   r.Module,
		Token:    r.Token,
		Start:    r.Start,
		Stop:     r.Stop,
	})
	if err != nil {
		w.out.Send(bus.TextMessage{Text: "Stream failed to open: " + err.Error()})
		return
	}

	for rec := range records {
		v, ok := w.parse(rec)
		if !ok {
			continue
		}
		w.out.Send(bus.JsonMessage{Value: v})
	}
}

// fetchSingleBlock resolves one block through the fixed single-block
// module and writes each record into the requested cache slot. The first
// (and expected only) record populates the cache.
func (w *Stream) fetchSingleBlock(r bus.FetchSingleBlock) {
	records, err := w.client.Open(context.Background(), stream.Request{
		Endpoint: r.Endpoint,
		Package:  w.single.Package,
		Module:   w.single.Module,
		Token:    r.Token,
		Start:    r.Number,
		Stop:     uint64(r.Number) + 1,
	})
	if err != nil {
		w.out.Send(bus.TextMessage{Text: "Stream failed to open: " + err.Error()})
		return
	}

	for rec := range records {
		v, ok := w.parse(rec)
		if !ok {
			continue
		}
		if !w.cache.Set(r.Slot, v) {
			continue
		}
		w.out.Send(bus.BlockCacheUpdated{Slot: r.Slot, Value: v})
	}
}

// parse decodes one record; a malformed record is reported and skipped
// rather than ending the session.
func (w *Stream) parse(rec stream.Record) (any, bool) {
	var v any
	if err := sonic.Unmarshal(rec, &v); err != nil {
		w.out.Send(bus.TextMessage{Text: fmt.Sprintf("Malformed record: %v", err)})
		return nil, false
	}
	return v, true
}
