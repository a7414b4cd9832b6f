// Package stream opens block-streaming sessions against a
// Substreams-style gRPC endpoint and yields one serialized record per
// streamed block.
package stream

import "context"

// Record is one streamed block, serialized as JSON.
type Record []byte

// Request identifies one streaming session: which endpoint, which
// package, which output module, over which block range [Start, Stop).
type Request struct {
	Endpoint string
	Package  string
	Module   string
	Token    string
	Start    int64
	Stop     uint64
}

// Client opens streaming sessions. Open fails fast on connection errors;
// once a channel is returned it yields zero or more records and closes
// at range end or on stream failure.
type Client interface {
	Open(ctx context.Context, req Request) (<-chan Record, error)
}
