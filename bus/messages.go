package bus

// ExecRequest is a unit of work for the execution worker.
type ExecRequest interface{ execRequest() }

// Evaluate compiles and runs script text under the persistent scope.
type Evaluate struct {
	Source string
}

// EvaluateFunction calls a named script function with positional
// arguments, each one an independent JSON document.
type EvaluateFunction struct {
	Name string
	Args []string
}

// ResetScope clears the worker's evaluation state. The two flags are
// independent: a cleared scope with retained units replays every
// previously compiled unit into the fresh scope.
type ResetScope struct {
	ClearScope bool
	ClearUnits bool
}

// Build invokes the runtime's zero-argument codegen entry point.
type Build struct{}

func (Evaluate) execRequest()         {}
func (EvaluateFunction) execRequest() {}
func (ResetScope) execRequest()       {}
func (Build) execRequest()            {}

// StreamRequest is a unit of work for the streaming worker.
type StreamRequest interface{ streamRequest() }

// RunRange streams every block of [Start, Stop) through the named module
// of the given package, forwarding each record to the message log.
type RunRange struct {
	Start    int64
	Stop     uint64
	Endpoint string
	Package  string
	Module   string
	Token    string
}

// FetchSingleBlock resolves one block through the fixed single-block
// module and writes the record into the given cache slot.
type FetchSingleBlock struct {
	Number   int64
	Endpoint string
	Token    string
	Slot     int
}

func (RunRange) streamRequest()         {}
func (FetchSingleBlock) streamRequest() {}

// Notification is an outbound message for the presentation layer.
type Notification interface{ notification() }

// TextMessage is a plain log line.
type TextMessage struct {
	Text string
}

// JsonMessage is a structured result or streamed record.
type JsonMessage struct {
	Value any
}

// BlockCacheUpdated reports a single-block fetch landing in a cache slot.
type BlockCacheUpdated struct {
	Slot  int
	Value any
}

// MessagesCleared asks the presentation layer to drop its message log.
type MessagesCleared struct{}

func (TextMessage) notification()       {}
func (JsonMessage) notification()       {}
func (BlockCacheUpdated) notification() {}
func (MessagesCleared) notification()   {}
