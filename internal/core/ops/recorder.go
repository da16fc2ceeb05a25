package ops

// Sink receives operations as they are emitted by an editing session.
type Sink interface {
	OnOperation(op Operation)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(op Operation)

func (f SinkFunc) OnOperation(op Operation) { f(op) }

// Recorder queues operations captured since the last Drain, in capture
// order. It is owned by the tick thread and performs no locking.
type Recorder struct {
	queue []Operation
}

var _ Sink = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnOperation(op Operation) {
	r.queue = append(r.queue, op)
}

// Drain hands over the queued batch and starts a new one.
func (r *Recorder) Drain() []Operation {
	batch := r.queue
	r.queue = nil
	return batch
}

func (r *Recorder) Len() int {
	return len(r.queue)
}
