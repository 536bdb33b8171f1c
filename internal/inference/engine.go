package inference

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrEngineClosed is returned by Enqueue and RunSync after Release.
var ErrEngineClosed = errors.New("inference engine is closed")

// InferenceError wraps a producer or classifier failure with the sequence
// number of the frame that caused it.
type InferenceError struct {
	Seq uint64
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference for frame %d failed: %v", e.Seq, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Producer fills the classifier's input buffer for one frame. It runs on the
// engine worker under the same lock as the inference itself, so it may read
// shared pipeline buffers safely.
type Producer func(input []float32) error

// Result carries one inference outcome. Score0 and Score1 are the raw
// positional outputs; Err is non-nil on failure and is always an
// *InferenceError.
type Result struct {
	Score0 float32
	Score1 float32
	Seq    uint64
	Err    error
}

// Callback receives the result of an enqueued inference.
type Callback func(Result)

type job struct {
	producer Producer
	callback Callback
	seq      uint64
}

// Engine owns one classifier and executes at most one inference at any
// instant. Asynchronous work goes through a single dedicated worker with a
// capacity-1 queue (strict FIFO, no overlap); RunSync shares the same mutex,
// so the two paths can never touch the classifier buffers concurrently.
type Engine struct {
	classifier Classifier

	mu sync.Mutex // guards classifier buffers and Run

	jobs    chan job
	wg      sync.WaitGroup
	closeMu sync.RWMutex // read-held by Enqueue and across RunSync; write-held by Release
	closed  bool

	seq atomic.Uint64
}

// NewEngine starts the worker goroutine. The engine takes ownership of the
// classifier and closes it on Release.
func NewEngine(classifier Classifier) *Engine {
	e := &Engine{
		classifier: classifier,
		jobs:       make(chan job, 1),
	}
	e.wg.Add(1)
	go e.worker()
	return e
}

// Enqueue assigns a sequence number and submits the work unit to the worker.
// The callback fires exactly once, with scores or with a wrapped error.
// Returns the assigned sequence number, or ErrEngineClosed after Release.
func (e *Engine) Enqueue(producer Producer, callback Callback) (uint64, error) {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return 0, ErrEngineClosed
	}
	seq := e.seq.Add(1)
	e.jobs <- job{producer: producer, callback: callback, seq: seq}
	return seq, nil
}

// RunSync performs the same steps as an enqueued job on the calling
// goroutine, under the same lock. Intended for tests and single-shot use.
// The read lock is held for the whole call so Release cannot close the
// classifier while this inference is still executing.
func (e *Engine) RunSync(producer Producer) (float32, float32, error) {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return 0, 0, ErrEngineClosed
	}

	r := e.execute(job{producer: producer, seq: e.seq.Add(1)})
	return r.Score0, r.Score1, r.Err
}

// Reset rewinds the sequence counter to zero. Safe between sessions; the
// input buffer needs no zeroing because every call fully overwrites it.
func (e *Engine) Reset() {
	e.seq.Store(0)
}

// Release stops accepting new work, drains the in-flight job (its callback
// still fires), waits out any executing RunSync and closes the classifier.
func (e *Engine) Release() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	close(e.jobs)
	e.closeMu.Unlock()

	e.wg.Wait()
	return e.classifier.Close()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		j.callback(e.execute(j))
	}
}

// execute runs producer and classifier under the shared lock. Panics from
// either are recovered and surfaced on the error path so the worker survives
// to process subsequent frames.
func (e *Engine) execute(j job) (res Result) {
	res.Seq = j.seq
	defer func() {
		if p := recover(); p != nil {
			res.Err = &InferenceError{Seq: j.seq, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := j.producer(e.classifier.Input()); err != nil {
		res.Err = &InferenceError{Seq: j.seq, Err: err}
		return res
	}
	if err := e.classifier.Run(); err != nil {
		res.Err = &InferenceError{Seq: j.seq, Err: err}
		return res
	}

	out := e.classifier.Output()
	if len(out) < outputClasses {
		res.Err = &InferenceError{Seq: j.seq, Err: fmt.Errorf("malformed output: %d values", len(out))}
		return res
	}
	res.Score0 = out[0]
	res.Score1 = out[1]
	return res
}
