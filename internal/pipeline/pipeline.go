// Package pipeline implements the per-frame control loop: admission control,
// face location, conversion, sampling, inference and risk classification.
package pipeline

import (
	"fmt"
	"hash/fnv"
	"image"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"deepcheck/internal/detect"
	"deepcheck/internal/imaging"
	"deepcheck/internal/inference"
	"deepcheck/internal/risk"
	"deepcheck/logger"
)

// Handler receives pipeline results on the engine worker goroutine. Handlers
// must not block; a slow handler stalls the single inference worker.
type Handler interface {
	OnResult(fakeProb float32, level risk.Level, seq uint64)
	OnFaceStatus(found bool, box image.Rectangle)
	OnError(err error, seq uint64)
}

// Options configures a Pipeline.
type Options struct {
	// MinInterval is the minimum spacing between accepted frames. Frames
	// arriving sooner are dropped, never queued.
	MinInterval time.Duration

	// Thresholds are the risk band boundaries.
	Thresholds risk.Thresholds

	// InputWidth and InputHeight are the classifier's input resolution.
	InputWidth  int
	InputHeight int

	// ScoreWindow bounds the session score tracker.
	ScoreWindow int

	// SampleRate thins the diagnostic output: N logs one frame in N, zero
	// logs every frame.
	SampleRate int
}

// Stats is a snapshot of the pipeline counters and session score summary.
type Stats struct {
	Accepted        uint64
	DroppedBusy     uint64
	DroppedInterval uint64
	NoFace          uint64
	Errors          uint64
	Scores          risk.Summary
}

// Pipeline drives one frame at a time through locate → convert → sample →
// infer → classify. The busy flag plus the minimum-interval check form a
// non-blocking admission gate: Process never waits, it accepts or drops.
type Pipeline struct {
	opts      Options
	locator   detect.Locator
	converter *imaging.Converter
	engine    *inference.Engine
	handler   Handler
	diag      *logger.Diagnostics
	session   string

	busy         atomic.Bool
	lastAccepted atomic.Int64 // unix nanos of the last accepted frame
	now          func() time.Time

	tracker *risk.Tracker

	// lastHash is the pixel-region digest of the most recent sampled tensor.
	// Written by the producer and read by deliver, both on the engine worker.
	lastHash uint64

	accepted        atomic.Uint64
	droppedBusy     atomic.Uint64
	droppedInterval atomic.Uint64
	noFace          atomic.Uint64
	errors          atomic.Uint64
}

// New validates the options and wires the pipeline. The engine and locator
// remain owned by the caller; the pipeline never closes them. A nil diagLog
// disables diagnostics entirely.
func New(locator detect.Locator, engine *inference.Engine, handler Handler, diagLog *logrus.Logger, opts Options) (*Pipeline, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk thresholds: %w", err)
	}
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid classifier input size %dx%d", opts.InputWidth, opts.InputHeight)
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 200 * time.Millisecond
	}
	session := uuid.New().String()
	var diag *logger.Diagnostics
	if diagLog != nil {
		diag = logger.New(diagLog, session, opts.SampleRate)
	}
	return &Pipeline{
		opts:      opts,
		locator:   locator,
		converter: imaging.NewConverter(),
		engine:    engine,
		handler:   handler,
		diag:      diag,
		session:   session,
		now:       time.Now,
		tracker:   risk.NewTracker(opts.ScoreWindow),
	}, nil
}

// Session returns the pipeline's session ID, carried on every diagnostic.
func (p *Pipeline) Session() string { return p.session }

// Process applies the admission gate to one incoming frame. It returns true
// if the frame was accepted; a rejected frame is released immediately and the
// caller gets no further callbacks for it. Accepted frames proceed
// asynchronously and always end in exactly one OnResult, OnFaceStatus(false)
// or OnError delivery.
func (p *Pipeline) Process(f *imaging.Frame) bool {
	if !p.busy.CompareAndSwap(false, true) {
		p.droppedBusy.Add(1)
		p.diag.Event(logger.CategoryAdmission, "frame dropped: pipeline busy", nil)
		f.Release()
		return false
	}

	now := p.now()
	if last := p.lastAccepted.Load(); last != 0 && now.Sub(time.Unix(0, last)) < p.opts.MinInterval {
		p.busy.Store(false)
		p.droppedInterval.Add(1)
		p.diag.Event(logger.CategoryAdmission, "frame dropped: below minimum interval", nil)
		f.Release()
		return false
	}
	p.lastAccepted.Store(now.UnixNano())
	p.accepted.Add(1)

	go p.run(f)
	return true
}

// run carries one accepted frame through the rest of the state machine. The
// busy flag is cleared exactly once on every exit path.
func (p *Pipeline) run(f *imaging.Frame) {
	boxes, err := p.locator.Locate(f)
	if err != nil {
		// Locator failures classify as "no face" but stay visible in
		// diagnostics under their own message.
		p.diag.Event(logger.CategoryBBox, fmt.Sprintf("face location failed: %v", err), nil)
		p.finishNoFace(f)
		return
	}
	if len(boxes) == 0 {
		p.diag.Event(logger.CategoryBBox, "no face in frame", nil)
		p.finishNoFace(f)
		return
	}

	box := imaging.ClampRect(boxes[0].Rect(), f.Width, f.Height)
	p.handler.OnFaceStatus(true, box)

	rgb := p.converter.Convert(f)
	srcW, srcH := f.Width, f.Height
	f.Release()

	_, err = p.engine.Enqueue(
		func(input []float32) error {
			imaging.SampleInto(rgb, srcW, srcH, box, p.opts.InputWidth, p.opts.InputHeight, input)
			if p.diag.Enabled() {
				p.lastHash = hashFloats(input)
			}
			return nil
		},
		func(r inference.Result) {
			defer p.busy.Store(false)
			p.deliver(r, box)
		},
	)
	if err != nil {
		p.errors.Add(1)
		p.handler.OnError(err, 0)
		p.busy.Store(false)
	}
}

func (p *Pipeline) finishNoFace(f *imaging.Frame) {
	p.noFace.Add(1)
	p.handler.OnFaceStatus(false, image.Rectangle{})
	f.Release()
	p.busy.Store(false)
}

// deliver classifies one inference result and reports it. Runs on the engine
// worker.
func (p *Pipeline) deliver(r inference.Result, box image.Rectangle) {
	fl := p.diag.Frame(r.Seq)

	if r.Err != nil {
		p.errors.Add(1)
		p.handler.OnError(r.Err, r.Seq)
		fl.Event(logger.CategoryRawOutput, "inference failed", logrus.Fields{"error": r.Err.Error()})
		fl.Commit()
		return
	}

	// score0 is the fake probability by convention; the positional mapping
	// was established against the bundled model, not read from metadata.
	fakeProb := r.Score0
	level := risk.Classify(fakeProb, p.opts.Thresholds)
	p.tracker.Observe(fakeProb)
	p.handler.OnResult(fakeProb, level, r.Seq)

	fl.Event(logger.CategoryBBox, "face region", logrus.Fields{
		"left": box.Min.X, "top": box.Min.Y, "right": box.Max.X, "bottom": box.Max.Y,
	})
	fl.Event(logger.CategoryPixels, "sampled region", logrus.Fields{
		"hash": fmt.Sprintf("%016x", p.lastHash),
	})
	fl.Event(logger.CategoryRawOutput, "model output", logrus.Fields{
		"score0": r.Score0, "score1": r.Score1,
	})
	fl.Event(logger.CategoryScores, "interpreted scores", logrus.Fields{
		"fake_prob": fakeProb, "level": level.String(),
	})
	fl.Commit()
}

// hashFloats digests a sampled tensor for the pixel-region diagnostic.
func hashFloats(data []float32) uint64 {
	h := fnv.New64a()
	var b [4]byte
	for _, v := range data {
		bits := math.Float32bits(v)
		b[0] = byte(bits)
		b[1] = byte(bits >> 8)
		b[2] = byte(bits >> 16)
		b[3] = byte(bits >> 24)
		h.Write(b[:])
	}
	return h.Sum64()
}

// Stats returns a snapshot of the counters and the session score summary.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted:        p.accepted.Load(),
		DroppedBusy:     p.droppedBusy.Load(),
		DroppedInterval: p.droppedInterval.Load(),
		NoFace:          p.noFace.Load(),
		Errors:          p.errors.Load(),
		Scores:          p.tracker.Summarize(),
	}
}
