// Package logger provides category-tagged diagnostics for the frame
// pipeline. Entries for one frame are buffered in memory and committed after
// the result callback has fired, so diagnostics never sit on the
// timing-sensitive path.
package logger

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Diagnostic categories. These match the offline-debugging taxonomy: the
// located bounding box, a hash of the sampled pixel region, the raw model
// output and the interpreted scores, plus admission-control decisions.
const (
	CategoryBBox      = "bbox"
	CategoryPixels    = "pixels"
	CategoryRawOutput = "raw_output"
	CategoryScores    = "scores"
	CategoryAdmission = "admission"
)

// Diagnostics is the per-session sink. sampleRate of N logs one frame in N;
// zero logs every frame.
type Diagnostics struct {
	log        *logrus.Logger
	session    string
	sampleRate int
	enabled    atomic.Bool
	frames     atomic.Uint64
}

// New builds a sink tagged with the session ID. A nil *Diagnostics is valid
// everywhere and discards everything.
func New(log *logrus.Logger, session string, sampleRate int) *Diagnostics {
	d := &Diagnostics{log: log, session: session, sampleRate: sampleRate}
	d.enabled.Store(true)
	return d
}

// SetEnabled toggles the sink at runtime.
func (d *Diagnostics) SetEnabled(enabled bool) {
	if d != nil {
		d.enabled.Store(enabled)
	}
}

// Enabled reports whether the sink currently records anything.
func (d *Diagnostics) Enabled() bool {
	return d != nil && d.enabled.Load()
}

// Event logs one entry immediately, outside any frame buffer. Used for
// decisions that never open a frame log, such as dropped frames.
func (d *Diagnostics) Event(category, message string, fields logrus.Fields) {
	if d == nil || !d.enabled.Load() {
		return
	}
	d.log.WithFields(fields).WithFields(logrus.Fields{
		"session":  d.session,
		"category": category,
	}).Debug(message)
}

type entry struct {
	category string
	message  string
	fields   logrus.Fields
}

// FrameLog buffers the diagnostic entries of a single frame. Nil when the
// frame was sampled out; all methods are nil-safe.
type FrameLog struct {
	parent  *Diagnostics
	seq     uint64
	entries []entry
}

// Frame opens a buffered log for one accepted frame. Returns nil if the sink
// is disabled or this frame is sampled out.
func (d *Diagnostics) Frame(seq uint64) *FrameLog {
	if d == nil || !d.enabled.Load() {
		return nil
	}
	n := d.frames.Add(1)
	if d.sampleRate > 1 && n%uint64(d.sampleRate) != 0 {
		return nil
	}
	return &FrameLog{parent: d, seq: seq}
}

// Event buffers one categorized entry.
func (fl *FrameLog) Event(category, message string, fields logrus.Fields) {
	if fl == nil {
		return
	}
	fl.entries = append(fl.entries, entry{category: category, message: message, fields: fields})
}

// Commit flushes the buffered entries. Call after the result callback has
// been delivered.
func (fl *FrameLog) Commit() {
	if fl == nil || len(fl.entries) == 0 {
		return
	}
	for _, e := range fl.entries {
		fl.parent.log.WithFields(e.fields).WithFields(logrus.Fields{
			"session":  fl.parent.session,
			"seq":      fl.seq,
			"category": e.category,
		}).Debug(e.message)
	}
	fl.entries = fl.entries[:0]
}
