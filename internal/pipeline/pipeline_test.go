package pipeline

import (
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepcheck/internal/detect"
	"deepcheck/internal/imaging"
	"deepcheck/internal/inference"
	"deepcheck/internal/risk"
)

// fakeClassifier satisfies inference.Classifier with canned scores.
type fakeClassifier struct {
	input  []float32
	output []float32
	runErr error
}

func newFakeClassifier(inputSize int, score0, score1 float32) *fakeClassifier {
	return &fakeClassifier{
		input:  make([]float32, inputSize),
		output: []float32{score0, score1},
	}
}

func (c *fakeClassifier) Run() error        { return c.runErr }
func (c *fakeClassifier) Input() []float32  { return c.input }
func (c *fakeClassifier) Output() []float32 { return c.output }
func (c *fakeClassifier) Close() error      { return nil }

// stubLocator returns canned boxes, an error, or blocks until released.
type stubLocator struct {
	boxes []detect.Box
	err   error
	block chan struct{}
}

func (l *stubLocator) Locate(f *imaging.Frame) ([]detect.Box, error) {
	if l.block != nil {
		<-l.block
	}
	return l.boxes, l.err
}

func (l *stubLocator) Close() error { return nil }

type resultEvent struct {
	fakeProb float32
	level    risk.Level
	seq      uint64
}

type faceEvent struct {
	found bool
	box   image.Rectangle
}

type errEvent struct {
	err error
	seq uint64
}

type testHandler struct {
	results chan resultEvent
	faces   chan faceEvent
	errs    chan errEvent
}

func newTestHandler() *testHandler {
	return &testHandler{
		results: make(chan resultEvent, 16),
		faces:   make(chan faceEvent, 16),
		errs:    make(chan errEvent, 16),
	}
}

func (h *testHandler) OnResult(fakeProb float32, level risk.Level, seq uint64) {
	h.results <- resultEvent{fakeProb, level, seq}
}

func (h *testHandler) OnFaceStatus(found bool, box image.Rectangle) {
	h.faces <- faceEvent{found, box}
}

func (h *testHandler) OnError(err error, seq uint64) {
	h.errs <- errEvent{err, seq}
}

func testFrame(width, height int, released *atomic.Int32) *imaging.Frame {
	ySize := width * height
	cSize := (width / 2) * (height / 2)
	return imaging.NewFrame(width, height, 0,
		imaging.Plane{Data: make([]byte, ySize), RowStride: width, PixelStride: 1},
		imaging.Plane{Data: make([]byte, cSize), RowStride: width / 2, PixelStride: 1},
		imaging.Plane{Data: make([]byte, cSize), RowStride: width / 2, PixelStride: 1},
		func() {
			if released != nil {
				released.Add(1)
			}
		},
	)
}

func testOptions() Options {
	return Options{
		MinInterval: 200 * time.Millisecond,
		Thresholds:  risk.DefaultThresholds(),
		InputWidth:  8,
		InputHeight: 8,
	}
}

func newTestPipeline(t *testing.T, locator detect.Locator, cls inference.Classifier, h Handler) (*Pipeline, *inference.Engine) {
	t.Helper()
	engine := inference.NewEngine(cls)
	t.Cleanup(func() { engine.Release() })

	p, err := New(locator, engine, h, nil, testOptions())
	require.NoError(t, err)
	return p, engine
}

func waitIdle(t *testing.T, p *Pipeline) {
	t.Helper()
	require.Eventually(t, func() bool { return !p.busy.Load() },
		time.Second, time.Millisecond, "pipeline did not return to idle")
}

func TestNewRejectsInvalidThresholds(t *testing.T) {
	h := newTestHandler()
	engine := inference.NewEngine(newFakeClassifier(8*8*3, 0, 1))
	defer engine.Release()

	opts := testOptions()
	opts.Thresholds = risk.Thresholds{LowMax: 0.8, HighMin: 0.2}
	_, err := New(&stubLocator{}, engine, h, nil, opts)
	assert.Error(t, err)
}

func TestResultFlow(t *testing.T) {
	h := newTestHandler()
	locator := &stubLocator{boxes: []detect.Box{{Left: 4, Top: 4, Width: 16, Height: 16}}}
	var released atomic.Int32
	p, _ := newTestPipeline(t, locator, newFakeClassifier(8*8*3, 0.9, 0.1), h)

	accepted := p.Process(testFrame(32, 32, &released))
	require.True(t, accepted)

	face := <-h.faces
	assert.True(t, face.found)
	assert.Equal(t, image.Rect(4, 4, 20, 20), face.box)

	res := <-h.results
	assert.InDelta(t, 0.9, res.fakeProb, 1e-6)
	assert.Equal(t, risk.LevelHigh, res.level)
	assert.Equal(t, uint64(1), res.seq)

	waitIdle(t, p)
	assert.EqualValues(t, 1, released.Load(), "frame must be released exactly once")

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.Accepted)
	assert.EqualValues(t, 1, stats.Scores.Count)
}

func TestNoFaceReportsAndClearsBusy(t *testing.T) {
	h := newTestHandler()
	var released atomic.Int32
	p, _ := newTestPipeline(t, &stubLocator{}, newFakeClassifier(8*8*3, 0, 1), h)

	require.True(t, p.Process(testFrame(32, 32, &released)))

	face := <-h.faces
	assert.False(t, face.found)
	waitIdle(t, p)
	assert.EqualValues(t, 1, released.Load())
	assert.EqualValues(t, 1, p.Stats().NoFace)
}

func TestLocatorErrorTreatedAsNoFace(t *testing.T) {
	h := newTestHandler()
	locator := &stubLocator{err: detect.ErrNoFace}
	p, _ := newTestPipeline(t, locator, newFakeClassifier(8*8*3, 0, 1), h)

	require.True(t, p.Process(testFrame(32, 32, nil)))

	face := <-h.faces
	assert.False(t, face.found)
	waitIdle(t, p)

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.NoFace)
	assert.EqualValues(t, 0, stats.Errors, "locator failure is not an inference error")
}

func TestInferenceErrorReported(t *testing.T) {
	h := newTestHandler()
	locator := &stubLocator{boxes: []detect.Box{{Left: 0, Top: 0, Width: 16, Height: 16}}}
	cls := newFakeClassifier(8*8*3, 0, 1)
	cls.runErr = errors.New("session lost")
	p, _ := newTestPipeline(t, locator, cls, h)

	require.True(t, p.Process(testFrame(32, 32, nil)))

	ev := <-h.errs
	assert.Equal(t, uint64(1), ev.seq)
	var infErr *inference.InferenceError
	assert.ErrorAs(t, ev.err, &infErr)

	waitIdle(t, p)
	assert.EqualValues(t, 1, p.Stats().Errors)
}

func TestBusyFrameDropped(t *testing.T) {
	h := newTestHandler()
	locator := &stubLocator{block: make(chan struct{})}
	p, _ := newTestPipeline(t, locator, newFakeClassifier(8*8*3, 0, 1), h)

	require.True(t, p.Process(testFrame(32, 32, nil)))

	// Second frame arrives while the first is still in flight.
	var released atomic.Int32
	assert.False(t, p.Process(testFrame(32, 32, &released)))
	assert.EqualValues(t, 1, released.Load(), "dropped frame must be released immediately")
	assert.EqualValues(t, 1, p.Stats().DroppedBusy)

	close(locator.block)
	waitIdle(t, p)
}

// With instantaneous processing and frames spaced 50ms apart against a 200ms
// minimum interval, exactly every 4th frame is admitted.
func TestMinimumIntervalThrottling(t *testing.T) {
	h := newTestHandler()
	p, _ := newTestPipeline(t, &stubLocator{}, newFakeClassifier(8*8*3, 0, 1), h)

	clock := time.Unix(1000, 0)
	p.now = func() time.Time { return clock }

	var acceptedAt []int
	for i := 0; i < 16; i++ {
		if p.Process(testFrame(32, 32, nil)) {
			acceptedAt = append(acceptedAt, i*50)
			<-h.faces
			waitIdle(t, p)
		}
		clock = clock.Add(50 * time.Millisecond)
	}

	assert.Equal(t, []int{0, 200, 400, 600}, acceptedAt)

	stats := p.Stats()
	assert.EqualValues(t, 4, stats.Accepted)
	assert.EqualValues(t, 12, stats.DroppedInterval)
}
