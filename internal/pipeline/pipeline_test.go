// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/khaas/earshot/internal/capture"
	"github.com/khaas/earshot/internal/classify"
	"github.com/khaas/earshot/internal/clock"
	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/sensor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chanSource serves frames pushed by the test and honours cancellation.
type chanSource struct {
	ch  chan sensor.Frame
	err error
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan sensor.Frame, 16)}
}

func (s *chanSource) NextFrame(ctx context.Context) (sensor.Frame, error) {
	// Frames queued before the scripted failure are still served.
	select {
	case f := <-s.ch:
		return f, nil
	default:
	}
	if s.err != nil {
		return sensor.Frame{}, s.err
	}
	select {
	case f := <-s.ch:
		return f, nil
	case <-ctx.Done():
		return sensor.Frame{}, ctx.Err()
	}
}

func (s *chanSource) Close() error { return nil }

func (s *chanSource) push(value int16) {
	samples := make([]int16, 8)
	for i := range samples {
		samples[i] = value
	}
	s.ch <- sensor.Frame{CapturedAt: time.Now(), Samples: samples}
}

// stubCapturer returns a canned capture, or scripted errors.
type stubCapturer struct {
	mu    sync.Mutex
	errs  []error // distributed over successive calls, nil means success
	calls int
	delay time.Duration
}

func (c *stubCapturer) Capture(ctx context.Context, event detect.TriggerEvent) (capture.Capture, error) {
	c.mu.Lock()
	idx := c.calls
	c.calls++
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if idx < len(c.errs) && c.errs[idx] != nil {
		return capture.Capture{}, c.errs[idx]
	}
	return capture.Capture{
		EventID:    event.ID,
		MIME:       "audio/wav",
		Samples:    []int16{1, 2, 3},
		SampleRate: 32000,
	}, nil
}

func (c *stubCapturer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// stubClassifier answers in-process.
type stubClassifier struct {
	delay time.Duration
	err   error
}

func (c *stubClassifier) Classify(ctx context.Context, req classify.Request) (classify.Response, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return classify.Response{}, ctx.Err()
		}
	}
	if c.err != nil {
		return classify.Response{}, c.err
	}
	return classify.Response{Labels: []classify.ScoredLabel{{Label: "bento", Score: 0.9}}}, nil
}

// signalRecords notifies on every upsert so tests can wait for delivery.
type signalRecords struct {
	mu      sync.Mutex
	upserts []deliver.Record
	signal  chan struct{}
}

func newSignalRecords() *signalRecords {
	return &signalRecords{signal: make(chan struct{}, 16)}
}

func (f *signalRecords) Upsert(ctx context.Context, rec deliver.Record) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, rec)
	f.mu.Unlock()
	f.signal <- struct{}{}
	return nil
}

func (f *signalRecords) records() []deliver.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deliver.Record(nil), f.upserts...)
}

type nullObjects struct{}

func (nullObjects) Put(ctx context.Context, key string, data []byte, mime string) (string, error) {
	return "file:///tmp/" + key, nil
}

func testPipeline(capturer Capturer, cl classify.Classifier, records *signalRecords) *Pipeline {
	dispatcher := classify.NewDispatcher(classify.DispatchConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		TopK:         3,
	}, cl, nil)
	fanout := deliver.NewFanout(deliver.RetryConfig{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
	}, nullObjects{}, records, nil)
	return New(Config{EventBudget: 5 * time.Second, DrainTimeout: 5 * time.Second}, capturer, dispatcher, fanout)
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func loudDetector(clk clock.Clock) *detect.ThresholdDetector {
	return detect.NewThresholdDetector(detect.Config{
		PeakThreshold: 30000,
		RMSThreshold:  7200,
		MinGap:        300 * time.Millisecond,
	}, clk)
}

func TestRunAudio_EndToEnd(t *testing.T) {
	src := newChanSource()
	records := newSignalRecords()
	capturer := &stubCapturer{}
	p := testPipeline(capturer, &stubClassifier{}, records)
	clk := clock.NewFake(time.Unix(100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.RunAudio(ctx, src, loudDetector(clk)) }()

	src.push(0)     // quiet, no trigger
	src.push(20000) // loud: RMS 20000 > 7200
	waitSignal(t, records.signal)

	cancel()
	require.NoError(t, <-errCh)

	recs := records.records()
	require.Len(t, recs, 1)
	assert.Equal(t, detect.EventID("100"), recs[0].EventID)
	assert.Equal(t, []string{"bento"}, recs[0].Labels)
	assert.Equal(t, deliver.StatusOK, recs[0].UploadStatus)
	assert.False(t, recs[0].Degraded)
	assert.Equal(t, 1, capturer.count())
}

func TestRunAudio_CooldownSuppressesSecondTrigger(t *testing.T) {
	src := newChanSource()
	records := newSignalRecords()
	capturer := &stubCapturer{}
	p := testPipeline(capturer, &stubClassifier{}, records)
	// The fake clock never advances, so the second loud frame lands
	// inside the gap.
	clk := clock.NewFake(time.Unix(100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.RunAudio(ctx, src, loudDetector(clk)) }()

	src.push(20000)
	src.push(20000)
	waitSignal(t, records.signal)
	// Give the loop a moment to consume the suppressed frame.
	src.push(0)
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	assert.Len(t, records.records(), 1)
	assert.Equal(t, 1, capturer.count())
}

func TestRunAudio_CaptureFailureKeepsListening(t *testing.T) {
	src := newChanSource()
	records := newSignalRecords()
	capturer := &stubCapturer{errs: []error{errors.New("window torn")}}
	p := testPipeline(capturer, &stubClassifier{}, records)
	clk := clock.NewFake(time.Unix(100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.RunAudio(ctx, src, loudDetector(clk)) }()

	src.push(20000) // capture fails, event abandoned
	// Move past the cooldown and trigger again.
	clk.Advance(time.Second)
	src.push(20000)
	waitSignal(t, records.signal)

	cancel()
	require.NoError(t, <-errCh)

	assert.Len(t, records.records(), 1)
	assert.Equal(t, 2, capturer.count())
}

func TestRunAudio_SourceFailureIsFatal(t *testing.T) {
	src := newChanSource()
	src.err = fmt.Errorf("%w: device unplugged", sensor.ErrSourceFailed)
	p := testPipeline(&stubCapturer{}, &stubClassifier{}, newSignalRecords())
	clk := clock.NewFake(time.Unix(100, 0))

	err := p.RunAudio(context.Background(), src, loudDetector(clk))
	require.Error(t, err)
	assert.ErrorIs(t, err, sensor.ErrSourceFailed)
}

func TestRunAudio_SourceFailureDrainsInFlightEvent(t *testing.T) {
	src := newChanSource()
	records := newSignalRecords()
	p := testPipeline(&stubCapturer{}, &stubClassifier{delay: 50 * time.Millisecond}, records)
	clk := clock.NewFake(time.Unix(100, 0))

	// One loud frame, then the stream dies while its event is still
	// being classified.
	src.push(20000)
	src.err = fmt.Errorf("%w: device unplugged", sensor.ErrSourceFailed)

	err := p.RunAudio(context.Background(), src, loudDetector(clk))
	require.Error(t, err)
	assert.ErrorIs(t, err, sensor.ErrSourceFailed)

	// RunAudio must not return before the in-flight event delivered.
	recs := records.records()
	require.Len(t, recs, 1)
	assert.Equal(t, detect.EventID("100"), recs[0].EventID)
	assert.Equal(t, []string{"bento"}, recs[0].Labels)
	assert.False(t, recs[0].Degraded)
}

func TestRunAudio_FatalCaptureSourceFailure(t *testing.T) {
	src := newChanSource()
	capturer := &stubCapturer{errs: []error{fmt.Errorf("%w: stream gone", sensor.ErrSourceFailed)}}
	p := testPipeline(capturer, &stubClassifier{}, newSignalRecords())
	clk := clock.NewFake(time.Unix(100, 0))

	errCh := make(chan error, 1)
	go func() { errCh <- p.RunAudio(context.Background(), src, loudDetector(clk)) }()
	src.push(20000)

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, sensor.ErrSourceFailed)
}

func TestRunAudio_DegradedDeliveryAfterClassifyFailure(t *testing.T) {
	src := newChanSource()
	records := newSignalRecords()
	p := testPipeline(&stubCapturer{}, &stubClassifier{err: &classify.StatusError{Code: 503}}, records)
	clk := clock.NewFake(time.Unix(100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.RunAudio(ctx, src, loudDetector(clk)) }()

	src.push(20000)
	waitSignal(t, records.signal)
	cancel()
	require.NoError(t, <-errCh)

	recs := records.records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Degraded)
	assert.Equal(t, []string{"unknown"}, recs[0].Labels)
	// The artifact is still uploaded.
	assert.NotEmpty(t, recs[0].ArtifactURL)
}

func TestRunAudio_ShutdownDrainsInFlightEvent(t *testing.T) {
	src := newChanSource()
	records := newSignalRecords()
	// Classification takes a while; shutdown must still wait for it.
	p := testPipeline(&stubCapturer{}, &stubClassifier{delay: 100 * time.Millisecond}, records)
	clk := clock.NewFake(time.Unix(100, 0))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.RunAudio(ctx, src, loudDetector(clk)) }()

	src.push(20000)
	// Cancel while the event is still classifying.
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	// RunAudio only returns after Drain, so the record is in.
	require.Len(t, records.records(), 1)
	assert.False(t, records.records()[0].Degraded)
}

// blockingPoller reports one active signal, then waits for cancellation.
type blockingPoller struct {
	polls int
}

func (p *blockingPoller) Poll(ctx context.Context) (sensor.TriggerSignal, error) {
	p.polls++
	if p.polls == 1 {
		return sensor.TriggerSignal{PolledAt: time.Now(), Active: true}, nil
	}
	<-ctx.Done()
	return sensor.TriggerSignal{}, ctx.Err()
}

func TestRunPoll_EndToEnd(t *testing.T) {
	records := newSignalRecords()
	capturer := &stubCapturer{}
	p := testPipeline(capturer, &stubClassifier{}, records)
	clk := clock.NewFake(time.Unix(100, 0))
	det := detect.NewFlagDetector(10*time.Second, clk)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.RunPoll(ctx, &blockingPoller{}, det, 0, clk) }()

	waitSignal(t, records.signal)
	cancel()
	require.NoError(t, <-errCh)

	recs := records.records()
	require.Len(t, recs, 1)
	assert.Equal(t, 1, capturer.count())
}

func TestRunPoll_QuietPeriod(t *testing.T) {
	records := newSignalRecords()
	p := testPipeline(&stubCapturer{}, &stubClassifier{}, records)
	clk := clock.NewFake(time.Unix(100, 0))
	det := detect.NewFlagDetector(time.Second, clk)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.RunPoll(ctx, &blockingPoller{}, det, 10*time.Second, clk) }()

	waitSignal(t, records.signal)
	cancel()
	require.NoError(t, <-errCh)

	// The quiet period after the event went through the clock seam.
	assert.Contains(t, clk.Slept, 10*time.Second)
}
