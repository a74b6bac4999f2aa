package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/errs"
)

type stubEngine struct {
	name     string
	rate     int
	speakers map[string]int
	closed   bool
	active   int
	overlap  bool
	mu       sync.Mutex
}

func (e *stubEngine) Convert(ctx context.Context, in audio.Waveform, req Request) (Result, error) {
	e.mu.Lock()
	e.active++
	if e.active > 1 {
		e.overlap = true
	}
	e.mu.Unlock()

	time.Sleep(time.Millisecond)

	e.mu.Lock()
	e.active--
	e.mu.Unlock()

	return Result{Waveform: in, SampleRate: in.SampleRate()}, nil
}

func (e *stubEngine) ResetCache(ctx context.Context) error { return nil }
func (e *stubEngine) TargetSampleRate() int                { return e.rate }
func (e *stubEngine) Speakers() map[string]int             { return e.speakers }

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

type stubLoader struct {
	engines map[string]*stubEngine
	loads   int
}

func (l *stubLoader) Load(ctx context.Context, spec Spec) (Engine, error) {
	l.loads++
	e, ok := l.engines[spec.ModelPath]
	if !ok {
		return nil, errors.New("model not found")
	}
	return e, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStubLoader() *stubLoader {
	return &stubLoader{engines: map[string]*stubEngine{
		"a.pth": {name: "a", rate: 44100, speakers: map[string]int{"alice": 0, "bob": 1}},
		"b.pth": {name: "b", rate: 32000, speakers: map[string]int{"carol": 0}},
	}}
}

func activeName(t *testing.T, h *Handle) string {
	t.Helper()
	var name string
	err := h.Do(context.Background(), func(e Engine) error {
		name = e.(*stubEngine).name
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	return name
}

func TestNewHandle(t *testing.T) {
	loader := newStubLoader()

	h, err := NewHandle(context.Background(), loader, Spec{ModelPath: "a.pth", ConfigPath: "a.json"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create handle: %v", err)
	}

	info := h.Info()
	if info.TargetSampleRate != 44100 {
		t.Errorf("Expected target rate 44100, got %d", info.TargetSampleRate)
	}
	if len(info.Speakers) != 2 || info.Speakers[0] != "alice" || info.Speakers[1] != "bob" {
		t.Errorf("Expected speakers [alice bob], got %v", info.Speakers)
	}

	if info.Stats != nil {
		t.Errorf("Expected no stats for an engine without counters, got %+v", info.Stats)
	}

	if _, err := NewHandle(context.Background(), loader, Spec{ModelPath: "a.pth"}, testLogger()); err == nil {
		t.Error("Expected error for missing config path")
	}
}

type countingEngine struct {
	stubEngine
	stats RemoteStats
}

func (e *countingEngine) GetStats() RemoteStats { return e.stats }

type singleLoader struct {
	engine Engine
}

func (l singleLoader) Load(ctx context.Context, spec Spec) (Engine, error) {
	return l.engine, nil
}

func TestHandleInfoReportsEngineStats(t *testing.T) {
	e := &countingEngine{
		stubEngine: stubEngine{rate: 16000, speakers: map[string]int{"alice": 0}},
		stats:      RemoteStats{TotalRequests: 7, FailedRequests: 2, CacheResets: 3},
	}

	h, err := NewHandle(context.Background(), singleLoader{engine: e}, Spec{ModelPath: "a.pth", ConfigPath: "a.json"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create handle: %v", err)
	}

	info := h.Info()
	if info.Stats == nil {
		t.Fatal("Expected engine stats in info")
	}
	if info.Stats.TotalRequests != 7 || info.Stats.FailedRequests != 2 || info.Stats.CacheResets != 3 {
		t.Errorf("Unexpected stats: %+v", *info.Stats)
	}

	h.Close()
	if h.Info().Stats != nil {
		t.Error("Expected no stats after close")
	}
}

func TestHandleReplace(t *testing.T) {
	loader := newStubLoader()
	h, err := NewHandle(context.Background(), loader, Spec{ModelPath: "a.pth", ConfigPath: "a.json"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create handle: %v", err)
	}

	if err := h.Replace(context.Background(), Spec{ModelPath: "b.pth", ConfigPath: "b.json"}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if got := activeName(t, h); got != "b" {
		t.Errorf("Expected engine b after swap, got %s", got)
	}
	if !loader.engines["a.pth"].closed {
		t.Error("Expected previous engine to be closed")
	}
	if h.Info().Swaps != 1 {
		t.Errorf("Expected 1 swap, got %d", h.Info().Swaps)
	}
}

func TestHandleReplaceFailureKeepsPrevious(t *testing.T) {
	loader := newStubLoader()
	h, err := NewHandle(context.Background(), loader, Spec{ModelPath: "a.pth", ConfigPath: "a.json"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create handle: %v", err)
	}

	err = h.Replace(context.Background(), Spec{ModelPath: "missing.pth", ConfigPath: "missing.json"})
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("Expected validation error, got %v", err)
	}

	if got := activeName(t, h); got != "a" {
		t.Errorf("Expected engine a to remain active, got %s", got)
	}
	if loader.engines["a.pth"].closed {
		t.Error("Expected previous engine to stay open")
	}

	info := h.Info()
	if info.ModelPath != "a.pth" || info.Swaps != 0 {
		t.Errorf("Expected info unchanged, got %+v", info)
	}
}

func TestHandleSerializesAccess(t *testing.T) {
	loader := newStubLoader()
	h, err := NewHandle(context.Background(), loader, Spec{ModelPath: "a.pth", ConfigPath: "a.json"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create handle: %v", err)
	}

	w := audio.Silence(10, 16000)
	req, _ := NewRequest(validParams())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Do(context.Background(), func(e Engine) error {
				_, err := e.Convert(context.Background(), w, req)
				return err
			})
		}()
	}
	wg.Wait()

	if loader.engines["a.pth"].overlap {
		t.Error("Expected engine calls to never overlap")
	}
}

func TestHandleClosed(t *testing.T) {
	h, err := NewHandle(context.Background(), newStubLoader(), Spec{ModelPath: "a.pth", ConfigPath: "a.json"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create handle: %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err = h.Do(context.Background(), func(Engine) error { return nil })
	if !errors.Is(err, ErrNoEngine) {
		t.Errorf("Expected ErrNoEngine, got %v", err)
	}
}

func TestResolveSpeaker(t *testing.T) {
	e := &stubEngine{speakers: map[string]int{"alice": 0, "bob": 1}}

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"alice", "alice", false},
		{"1", "bob", false},
		{"7", "", true},
		{"carol", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ResolveSpeaker(e, tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownSpeaker) {
					t.Errorf("Expected ErrUnknownSpeaker, got %v", err)
				}
				if errs.KindOf(err) != errs.KindValidation {
					t.Errorf("Expected validation kind, got %s", errs.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	open := &stubEngine{}
	if got, err := ResolveSpeaker(open, "anyone"); err != nil || got != "anyone" {
		t.Errorf("Expected engines without speaker table to accept anyone, got %q, %v", got, err)
	}
}
