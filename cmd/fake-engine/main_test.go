package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/skypro1111/svc-audio-service/internal/audio"
	"github.com/skypro1111/svc-audio-service/internal/engine"
	"github.com/skypro1111/svc-audio-service/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeModel(t *testing.T, rate int) engine.Spec {
	t.Helper()

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "G_0.pth")
	configPath := filepath.Join(dir, "config.json")

	if err := os.WriteFile(modelPath, []byte("weights"), 0o644); err != nil {
		t.Fatalf("Failed to write model: %v", err)
	}
	cfg := `{"data": {"sampling_rate": ` + strconv.Itoa(rate) + `, "hop_length": 512}, "spk": {"alice": 0, "bob": 1}}`
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	return engine.Spec{ModelPath: modelPath, ConfigPath: configPath}
}

func tone(n, rate int) audio.Waveform {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	w, _ := audio.NewWaveform(samples, rate)
	return w
}

func TestRemoteEngineAgainstFakeWorker(t *testing.T) {
	wk := newWorker(testLogger(), 0)
	srv := httptest.NewServer(wk.routes())
	defer srv.Close()

	loader, err := engine.NewRemoteLoader(engine.RemoteConfig{Endpoint: srv.URL}, testLogger())
	if err != nil {
		t.Fatalf("NewRemoteLoader failed: %v", err)
	}

	handle, err := engine.NewHandle(context.Background(), loader, writeModel(t, 44100), testLogger())
	if err != nil {
		t.Fatalf("NewHandle failed: %v", err)
	}
	defer handle.Close()

	conv, err := pipeline.New(handle, pipeline.DefaultConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}

	p := engine.DefaultParams()
	p.Speaker = "bob"
	req, err := engine.NewRequest(p)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	in := tone(16000, 16000)
	result, err := conv.Convert(context.Background(), in, req)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if result.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", result.SampleRate)
	}
	if result.Waveform.Len() != 44100 {
		t.Errorf("Expected 44100 samples, got %d", result.Waveform.Len())
	}
	if wk.conversions.Load() == 0 {
		t.Error("Expected the worker to convert at least one chunk")
	}
	if wk.resets.Load() != 1 {
		t.Errorf("Expected 1 cache reset, got %d", wk.resets.Load())
	}
}

func TestConvertRejectsUnknownSpeaker(t *testing.T) {
	wk := newWorker(testLogger(), 0)
	spec := writeModel(t, 22050)

	wavData, err := audio.EncodeWAVBytes(tone(1600, 16000))
	if err != nil {
		t.Fatalf("EncodeWAVBytes failed: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("audio", "chunk.wav")
	fw.Write(wavData)
	mw.WriteField("config_path", spec.ConfigPath)
	mw.WriteField("spk", "carol")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	wk.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	wk := newWorker(testLogger(), 0)

	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(configPath, []byte(`{"data": {}}`), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("config_path", configPath)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/load", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	wk.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}
