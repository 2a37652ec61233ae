package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
	"github.com/skillsenselab/transcribed/quota"
	"github.com/skillsenselab/transcribed/scheduler"
	"github.com/skillsenselab/transcribed/transcription"
)

// memBlobs is an in-memory storage.Storage for tests.
type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (m *memBlobs) Upload(_ context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = data
	return nil
}

func (m *memBlobs) Download(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[path]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[path]
	return ok, nil
}

func (m *memBlobs) URL(_ context.Context, path string) (string, error) {
	return "file://" + path, nil
}

// fakeProvider returns canned responses and counts calls.
type fakeProvider struct {
	calls atomic.Int32
	resp  *transcription.Response
	err   error
}

func (p *fakeProvider) Name() string                        { return "fake" }
func (p *fakeProvider) Ping(context.Context) (int, error)   { return 200, nil }
func (p *fakeProvider) Transcribe(_ context.Context, _ transcription.Request) (*transcription.Response, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduler.Task
}

func (s *fakeScheduler) ScheduleTranscribe(_ context.Context, _ time.Duration, task scheduler.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

type fixture struct {
	store    *job.MemoryStore
	blobs    *memBlobs
	provider *fakeProvider
	ledger   *quota.Ledger
	counter  *quota.MemoryCounter
	sched    *fakeScheduler
	proc     *Processor
}

func newFixture(t *testing.T, cfg Config, quotaMinutes int, provider *fakeProvider) *fixture {
	t.Helper()
	log := logger.NewDefault("worker-test")
	store := job.NewMemoryStore()
	blobs := newMemBlobs()
	counter := quota.NewMemoryCounter()
	ledger := quota.NewLedger(counter, nil, quotaMinutes, 80, log)

	var p transcription.Provider
	if provider != nil {
		p = provider
	}
	proc := NewProcessor(cfg, store, ledger, p, blobs, log)
	sched := &fakeScheduler{}
	proc.SetScheduler(sched)

	return &fixture{
		store:    store,
		blobs:    blobs,
		provider: provider,
		ledger:   ledger,
		counter:  counter,
		sched:    sched,
		proc:     proc,
	}
}

func (f *fixture) addJob(t *testing.T, j *job.Job) {
	t.Helper()
	if err := f.store.Create(context.Background(), j); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func (f *fixture) addBlob(t *testing.T, path string) {
	t.Helper()
	if err := f.blobs.Upload(context.Background(), path, strings.NewReader("audio-bytes")); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
}

func (f *fixture) jobStatus(t *testing.T, id string) *job.Job {
	t.Helper()
	j, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return j
}

func enabledConfig() Config {
	return Config{ExternalSendEnabled: true, CallTimeout: 5 * time.Second}
}

func TestProcess_Success(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{
		Transcript: "  bonjour\x00 le monde  ",
		Segments:   []byte(`[{"start":0}]`),
	}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "s1", FilePath: "s1.webm", DurationSeconds: 30, Status: job.StatusQueued})
	f.addBlob(t, "s1.webm")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "s1", FilePath: "s1.webm"})

	j := f.jobStatus(t, "s1")
	if j.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", j.Status)
	}
	if j.Transcript != "bonjour le monde" {
		t.Errorf("transcript not sanitized: %q", j.Transcript)
	}
	if len(j.Segments) == 0 {
		t.Error("segments were dropped")
	}
	if j.QuotaMinutesCounted != 1 {
		t.Errorf("QuotaMinutesCounted = %d, want 1", j.QuotaMinutesCounted)
	}
	if j.CompletedAt == nil || j.StartedAt == nil {
		t.Error("expected StartedAt and CompletedAt to be stamped")
	}

	used, _ := f.ledger.Usage(context.Background())
	if used != 1 {
		t.Errorf("ledger usage = %d, want 1", used)
	}

	// Audio retained when auto-delete is off.
	if exists, _ := f.blobs.Exists(context.Background(), "s1.webm"); !exists {
		t.Error("audio should be retained without auto-delete")
	}
}

func TestProcess_AutoDeleteAudio(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "ok"}}
	cfg := enabledConfig()
	cfg.AutoDeleteAudio = true
	f := newFixture(t, cfg, 100, provider)

	f.addJob(t, &job.Job{ID: "d1", FilePath: "d1.wav", DurationSeconds: 10, Status: job.StatusQueued})
	f.addBlob(t, "d1.wav")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "d1", FilePath: "d1.wav"})

	if exists, _ := f.blobs.Exists(context.Background(), "d1.wav"); exists {
		t.Error("audio should be removed after successful completion")
	}
	if j := f.jobStatus(t, "d1"); j.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", j.Status)
	}
}

func TestProcess_RedeliveryIsNoOp(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "x"}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "done", FilePath: "done.ogg", DurationSeconds: 30, Status: job.StatusCompleted, Transcript: "earlier"})
	f.addBlob(t, "done.ogg")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "done", FilePath: "done.ogg"})

	j := f.jobStatus(t, "done")
	if j.Transcript != "earlier" {
		t.Errorf("redelivery overwrote the transcript: %q", j.Transcript)
	}
	if provider.calls.Load() != 0 {
		t.Errorf("provider called %d times on a settled job", provider.calls.Load())
	}
}

func TestProcess_UntrackedJob(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "x"}}
	f := newFixture(t, enabledConfig(), 100, provider)

	// Must not panic or call the provider.
	f.proc.Process(context.Background(), scheduler.Task{JobID: "ghost"})
	if provider.calls.Load() != 0 {
		t.Error("provider called for an untracked job")
	}
}

func TestProcess_NoServerConfigured(t *testing.T) {
	f := newFixture(t, enabledConfig(), 100, nil)

	f.addJob(t, &job.Job{ID: "n1", FilePath: "n1.mp3", DurationSeconds: 30, Status: job.StatusQueued})
	f.proc.Process(context.Background(), scheduler.Task{JobID: "n1"})

	if j := f.jobStatus(t, "n1"); j.Status != job.StatusNoServerConfigured {
		t.Errorf("status = %s, want no_server_configured", j.Status)
	}
}

func TestProcess_SendingDisabled(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "x"}}
	cfg := Config{ExternalSendEnabled: false}
	f := newFixture(t, cfg, 100, provider)

	f.addJob(t, &job.Job{ID: "off", FilePath: "off.mp3", DurationSeconds: 30, Status: job.StatusQueued})
	f.proc.Process(context.Background(), scheduler.Task{JobID: "off"})

	if j := f.jobStatus(t, "off"); j.Status != job.StatusNoServerConfigured {
		t.Errorf("status = %s, want no_server_configured", j.Status)
	}
	if provider.calls.Load() != 0 {
		t.Error("provider must not be contacted when sending is disabled")
	}
}

func TestProcess_PlaceholderOnDisabled(t *testing.T) {
	cfg := Config{ExternalSendEnabled: false, PlaceholderOnDisabled: true}
	f := newFixture(t, cfg, 100, nil)

	f.addJob(t, &job.Job{ID: "p1", FilePath: "p1.mp3", DurationSeconds: 30, Status: job.StatusQueued})
	f.proc.Process(context.Background(), scheduler.Task{JobID: "p1"})

	j := f.jobStatus(t, "p1")
	if j.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", j.Status)
	}
	if j.Transcript != PlaceholderTranscript {
		t.Errorf("transcript = %q, want placeholder", j.Transcript)
	}

	// Placeholder completions never charge quota.
	used, _ := f.ledger.Usage(context.Background())
	if used != 0 {
		t.Errorf("ledger usage = %d, want 0", used)
	}
}

func TestProcess_NeedsDuration(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "x"}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "nd", FilePath: "nd.webm", DurationSeconds: 0, Status: job.StatusQueued})
	f.addBlob(t, "nd.webm")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "nd"})

	j := f.jobStatus(t, "nd")
	if j.Status != job.StatusNeedsDuration {
		t.Fatalf("status = %s, want needs_duration", j.Status)
	}
	if j.Error == "" {
		t.Error("expected a diagnostic explaining the missing duration")
	}
	if provider.calls.Load() != 0 {
		t.Error("provider must not be contacted without a chargeable duration")
	}
}

func TestProcess_UnknownDurationAllowed(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "free ride"}}
	cfg := enabledConfig()
	cfg.AllowUnknownDuration = true
	f := newFixture(t, cfg, 100, provider)

	f.addJob(t, &job.Job{ID: "free", FilePath: "free.webm", DurationSeconds: 0, Status: job.StatusQueued})
	f.addBlob(t, "free.webm")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "free"})

	j := f.jobStatus(t, "free")
	if j.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", j.Status)
	}
	if j.QuotaMinutesCounted != 0 {
		t.Errorf("unknown duration must charge nothing, counted %d", j.QuotaMinutesCounted)
	}
	used, _ := f.ledger.Usage(context.Background())
	if used != 0 {
		t.Errorf("ledger usage = %d, want 0", used)
	}
}

func TestProcess_BlockedQuota(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "x"}}
	f := newFixture(t, enabledConfig(), 1, provider)

	// 120 seconds = 2 minutes, quota is 1.
	f.addJob(t, &job.Job{ID: "big", FilePath: "big.wav", DurationSeconds: 120, Status: job.StatusQueued})
	f.addBlob(t, "big.wav")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "big"})

	if j := f.jobStatus(t, "big"); j.Status != job.StatusBlockedQuota {
		t.Fatalf("status = %s, want blocked_quota", j.Status)
	}
	if provider.calls.Load() != 0 {
		t.Error("provider must not be contacted for a blocked job")
	}
	used, _ := f.ledger.Usage(context.Background())
	if used != 0 {
		t.Errorf("blocked job must not charge, usage = %d", used)
	}
}

func TestProcess_ZeroQuotaBlocksChargedJobs(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "x"}}
	f := newFixture(t, enabledConfig(), 0, provider)

	f.addJob(t, &job.Job{ID: "z1", FilePath: "z1.wav", DurationSeconds: 30, Status: job.StatusQueued})
	f.addBlob(t, "z1.wav")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "z1"})

	if j := f.jobStatus(t, "z1"); j.Status != job.StatusBlockedQuota {
		t.Errorf("status = %s, want blocked_quota (zero quota is not unlimited)", j.Status)
	}
}

func TestProcess_MissingAudio(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "x"}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "gone", FilePath: "gone.wav", DurationSeconds: 30, Status: job.StatusQueued})

	f.proc.Process(context.Background(), scheduler.Task{JobID: "gone"})

	j := f.jobStatus(t, "gone")
	if j.Status != job.StatusError {
		t.Fatalf("status = %s, want error", j.Status)
	}
	if !strings.Contains(j.Error, "audio file not found") {
		t.Errorf("diagnostic = %q", j.Error)
	}
}

func TestProcess_ProviderHTTPError(t *testing.T) {
	provider := &fakeProvider{err: &transcription.HTTPError{StatusCode: 502, Body: "bad gateway"}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "h1", FilePath: "h1.wav", DurationSeconds: 30, Status: job.StatusQueued})
	f.addBlob(t, "h1.wav")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "h1"})

	j := f.jobStatus(t, "h1")
	if j.Status != job.StatusError {
		t.Fatalf("status = %s, want error", j.Status)
	}
	if !strings.Contains(j.Error, "HTTP 502") {
		t.Errorf("diagnostic = %q", j.Error)
	}

	// Failed calls charge nothing.
	used, _ := f.ledger.Usage(context.Background())
	if used != 0 {
		t.Errorf("usage = %d, want 0", used)
	}
}

func TestProcess_ProviderInvalidResponse(t *testing.T) {
	provider := &fakeProvider{err: &transcription.InvalidResponseError{Body: `{"status":"done"}`}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "iv", FilePath: "iv.wav", DurationSeconds: 30, Status: job.StatusQueued})
	f.addBlob(t, "iv.wav")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "iv"})

	j := f.jobStatus(t, "iv")
	if j.Status != job.StatusInvalidResponse {
		t.Fatalf("status = %s, want invalid_response", j.Status)
	}
	if j.ResponseRaw != `{"status":"done"}` {
		t.Errorf("raw body not retained: %q", j.ResponseRaw)
	}
}

func TestProcess_ProviderTransportError(t *testing.T) {
	provider := &fakeProvider{err: &transcription.TransportError{Err: errors.New("connection refused")}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "t1", FilePath: "t1.wav", DurationSeconds: 30, Status: job.StatusQueued})
	f.addBlob(t, "t1.wav")

	f.proc.Process(context.Background(), scheduler.Task{JobID: "t1"})

	j := f.jobStatus(t, "t1")
	if j.Status != job.StatusError {
		t.Fatalf("status = %s, want error", j.Status)
	}
	if !strings.Contains(j.Error, "connection refused") {
		t.Errorf("diagnostic = %q", j.Error)
	}
}

func TestRerun_ChargesAgain(t *testing.T) {
	provider := &fakeProvider{resp: &transcription.Response{Transcript: "encore"}}
	f := newFixture(t, enabledConfig(), 100, provider)

	f.addJob(t, &job.Job{ID: "rr", FilePath: "rr.wav", DurationSeconds: 30, Status: job.StatusQueued})
	f.addBlob(t, "rr.wav")

	ctx := context.Background()
	f.proc.Process(ctx, scheduler.Task{JobID: "rr"})
	if used, _ := f.ledger.Usage(ctx); used != 1 {
		t.Fatalf("usage after first run = %d, want 1", used)
	}

	if err := f.proc.Rerun(ctx, "rr"); err != nil {
		t.Fatalf("Rerun failed: %v", err)
	}
	j := f.jobStatus(t, "rr")
	if j.Status != job.StatusQueued {
		t.Fatalf("status after rerun = %s, want queued", j.Status)
	}
	if j.StartedAt != nil || j.CompletedAt != nil {
		t.Error("rerun must clear timing fields")
	}
	// A queued job must not expose the previous run's outcome to pollers.
	if j.Transcript != "" || j.Segments != nil || j.ResponseRaw != "" {
		t.Errorf("rerun left stale outcome: transcript=%q segments=%v raw=%q", j.Transcript, j.Segments, j.ResponseRaw)
	}
	if j.QuotaMinutesCounted != 0 {
		t.Errorf("rerun left stale charge: %d minutes", j.QuotaMinutesCounted)
	}
	if len(f.sched.tasks) != 1 {
		t.Fatalf("expected one scheduled rerun, got %d", len(f.sched.tasks))
	}

	// The second execution charges a second time.
	f.proc.Process(ctx, scheduler.Task{JobID: "rr"})
	if used, _ := f.ledger.Usage(ctx); used != 2 {
		t.Errorf("usage after rerun = %d, want 2", used)
	}
}

func TestRerun_MissingAsset(t *testing.T) {
	f := newFixture(t, enabledConfig(), 100, nil)

	f.addJob(t, &job.Job{ID: "na", FilePath: "na.wav", DurationSeconds: 30, Status: job.StatusError})

	if err := f.proc.Rerun(context.Background(), "na"); err == nil {
		t.Error("expected rerun to fail when the audio asset is gone")
	}
	if j := f.jobStatus(t, "na"); j.Status != job.StatusError {
		t.Errorf("failed rerun must not change status, got %s", j.Status)
	}
}

func TestRerun_UnknownJob(t *testing.T) {
	f := newFixture(t, enabledConfig(), 100, nil)

	if err := f.proc.Rerun(context.Background(), "ghost"); !errors.Is(err, job.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
