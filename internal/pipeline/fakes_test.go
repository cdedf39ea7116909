package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/stretchr/testify/require"
)

// memStore は TaskStore / Ledger / Rotator のメモリ実装です。書き込みごとのスナップショットを記録します。
type memStore struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	history   map[string][]*domain.Job
	balances  map[string]int
	initial   int
	reserves  int
	refunds   []string
	rotations map[string]int

	createErr  error
	failWhen   func(*domain.Job) bool
	failBudget int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:      map[string]*domain.Job{},
		history:   map[string][]*domain.Job{},
		balances:  map[string]int{},
		initial:   300,
		rotations: map[string]int{},
	}
}

func (s *memStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.jobs[job.ID]; ok {
		return errors.New("duplicate")
	}
	if err := job.Validate(); err != nil {
		return err
	}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID] = job.Clone()
	s.history[job.ID] = append(s.history[job.ID], job.Clone())
	return nil
}

// put はバリデーションを通さずにレコードを置きます (再開テスト用)。
func (s *memStore) put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
}

func (s *memStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return j.Clone(), nil
}

func (s *memStore) Update(_ context.Context, id string, fn func(*domain.Job) error) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	next := prev.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.CheckUpdate(prev); err != nil {
		return nil, fmt.Errorf("rejected update: %w", err)
	}
	if s.failWhen != nil && s.failBudget > 0 && s.failWhen(next) {
		s.failBudget--
		return nil, errors.New("disk I/O error")
	}
	next.UpdatedAt = time.Now().UTC()
	s.jobs[id] = next
	s.history[id] = append(s.history[id], next.Clone())
	return next.Clone(), nil
}

func (s *memStore) ListByOwner(_ context.Context, ownerID string) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *memStore) ListUnfinished(context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if !j.IsTerminal() {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (s *memStore) Reserve(_ context.Context, ownerID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves++
	bal := s.balanceLocked(ownerID)
	if bal < amount {
		return bal, &domain.CreditError{Required: amount, Current: bal}
	}
	s.balances[ownerID] = bal - amount
	return bal - amount, nil
}

func (s *memStore) Refund(_ context.Context, ownerID string, amount int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[ownerID] = s.balanceLocked(ownerID) + amount
	s.refunds = append(s.refunds, reason)
	return nil
}

func (s *memStore) balance(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(ownerID)
}

func (s *memStore) balanceLocked(ownerID string) int {
	if b, ok := s.balances[ownerID]; ok {
		return b
	}
	return s.initial
}

func (s *memStore) NextRotation(_ context.Context, key string, size int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.rotations[key]
	next := 0
	if ok {
		next = (last + 1) % size
	}
	s.rotations[key] = next
	return next, nil
}

func (s *memStore) snapshots(id string) []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Job(nil), s.history[id]...)
}

type fakeText struct {
	mu         sync.Mutex
	outline    []string
	outlineErr error
	panels     []domain.Panel
	panelsErr  error
	systems    []string
	listCalls  int
	panelCalls int
}

func (f *fakeText) GenerateList(_ context.Context, system, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.systems = append(f.systems, system)
	if f.outlineErr != nil {
		return nil, f.outlineErr
	}
	return append([]string(nil), f.outline...), nil
}

func (f *fakeText) GeneratePanels(context.Context, string, string) ([]domain.Panel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panelCalls++
	if f.panelsErr != nil {
		return nil, f.panelsErr
	}
	return append([]domain.Panel(nil), f.panels...), nil
}

type fakeVision struct {
	text string
	err  error
}

func (f fakeVision) Describe(context.Context, []byte, string, string) (string, error) {
	return f.text, f.err
}

type fakeImages struct {
	mu      sync.Mutex
	fail    func(prompt string) bool
	hook    func(prompt string)
	prompts []string
}

func (f *fakeImages) Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error) {
	return f.call(ctx, prompt)
}

func (f *fakeImages) GenerateFromReference(ctx context.Context, prompt string, _ []byte, _ string) (*domain.GeneratedImage, error) {
	return f.call(ctx, prompt)
}

func (f *fakeImages) call(ctx context.Context, prompt string) (*domain.GeneratedImage, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	hook, fail := f.hook, f.fail
	f.mu.Unlock()

	if hook != nil {
		hook(prompt)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail != nil && fail(prompt) {
		return nil, errors.New("image model overloaded")
	}
	return &domain.GeneratedImage{Data: []byte("png-bytes"), MIMEType: "image/png"}, nil
}

func (f *fakeImages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeFetcher struct {
	err error
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("asset-bytes"), "image/png", nil
}

type memArtifacts struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func (m *memArtifacts) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.uploads == nil {
		m.uploads = map[string][]byte{}
	}
	m.uploads[key] = data
	return "https://cdn.test/" + key, nil
}

type fakeGate struct {
	err   error
	calls int
}

func (g *fakeGate) Check(context.Context, []string, []string) error {
	g.calls++
	return g.err
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	done   []domain.NotificationRequest
	errors []domain.NotificationRequest
}

func (n *fakeNotifier) Notify(_ context.Context, _, _ string, req domain.NotificationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = append(n.done, req)
	return nil
}

func (n *fakeNotifier) NotifyError(_ context.Context, _ error, req domain.NotificationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, req)
	return nil
}

type fakeMetrics struct {
	mu                 sync.Mutex
	attempts           map[string][]int
	checkpointFailures int
	finished           map[domain.Status]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{attempts: map[string][]int{}, finished: map[domain.Status]int{}}
}

func (m *fakeMetrics) ObserveAttempt(stage string, attempt int, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[stage] = append(m.attempts[stage], attempt)
}

func (m *fakeMetrics) ObserveStrategyError(string, string) {}

func (m *fakeMetrics) CheckpointFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpointFailures++
}

func (m *fakeMetrics) JobFinished(s domain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[s]++
}

func (m *fakeMetrics) ObserveRender(time.Duration) {}

// harness はフェイク一式で組み立てたオーケストレーターです。
type harness struct {
	o          *Orchestrator
	store      *memStore
	text       *fakeText
	images     *fakeImages
	artifacts  *memArtifacts
	gate       *fakeGate
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	metrics    *fakeMetrics
	vision     VisionAnalyzer
	opts       Options
}

func newHarness(t *testing.T, configure ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		store:      newMemStore(),
		text:       &fakeText{},
		images:     &fakeImages{},
		artifacts:  &memArtifacts{},
		gate:       &fakeGate{},
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
		metrics:    newFakeMetrics(),
		vision:     fakeVision{text: "a small red dragon with green wings"},
		opts: Options{
			ServiceURL:           "https://novels.example.com",
			StyleSuffix:          "bright comic style",
			RefundOnSetupFailure: true,
		},
	}
	for _, c := range configure {
		c(h)
	}

	fetcher := fakeFetcher{}
	o, err := NewOrchestrator(Deps{
		Store:      h.store,
		Ledger:     h.store,
		Gate:       h.gate,
		Dispatcher: h.dispatcher,
		Notifier:   h.notifier,
		Metrics:    h.metrics,
		Analyzer:   NewAssetAnalyzer(h.vision, fetcher, time.Second, h.metrics),
		Planner:    NewOutlinePlanner(h.text, time.Second, h.metrics),
		Writer:     NewScriptwriter(h.text, h.store, time.Second, h.metrics),
		Renderer: NewPageRenderer(h.images, fetcher, h.artifacts, RenderConfig{
			Timeout:        time.Second,
			UploadTimeout:  time.Second,
			PlaceholderURL: "https://cdn.test/placeholder.png",
		}, h.metrics),
		Stager: NewAssetStager(fetcher, h.artifacts, AssetStageConfig{Timeout: time.Second}),
	}, h.opts)
	require.NoError(t, err)
	h.o = o
	return h
}

// withStory は totalPages 章のアウトラインと全コマを返すテキストプロバイダーを設定します。
func (h *harness) withStory(totalPages, panelsPerPage int) {
	h.text.outline = numberedOutline(totalPages)
	h.text.panels = numberedPanels(totalPages * panelsPerPage)
}

func numberedOutline(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Chapter %d happens. Everyone cheers.", i+1)
	}
	return out
}

func numberedPanels(n int) []domain.Panel {
	out := make([]domain.Panel, n)
	for i := range out {
		out[i] = domain.Panel{
			Dialogue:         fmt.Sprintf("Line %d", i+1),
			SceneDescription: fmt.Sprintf("Scene %d", i+1),
			Emotion:          "happy",
			BubbleType:       domain.BubbleSpeech,
			BubblePosition:   domain.TopLeft,
		}
	}
	return out
}

func request(owner string, pages int, layout domain.Layout, vibe domain.Vibe) domain.CreateRequest {
	return domain.CreateRequest{
		OwnerID:    owner,
		Vibe:       string(vibe),
		TotalPages: pages,
		Layout:     string(layout),
		Assets: []domain.AssetInput{
			{Slot: 1, ImageURL: "https://assets.test/hero.png", Description: "a brave cat"},
			{Slot: 3, ImageURL: "https://assets.test/castle.png"},
		},
	}
}

// submitAndRun はジョブを投入し、ワーカーを同期的に実行して最終レコードを返します。
func (h *harness) submitAndRun(t *testing.T, req domain.CreateRequest) *domain.Job {
	t.Helper()
	ctx := context.Background()
	job, err := h.o.Submit(ctx, req)
	require.NoError(t, err)
	_ = h.o.Run(ctx, job.ID)
	final, err := h.o.Status(ctx, job.ID)
	require.NoError(t, err)
	return final
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
