package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/engine"
	"github.com/ivlev/reelcomposer/internal/project"
	"github.com/ivlev/reelcomposer/internal/video"
)

var ErrJobNotFound = errors.New("job not found")

// RunFunc performs one full composition of p.
type RunFunc func(ctx context.Context, p *project.Project, progress engine.ProgressFunc) (*video.Artifact, error)

// JobView is the JSON shape of a render job.
type JobView struct {
	ID        string         `json:"id"`
	ParentID  string         `json:"parentId,omitempty"`
	State     engine.State   `json:"state"`
	Percent   int            `json:"percent"`
	Events    []engine.Event `json:"events"`
	Error     string         `json:"error,omitempty"`
	Artifact  string         `json:"artifact,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type job struct {
	view    JobView
	project *project.Project
	cancel  context.CancelFunc
}

// Manager keeps render jobs in memory and runs at most Concurrency of them
// at a time. Each job is a fresh pipeline run.
type Manager struct {
	run RunFunc
	log *logrus.Entry

	mu   sync.RWMutex
	jobs map[string]*job
	sem  chan struct{}
	wg   sync.WaitGroup
}

func NewManager(run RunFunc, concurrency int, log *logrus.Entry) *Manager {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		run:  run,
		log:  log.WithField("component", "jobs"),
		jobs: make(map[string]*job),
		sem:  make(chan struct{}, concurrency),
	}
}

// Submit queues a render of p and returns its initial view.
func (m *Manager) Submit(p *project.Project) JobView {
	return m.submit(p, "")
}

func (m *Manager) submit(p *project.Project, parent string) JobView {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	j := &job{
		view: JobView{
			ID:        uuid.NewString(),
			ParentID:  parent,
			State:     engine.Idle,
			Events:    []engine.Event{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		project: p,
		cancel:  cancel,
	}

	m.mu.Lock()
	m.jobs[j.view.ID] = j
	view := j.snapshot()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(ctx, j)
	m.log.WithField("job", view.ID).Info("[*] render queued")
	return view
}

func (m *Manager) execute(ctx context.Context, j *job) {
	defer m.wg.Done()
	defer j.cancel()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.finish(j, nil, ctx.Err())
		return
	}

	art, err := m.run(ctx, j.project, func(ev engine.Event) { m.record(j, ev) })
	m.finish(j, art, err)
}

func (m *Manager) record(j *job, ev engine.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.view.State = ev.Stage
	if ev.Percent > j.view.Percent {
		j.view.Percent = ev.Percent
	}
	j.view.Events = append(j.view.Events, ev)
	j.view.UpdatedAt = time.Now()
}

func (m *Manager) finish(j *job, art *video.Artifact, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.view.UpdatedAt = time.Now()
	log := m.log.WithField("job", j.view.ID)
	if err != nil {
		j.view.State = engine.Failed
		j.view.Error = err.Error()
		log.Warnf("[!] render failed: %v", err)
		return
	}
	j.view.State = engine.Ready
	j.view.Percent = 100
	j.view.Artifact = art.Path
	log.Infof("[+] render ready: %s", art.Path)
}

func (j *job) snapshot() JobView {
	v := j.view
	v.Events = append([]engine.Event(nil), j.view.Events...)
	return v
}

func (m *Manager) Get(id string) (JobView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return JobView{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// List returns all jobs, oldest first.
func (m *Manager) List() []JobView {
	m.mu.RLock()
	out := make([]JobView, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Settings returns the caption settings a job renders with.
func (m *Manager) Settings(id string) (caption.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return caption.Settings{}, ErrJobNotFound
	}
	return j.project.Settings, nil
}

// Rerender starts a fresh run of a job's project with new caption settings.
func (m *Manager) Rerender(id string, s caption.Settings) (JobView, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return JobView{}, ErrJobNotFound
	}
	p, err := j.project.WithSettings(s)
	if err != nil {
		return JobView{}, fmt.Errorf("caption settings: %w", err)
	}
	return m.submit(p, id), nil
}

// Cancel tears down a job. Finished jobs are left as they are.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	j.cancel()
	return nil
}

// Shutdown cancels every job and waits for their runs to return.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	for _, j := range m.jobs {
		j.cancel()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}

// Wait blocks until no job is running.
func (m *Manager) Wait() {
	m.wg.Wait()
}
