package tasks

import "sync"

// FetchState is a snapshot of fetch cycle progress.
type FetchState struct {
	IsRunning bool `json:"is_running"`
	Current   int  `json:"current"`
	Total     int  `json:"total"`
}

// Tracker is the single process-wide record of fetch cycle progress. Only the
// orchestrator mutates it; anyone may read it.
type Tracker struct {
	mu    sync.Mutex
	state FetchState
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// MarkRunning claims the tracker for a new cycle. It reports false when a cycle is
// already running, leaving that cycle's state untouched.
func (t *Tracker) MarkRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.IsRunning {
		return false
	}
	t.state = FetchState{IsRunning: true}
	return true
}

// MarkProgress records progress of the running cycle. Counters never move backwards
// and current never exceeds total; calls while idle are ignored.
func (t *Tracker) MarkProgress(current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.IsRunning {
		return
	}
	t.state.Total = max(t.state.Total, total)
	t.state.Current = min(max(t.state.Current, current), t.state.Total)
}

// Advance counts one finished unit of work.
func (t *Tracker) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.IsRunning {
		return
	}
	t.state.Current = min(t.state.Current+1, t.state.Total)
}

func (t *Tracker) MarkIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = FetchState{}
}

func (t *Tracker) State() FetchState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
