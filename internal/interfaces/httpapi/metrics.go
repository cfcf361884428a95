package httpapi

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type Metrics struct {
	mu              sync.RWMutex
	startTime       time.Time
	actions         map[string]uint64
	actionSeconds   map[string]float64
	refreshes       uint64
	refreshErrors   uint64
	lastRefresh     time.Duration
	lastRefreshTime time.Time
	httpRequests    map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:     time.Now(),
		actions:       make(map[string]uint64),
		actionSeconds: make(map[string]float64),
		httpRequests:  make(map[string]uint64),
	}
}

func (m *Metrics) OnAction(action string, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := action + "|" + outcome
	m.actions[key]++
	m.actionSeconds[key] += elapsed.Seconds()
}

func (m *Metrics) OnRefresh(elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	if err != nil {
		m.refreshErrors++
	}
	m.lastRefresh = elapsed
	m.lastRefreshTime = time.Now()
}

func (m *Metrics) IncHTTPRequest(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpRequests[path]++
}

type ActionCount struct {
	Action  string
	Outcome string
	Count   uint64
	Seconds float64
}

type Snapshot struct {
	StartTime       time.Time
	Actions         []ActionCount
	Refreshes       uint64
	RefreshErrors   uint64
	LastRefresh     time.Duration
	LastRefreshTime time.Time
	HTTPRequests    map[string]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actions := make([]ActionCount, 0, len(m.actions))
	for key, count := range m.actions {
		action, outcome := splitActionKey(key)
		actions = append(actions, ActionCount{Action: action, Outcome: outcome, Count: count, Seconds: m.actionSeconds[key]})
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Action != actions[j].Action {
			return actions[i].Action < actions[j].Action
		}
		return actions[i].Outcome < actions[j].Outcome
	})

	requests := make(map[string]uint64, len(m.httpRequests))
	for path, count := range m.httpRequests {
		requests[path] = count
	}
	return Snapshot{
		StartTime:       m.startTime,
		Actions:         actions,
		Refreshes:       m.refreshes,
		RefreshErrors:   m.refreshErrors,
		LastRefresh:     m.lastRefresh,
		LastRefreshTime: m.lastRefreshTime,
		HTTPRequests:    requests,
	}
}

func splitActionKey(key string) (string, string) {
	action, outcome, _ := strings.Cut(key, "|")
	return action, outcome
}
