package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const reaperInterval = 1 * time.Minute

// Registry tracks live sessions so forgotten persistent runtimes can be
// reclaimed. Idle timeout is the sole automatic reclamation mechanism;
// everything else is the owner's responsibility.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under its owner id, replacing any prior entry.
func (r *Registry) Add(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.Owner()] = sess
}

// Remove drops a session from the registry.
func (r *Registry) Remove(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, owner)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// StartReaper runs a background goroutine that periodically forces the
// idle-timeout transition on expired sessions. It returns immediately; the
// goroutine exits when ctx is canceled.
func (r *Registry) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session reaper started", "interval", reaperInterval)

		for {
			select {
			case <-ticker.C:
				r.sweep(ctx)
			case <-ctx.Done():
				slog.Info("Session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (r *Registry) sweep(ctx context.Context) {
	for _, sess := range r.snapshot() {
		if err := sess.expireIfIdle(ctx); err != nil {
			slog.Info("Reaper reclaimed idle session",
				"owner", sess.Owner(),
				"mode", sess.Mode(),
			)
		}
	}
}
