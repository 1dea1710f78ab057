package mbz

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	backoffMultiplier      = 1.5
	recoveryFactor         = 0.95
	maxConsecutiveFailures = 5
)

// BackoffStore persists the limiter's current delay across restarts, so the
// process resumes at the pace MusicBrainz last tolerated.
type BackoffStore interface {
	SaveBackoff(delay time.Duration, sawServerError bool) error
	LoadBackoff() (time.Duration, error)
}

// AdaptiveLimiter paces MusicBrainz requests. It starts just above the
// documented one-request-per-second limit, multiplies the delay on every 503,
// and shaves it back down while requests succeed.
type AdaptiveLimiter struct {
	limiter *rate.Limiter
	store   BackoffStore
	logger  *zap.Logger

	mu                  sync.Mutex
	minDelay            time.Duration
	maxDelay            time.Duration
	currentDelay        time.Duration
	consecutiveFailures int
}

// NewAdaptiveLimiter builds a limiter starting at the persisted delay when a
// store is given, otherwise at minDelay.
func NewAdaptiveLimiter(minDelay, maxDelay time.Duration, store BackoffStore, logger *zap.Logger) *AdaptiveLimiter {
	delay := minDelay
	if store != nil {
		if persisted, err := store.LoadBackoff(); err == nil && persisted > minDelay {
			delay = persisted
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	return &AdaptiveLimiter{
		limiter:      rate.NewLimiter(rate.Every(delay), 1),
		store:        store,
		logger:       logger.Named("limiter"),
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		currentDelay: delay,
	}
}

// Wait blocks until the next request is allowed or the context is done.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// OnSuccess nudges the delay back towards the minimum.
func (l *AdaptiveLimiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveFailures = 0
	if l.currentDelay > l.minDelay {
		next := time.Duration(float64(l.currentDelay) * recoveryFactor)
		if next < l.minDelay {
			next = l.minDelay
		}
		l.setDelay(next)
	}
	l.persist(false)
}

// OnServerBusy backs off after a 503, doubling down once failures pile up.
func (l *AdaptiveLimiter) OnServerBusy() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveFailures++
	next := time.Duration(float64(l.currentDelay) * backoffMultiplier)
	if l.consecutiveFailures >= maxConsecutiveFailures {
		next *= 2
	}
	if next > l.maxDelay {
		next = l.maxDelay
	}
	l.setDelay(next)
	l.persist(true)

	l.logger.Warn("MusicBrainz busy, increased backoff",
		zap.Duration("delay", l.currentDelay),
		zap.Int("consecutiveFailures", l.consecutiveFailures))
}

// Delay returns the current inter-request delay.
func (l *AdaptiveLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentDelay
}

func (l *AdaptiveLimiter) setDelay(delay time.Duration) {
	l.currentDelay = delay
	l.limiter.SetLimit(rate.Every(delay))
}

func (l *AdaptiveLimiter) persist(sawServerError bool) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveBackoff(l.currentDelay, sawServerError); err != nil {
		l.logger.Debug("Could not persist limiter state", zap.Error(err))
	}
}
