// Package sweeper runs the periodic expiry pass over overdue holds and unpaid
// bookings.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
)

type ReservationExpirer interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type BookingExpirer interface {
	ExpireUnpaid(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	Interval   time.Duration
	MaxRetries int
	// Backoff is the first retry delay; it doubles on every attempt.
	Backoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   domain.DefaultSweepInterval,
		MaxRetries: 3,
		Backoff:    time.Second,
	}
}

type Sweeper struct {
	reservations ReservationExpirer
	bookings     BookingExpirer
	clock        clock.Clock
	cfg          Config
	log          observability.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stats   Stats
}

type Stats struct {
	Running             bool      `json:"running"`
	Runs                int64     `json:"runs"`
	Failures            int64     `json:"failures"`
	ExpiredReservations int64     `json:"expired_reservations"`
	ExpiredBookings     int64     `json:"expired_bookings"`
	LastRun             time.Time `json:"last_run"`
}

// New builds a sweeper. bookings may be nil when only holds are swept.
func New(reservations ReservationExpirer, bookings BookingExpirer, clk clock.Clock, cfg Config, log observability.Logger) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &Sweeper{
		reservations: reservations,
		bookings:     bookings,
		clock:        clk,
		cfg:          cfg,
		log:          log.WithField("component", "sweeper"),
	}
}

// Start runs a pass immediately and then one per interval until Stop is
// called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("sweeper already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)
	s.log.WithField("interval", s.cfg.Interval.String()).Info("sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("sweeper stopped")
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass. Errors and panics are logged and counted;
// they never escape.
func (s *Sweeper) RunOnce(ctx context.Context) (expired int, err error) {
	now := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("sweep panicked: %v", r)
		}
		s.finish(now, err)
	}()

	n, err := s.retry(ctx, "reservations", func() (int, error) {
		return s.reservations.SweepExpired(ctx, now)
	})
	s.add(&s.stats.ExpiredReservations, n)
	observability.SweepExpired.WithLabelValues("reservation").Add(float64(n))
	expired += n

	if s.bookings != nil {
		m, berr := s.retry(ctx, "bookings", func() (int, error) {
			return s.bookings.ExpireUnpaid(ctx, now)
		})
		s.add(&s.stats.ExpiredBookings, m)
		observability.SweepExpired.WithLabelValues("booking").Add(float64(m))
		expired += m
		err = errors.CombineErrors(err, berr)
	}
	return expired, err
}

// retry repeats fn on storage failures with exponential backoff. Other errors
// are returned at once.
func (s *Sweeper) retry(ctx context.Context, what string, fn func() (int, error)) (int, error) {
	var total int
	var err error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		var n int
		n, err = fn()
		total += n
		if err == nil || !errors.Is(err, domain.ErrStorage) {
			return total, err
		}
		if attempt == s.cfg.MaxRetries-1 {
			break
		}
		wait := s.cfg.Backoff << attempt
		s.log.WithError(err).WithFields(map[string]interface{}{"sweep": what, "attempt": attempt + 1, "backoff": wait.String()}).Warn("sweep failed, retrying")
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(wait):
		}
	}
	return total, errors.Wrapf(err, "sweep %s failed after %d attempts", what, s.cfg.MaxRetries)
}

func (s *Sweeper) add(counter *int64, n int) {
	s.mu.Lock()
	*counter += int64(n)
	s.mu.Unlock()
}

func (s *Sweeper) finish(at time.Time, err error) {
	s.mu.Lock()
	s.stats.Runs++
	s.stats.LastRun = at
	if err != nil {
		s.stats.Failures++
	}
	s.mu.Unlock()

	observability.SweepRuns.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		s.log.WithError(err).Error("sweep pass failed")
	}
}

func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Running = s.running
	return st
}
