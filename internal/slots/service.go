package slots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"time"
)

// Outcome labels a reservation attempt for statistics.
type Outcome string

const (
	OutcomeReserved Outcome = "reserved"
	OutcomeNotFound Outcome = "not_found"
	OutcomeOccupied Outcome = "occupied"
	OutcomeError    Outcome = "error"
)

// Event describes one reservation attempt.
type Event struct {
	SlotID  int
	Outcome Outcome
	At      time.Time
}

// Recorder persists reservation events. Recording is best-effort: the
// service logs failures and never lets them change a response.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Service applies reservation rules on top of a Store.
type Service struct {
	store         Store
	recorder      Recorder
	logger        *log.Logger
	timeout       time.Duration
	recordTimeout time.Duration
	clock         func() time.Time
	confirm       func() string
}

// Option configures a Service.
type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTimeout bounds every store call. Zero or negative leaves calls bounded
// only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithRecordTimeout bounds each Recorder call. Zero or negative falls back
// to the store timeout.
func WithRecordTimeout(d time.Duration) Option {
	return func(s *Service) { s.recordTimeout = d }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithConfirmationFunc(fn func() string) Option {
	return func(s *Service) { s.confirm = fn }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		logger:        log.New(io.Discard, "", 0),
		timeout:       3 * time.Second,
		recordTimeout: 250 * time.Millisecond,
		clock:         time.Now,
		confirm:       ConfirmationNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmationNumber returns a human-readable reference such as PK-042317.
func ConfirmationNumber() string {
	return fmt.Sprintf("PK-%06d", rand.IntN(1000000))
}

func (s *Service) List(ctx context.Context) ([]Slot, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	out, err := s.store.List(ctx)
	if err != nil {
		return nil, storeError("list", err)
	}
	if out == nil {
		out = []Slot{}
	}
	return out, nil
}

// Reserve flips slot id from free to occupied. It returns an error matching
// ErrUnavailable when the slot does not exist or is already taken, and one
// matching ErrStoreUnavailable when the store fails or times out.
func (s *Service) Reserve(ctx context.Context, id int) (Reservation, error) {
	if id < 0 {
		return Reservation{}, ErrInvalidSlotID
	}

	at := s.clock().UTC()
	sctx, cancel := s.bound(ctx)
	slot, err := s.store.Reserve(sctx, id, at)
	cancel()

	switch {
	case err == nil:
		s.record(ctx, id, OutcomeReserved, at)
	case errors.Is(err, ErrUnavailable):
		if ReasonOf(err) == ReasonNotFound {
			s.record(ctx, id, OutcomeNotFound, at)
		} else {
			s.record(ctx, id, OutcomeOccupied, at)
		}
		return Reservation{}, err
	default:
		s.record(ctx, id, OutcomeError, at)
		return Reservation{}, storeError("reserve", err)
	}

	return Reservation{
		Slot:         slot,
		Confirmation: s.confirm(),
		ReservedAt:   at,
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) record(ctx context.Context, id int, outcome Outcome, at time.Time) {
	if s.recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if s.recordTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.recordTimeout)
	} else {
		ctx, cancel = s.bound(ctx)
	}
	defer cancel()
	if err := s.recorder.Record(ctx, Event{SlotID: id, Outcome: outcome, At: at}); err != nil {
		s.logger.Printf("slots: record %s for slot %d: %v", outcome, id, err)
	}
}

func storeError(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
