package slots

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Slot is one parking space as exposed to clients. DocID is the store's own
// record key and never leaves the process.
type Slot struct {
	ID       int    `json:"id"`
	Occupied bool   `json:"occupied"`
	DocID    string `json:"-"`

	ReservedAt *time.Time `json:"-"`
}

// Reservation is the outcome of a successful Reserve.
type Reservation struct {
	Slot         Slot
	Confirmation string
	ReservedAt   time.Time
}

// Store is implemented by every slot backend. Reserve must perform the
// lookup, the occupancy check and the write as one atomic step: when several
// callers race for the same free slot exactly one gets a nil error and the
// others get an *UnavailableError with ReasonOccupied.
type Store interface {
	List(ctx context.Context) ([]Slot, error)
	Reserve(ctx context.Context, id int, at time.Time) (Slot, error)
	Ping(ctx context.Context) error
}

// Seeder is implemented by stores that accept operator-created records.
type Seeder interface {
	Seed(ctx context.Context, slots []Slot) error
}

var (
	// ErrUnavailable matches every *UnavailableError.
	ErrUnavailable      = errors.New("slot not available")
	ErrStoreUnavailable = errors.New("slot store unavailable")
	ErrInvalidSlotID    = errors.New("invalid slot id")
)

// Reason says why a slot could not be reserved.
type Reason string

const (
	ReasonNotFound Reason = "not_found"
	ReasonOccupied Reason = "occupied"
)

// UnavailableError is returned when a slot is missing or already occupied.
// Callers match it with errors.Is(err, ErrUnavailable).
type UnavailableError struct {
	SlotID int
	Reason Reason
}

// NotFound reports that no record carries id.
func NotFound(id int) error { return &UnavailableError{SlotID: id, Reason: ReasonNotFound} }

// Occupied reports that the record for id is already taken.
func Occupied(id int) error { return &UnavailableError{SlotID: id, Reason: ReasonOccupied} }

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("slot %d not available: %s", e.SlotID, e.Reason)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// ReasonOf returns the reason carried by err, or "" if err is not an
// *UnavailableError.
func ReasonOf(err error) Reason {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ""
}
