// Package firestoredb stores parking slots as documents in a Cloud Firestore
// collection. Documents carry an integer "id" and a boolean "occupied";
// the document name is the internal key.
package firestoredb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/srikanta2006/smart-parking/internal/slots"
)

// reserveAttempts bounds transaction retries. A loser needs at most one retry
// after the winner commits.
const reserveAttempts = 10

type record struct {
	ID         int64      `firestore:"id"`
	Occupied   bool       `firestore:"occupied"`
	ReservedAt *time.Time `firestore:"reservedAt,omitempty"`
}

type Store struct {
	client     *firestore.Client
	collection string
}

// Open connects to projectID. credentialsFile may be empty to use
// application default credentials or FIRESTORE_EMULATOR_HOST.
func Open(ctx context.Context, projectID, credentialsFile, collection string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return New(client, collection), nil
}

func New(client *firestore.Client, collection string) *Store {
	if collection == "" {
		collection = "parking_slots"
	}
	return &Store{client: client, collection: collection}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) col() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *Store) List(ctx context.Context) ([]slots.Slot, error) {
	it := s.col().Documents(ctx)
	defer it.Stop()

	out := []slots.Slot{}
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		slot, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, nil
}

// Reserve runs the lookup and the update in one Firestore transaction. If a
// concurrent transaction commits first, Firestore retries this one and the
// retry observes occupied=true.
func (s *Store) Reserve(ctx context.Context, id int, at time.Time) (slots.Slot, error) {
	var reserved slots.Slot
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		q := s.col().Where("id", "==", int64(id)).Limit(1)
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return slots.NotFound(id)
		}
		slot, err := decode(docs[0])
		if err != nil {
			return err
		}
		if slot.Occupied {
			return slots.Occupied(id)
		}
		if err := tx.Update(docs[0].Ref, []firestore.Update{
			{Path: "occupied", Value: true},
			{Path: "reservedAt", Value: at},
		}); err != nil {
			return err
		}
		slot.Occupied = true
		slot.ReservedAt = &at
		reserved = slot
		return nil
	}, firestore.MaxAttempts(reserveAttempts))
	if err != nil {
		return slots.Slot{}, err
	}
	return reserved, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.col().Limit(1).Documents(ctx).GetAll()
	return err
}

func (s *Store) Seed(ctx context.Context, in []slots.Slot) error {
	for _, slot := range in {
		if slot.DocID == "" {
			slot.DocID = uuid.NewString()
		}
		rec := record{ID: int64(slot.ID), Occupied: slot.Occupied}
		if _, err := s.col().Doc(slot.DocID).Set(ctx, rec); err != nil {
			return fmt.Errorf("firestore: seed slot %d: %w", slot.ID, err)
		}
	}
	return nil
}

func decode(doc *firestore.DocumentSnapshot) (slots.Slot, error) {
	var rec record
	if err := doc.DataTo(&rec); err != nil {
		return slots.Slot{}, fmt.Errorf("firestore: decode %s: %w", doc.Ref.ID, err)
	}
	return slots.Slot{
		ID:         int(rec.ID),
		Occupied:   rec.Occupied,
		DocID:      doc.Ref.ID,
		ReservedAt: rec.ReservedAt,
	}, nil
}
