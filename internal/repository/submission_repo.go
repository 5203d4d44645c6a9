package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/db"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/oxidb"
)

const SubmissionsCollection = "submissions"

// createdAtLayout is fixed width so that string order is time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SubmissionRepo is the document store for submissions. createdAt is
// assigned here, never taken from the caller.
type SubmissionRepo struct {
	pool db.Source
	now  func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewSubmissionRepo(pool db.Source) *SubmissionRepo {
	return &SubmissionRepo{pool: pool, now: time.Now}
}

// EnsureIndexes makes ownerId unique so a racing second insert for the same
// owner is rejected by the store.
func (r *SubmissionRepo) EnsureIndexes(ctx context.Context) error {
	c := r.pool.Get()
	if err := c.CreateUniqueIndex(ctx, SubmissionsCollection, "ownerId"); err != nil {
		return err
	}
	return c.CreateIndex(ctx, SubmissionsCollection, "createdAt")
}

// Insert stores sub with a fresh createdAt and returns the new id and the
// timestamp. An existing submission for the owner yields ErrDuplicate.
func (r *SubmissionRepo) Insert(ctx context.Context, sub *models.Submission) (string, time.Time, error) {
	createdAt := r.stamp()
	doc := toDoc(sub)
	doc["createdAt"] = createdAt.Format(createdAtLayout)

	c := r.pool.Get()
	result, err := c.Insert(ctx, SubmissionsCollection, doc)
	if err != nil {
		if oxidb.IsDuplicateKey(err) {
			return "", time.Time{}, ErrDuplicate
		}
		return "", time.Time{}, err
	}
	return extractID(result), createdAt, nil
}

// FindByOwner returns every submission owned by ownerID, oldest first. A
// stored document that cannot be decoded is an error, not an absent record.
func (r *SubmissionRepo) FindByOwner(ctx context.Context, ownerID string) ([]models.Submission, error) {
	c := r.pool.Get()
	docs, err := c.Find(ctx, SubmissionsCollection, map[string]any{"ownerId": ownerID}, &oxidb.FindOptions{
		Sort: map[string]any{"createdAt": 1},
	})
	if err != nil {
		return nil, err
	}
	subs := make([]models.Submission, 0, len(docs))
	for _, d := range docs {
		s, err := fromDoc[models.Submission](d, "submission")
		if err != nil {
			return nil, fmt.Errorf("owner %s: %w", ownerID, err)
		}
		subs = append(subs, *s)
	}
	return subs, nil
}

func (r *SubmissionRepo) CountAll(ctx context.Context) (int, error) {
	c := r.pool.Get()
	return c.Count(ctx, SubmissionsCollection, map[string]any{})
}

// stamp returns a UTC timestamp strictly after the previous one.
func (r *SubmissionRepo) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Microsecond)
	}
	r.last = t
	return t
}
