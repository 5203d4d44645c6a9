package repository

import (
	"context"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/db"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
)

const SessionsCollection = "_mix_sessions"

type SessionRepo struct {
	pool db.Source
}

func NewSessionRepo(pool db.Source) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) EnsureIndexes(ctx context.Context) error {
	c := r.pool.Get()
	if err := c.CreateUniqueIndex(ctx, SessionsCollection, "sessionId"); err != nil {
		return err
	}
	return c.CreateIndex(ctx, SessionsCollection, "userId")
}

func (r *SessionRepo) Create(ctx context.Context, s *models.Session) error {
	c := r.pool.Get()
	_, err := c.Insert(ctx, SessionsCollection, toDoc(s))
	return err
}

func (r *SessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	c := r.pool.Get()
	doc, err := c.FindOne(ctx, SessionsCollection, map[string]any{"sessionId": id})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return fromDoc[models.Session](doc, "session")
}

func (r *SessionRepo) Revoke(ctx context.Context, id string) error {
	c := r.pool.Get()
	_, err := c.UpdateOne(ctx, SessionsCollection,
		map[string]any{"sessionId": id},
		map[string]any{"$set": map[string]any{"revoked": true}})
	return err
}
