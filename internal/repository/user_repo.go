package repository

import (
	"context"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/db"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/oxidb"
)

const UsersCollection = "_mix_users"

type UserRepo struct {
	pool db.Source
}

func NewUserRepo(pool db.Source) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	c := r.pool.Get()
	if err := c.CreateUniqueIndex(ctx, UsersCollection, "email"); err != nil {
		return err
	}
	return c.CreateIndex(ctx, UsersCollection, "subject")
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, map[string]any{"email": email})
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, map[string]any{"_id": toNumericID(id)})
}

func (r *UserRepo) FindBySubject(ctx context.Context, provider, subject string) (*models.User, error) {
	return r.findOne(ctx, map[string]any{"provider": provider, "subject": subject})
}

// Create inserts user and returns its id. A taken email yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, user *models.User) (string, error) {
	c := r.pool.Get()
	result, err := c.Insert(ctx, UsersCollection, toDoc(user))
	if err != nil {
		if oxidb.IsDuplicateKey(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	return extractID(result), nil
}

func (r *UserRepo) findOne(ctx context.Context, query map[string]any) (*models.User, error) {
	c := r.pool.Get()
	doc, err := c.FindOne(ctx, UsersCollection, query)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return fromDoc[models.User](doc, "user")
}
