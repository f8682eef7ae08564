package db

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

// TokenField names the user field a one-time token is stored in.
type TokenField string

const (
	VerificationToken  TokenField = "verification_token"
	ResetPasswordToken TokenField = "reset_password_token"
)

var (
	ErrUserNotFound = apperr.NotFound("user not found")
	ErrEmailTaken   = apperr.Conflict("email is already registered")
)

// MongoUserCollection implements UserCollection for MongoDB
type MongoUserCollection struct {
	Collection *mongo.Collection
}

func (c *MongoUserCollection) repo() repository[models.User] {
	return repository[models.User]{coll: c.Collection, notFound: ErrUserNotFound}
}

// InsertUser inserts a new user into the database
func (c *MongoUserCollection) InsertUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true

	id, err := c.repo().insert(ctx, user)
	if err != nil {
		if IsDuplicate(err) {
			return ErrEmailTaken
		}
		return err
	}
	user.ID = id
	return nil
}

// FindUserByID finds a user by their ID
func (c *MongoUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.repo().findByID(ctx, id)
}

// FindUserByEmail finds a user by their email
func (c *MongoUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.repo().findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

// FindUserByToken finds a user holding the hashed one-time token. Expired
// reset tokens don't match.
func (c *MongoUserCollection) FindUserByToken(ctx context.Context, field TokenField, hashed string) (*models.User, error) {
	filter := bson.M{string(field): hashed}
	if field == ResetPasswordToken {
		filter["reset_password_expiry"] = bson.M{"$gt": time.Now()}
	}
	return c.repo().findOne(ctx, filter)
}

// ListUsers lists users page by page
func (c *MongoUserCollection) ListUsers(ctx context.Context, q ListQuery) ([]models.User, int64, error) {
	return c.repo().list(ctx, q)
}

// UpdateUser replaces a user document
func (c *MongoUserCollection) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	err := c.repo().replace(ctx, user.ID, user)
	if IsDuplicate(err) {
		return ErrEmailTaken
	}
	return err
}

// DeleteUser deletes a user from the database
func (c *MongoUserCollection) DeleteUser(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}

// UpdateLastLogin updates the last login time for a user
func (c *MongoUserCollection) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	return c.repo().update(ctx, id, bson.M{"last_login": now, "updated_at": now})
}
