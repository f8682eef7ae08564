package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var ErrPaymentNotFound = apperr.NotFound("payment not found")

// MongoPaymentCollection implements PaymentCollection for MongoDB.
type MongoPaymentCollection struct {
	Collection *mongo.Collection
}

func (c *MongoPaymentCollection) repo() repository[models.Payment] {
	return repository[models.Payment]{coll: c.Collection, notFound: ErrPaymentNotFound}
}

// InsertPayment inserts a payment record into the collection.
func (c *MongoPaymentCollection) InsertPayment(ctx context.Context, payment *models.Payment) error {
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}
	id, err := c.repo().insert(ctx, payment)
	if err != nil {
		return err
	}
	payment.ID = id
	return nil
}

// FindPaymentByID finds a payment by its ID.
func (c *MongoPaymentCollection) FindPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	return c.repo().findByID(ctx, id)
}

// ListPayments lists payments page by page.
func (c *MongoPaymentCollection) ListPayments(ctx context.Context, q ListQuery) ([]models.Payment, int64, error) {
	return c.repo().list(ctx, q)
}

// DeletePayment deletes a payment by its ID.
func (c *MongoPaymentCollection) DeletePayment(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}
