package db

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

// ErrSequence is returned when a sequence number cannot be produced.
var ErrSequence = apperr.New(http.StatusInternalServerError, "failed to generate sequence number")

// CounterOptions shapes the generated value.
type CounterOptions struct {
	Prefix  string
	Suffix  string
	Padding int
	Reset   models.ResetPeriod
}

// Sequence is one generated number.
type Sequence struct {
	Value string
	Seq   int64
}

// MongoCounterCollection implements CounterCollection on a single
// collection with one document per counter name.
type MongoCounterCollection struct {
	Collection *mongo.Collection
	now        func() time.Time
}

// GetNext atomically increments counter name and returns the formatted
// value. When opts.Reset is set and the stored last reset precedes the start
// of the current period the sequence restarts at 1.
func (c *MongoCounterCollection) GetNext(ctx context.Context, name string, opts CounterOptions) (Sequence, error) {
	now := time.Now().UTC()
	if c.now != nil {
		now = c.now().UTC()
	}

	update := counterPipeline(now, opts.Reset)
	findOpts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter models.Counter
	err := c.Collection.FindOneAndUpdate(ctx, bson.M{"_id": name}, update, findOpts).Decode(&counter)
	if mongo.IsDuplicateKeyError(err) {
		// two first callers raced on the upsert; the document exists now
		err = c.Collection.FindOneAndUpdate(ctx, bson.M{"_id": name}, update, findOpts).Decode(&counter)
	}
	if err != nil {
		return Sequence{}, apperr.Wrap(ErrSequence.Status, ErrSequence.Message, fmt.Errorf("counter %s: %w", name, err))
	}

	return Sequence{
		Value: FormatSequence(opts.Prefix, opts.Suffix, opts.Padding, counter.Seq),
		Seq:   counter.Seq,
	}, nil
}

func counterPipeline(now time.Time, reset models.ResetPeriod) mongo.Pipeline {
	increment := bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$seq", 0}}, 1}}
	if reset == models.ResetNever {
		return mongo.Pipeline{{{Key: "$set", Value: bson.D{
			{Key: "seq", Value: increment},
			{Key: "last_reset", Value: bson.M{"$ifNull": bson.A{"$last_reset", now}}},
		}}}}
	}

	stale := bson.M{"$lt": bson.A{
		bson.M{"$ifNull": bson.A{"$last_reset", time.Time{}}},
		PeriodStart(now, reset),
	}}
	return mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "seq", Value: bson.M{"$cond": bson.A{stale, 1, increment}}},
		{Key: "last_reset", Value: bson.M{"$cond": bson.A{stale, now, "$last_reset"}}},
	}}}}
}

// PeriodStart returns the beginning of the reset period containing now.
func PeriodStart(now time.Time, reset models.ResetPeriod) time.Time {
	y, m, d := now.Date()
	switch reset {
	case models.ResetDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case models.ResetMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	case models.ResetYearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, now.Location())
	}
	return time.Time{}
}

// FormatSequence renders prefix, the zero padded number and suffix.
func FormatSequence(prefix, suffix string, padding int, seq int64) string {
	n := strconv.FormatInt(seq, 10)
	if pad := padding - len(n); pad > 0 {
		n = strings.Repeat("0", pad) + n
	}
	return prefix + n + suffix
}
