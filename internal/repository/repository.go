package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tuncerburak97/apilog/internal/model"
)

var ErrNotFound = errors.New("api log not found")

// Recorder is the write side used by the capture middleware.
type Recorder interface {
	// Save assigns the record's ID and CreatedAt and stores it durably.
	Save(ctx context.Context, log *model.APILog) error
}

// Reader is the read side used by the query API.
type Reader interface {
	Get(ctx context.Context, id int64) (*model.APILog, error)
	// Query returns one page of matching records and the total match count.
	Query(ctx context.Context, c Criteria) ([]*model.APILog, int64, error)
}

type LogRepository interface {
	Recorder
	Reader
	Migrate(ctx context.Context) error
	Close() error
}

type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLte Op = "<="
)

// Condition compares one column against a value. Field is always a name from
// model.Fields.
type Condition struct {
	Field string
	Op    Op
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// Criteria is a conjunction of conditions with ordering and an optional
// window. A zero Limit means no limit.
type Criteria struct {
	Conditions []Condition
	Order      []Order
	Offset     int
	Limit      int
}

// DefaultOrder is newest first.
var DefaultOrder = []Order{
	{Field: model.FieldCreatedAt, Desc: true},
	{Field: model.FieldID, Desc: true},
}

// Ordering returns c.Order, or DefaultOrder when none is set. An id tiebreak
// is appended so pages are stable.
func (c Criteria) Ordering() []Order {
	if len(c.Order) == 0 {
		return DefaultOrder
	}
	for _, o := range c.Order {
		if o.Field == model.FieldID {
			return c.Order
		}
	}
	return append(append([]Order{}, c.Order...), Order{Field: model.FieldID, Desc: c.Order[0].Desc})
}

// Stamp sets CreatedAt to now unless the caller already set it.
func Stamp(log *model.APILog, now time.Time) {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
}

// Validate checks that every condition and ordering names a known field with a
// supported operator.
func (c Criteria) Validate() error {
	for _, cond := range c.Conditions {
		if _, ok := model.LookupField(cond.Field); !ok {
			return fmt.Errorf("unknown field %q", cond.Field)
		}
		switch cond.Op {
		case OpEq, OpGte, OpLte:
		default:
			return fmt.Errorf("unsupported operator %q", cond.Op)
		}
	}
	for _, o := range c.Order {
		if _, ok := model.LookupField(o.Field); !ok {
			return fmt.Errorf("unknown field %q", o.Field)
		}
	}
	return nil
}
