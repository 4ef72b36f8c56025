package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
)

// MemoryRepository keeps records in process memory. It is meant for local
// development and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	logs   []*model.APILog
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, now: time.Now}
}

func (r *MemoryRepository) Save(ctx context.Context, log *model.APILog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	log.ID = r.nextID
	r.nextID++
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now()
	}
	stored := *log
	r.logs = append(r.logs, &stored)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id int64) (*model.APILog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.logs {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryRepository) Query(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
	if err := c.Validate(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*model.APILog, 0, len(r.logs))
	for _, l := range r.logs {
		if matches(l, c.Conditions) {
			cp := *l
			matched = append(matched, &cp)
		}
	}

	order := c.Ordering()
	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range order {
			cmp := compare(matched[i].Value(o.Field), matched[j].Value(o.Field))
			if cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	total := int64(len(matched))
	offset := max(c.Offset, 0)
	if offset >= len(matched) {
		return []*model.APILog{}, total, nil
	}
	matched = matched[offset:]
	if c.Limit > 0 && c.Limit < len(matched) {
		matched = matched[:c.Limit]
	}
	return matched, total, nil
}

// Len reports how many records are stored.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs)
}

func (r *MemoryRepository) Migrate(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

// matches expects conds to have passed Criteria.Validate.
func matches(l *model.APILog, conds []repository.Condition) bool {
	for _, cond := range conds {
		cmp := compare(l.Value(cond.Field), cond.Value)
		switch cond.Op {
		case repository.OpEq:
			if cmp != 0 {
				return false
			}
		case repository.OpGte:
			if cmp < 0 {
				return false
			}
		case repository.OpLte:
			if cmp > 0 {
				return false
			}
		}
	}
	return true
}

// compare orders two column values. nil sorts first; mismatched types compare
// by their string form.
func compare(a, b any) int {
	a, b = deref(a), deref(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case int64:
		if bv, ok := toFloat(b); ok {
			return cmpFloat(float64(av), bv)
		}
	case int:
		if bv, ok := toFloat(b); ok {
			return cmpFloat(float64(av), bv)
		}
	case float64:
		if bv, ok := toFloat(b); ok {
			return cmpFloat(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func deref(v any) any {
	if p, ok := v.(*string); ok {
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
