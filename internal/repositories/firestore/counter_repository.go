package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	pfirestore "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/firestore"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

const (
	countersCollection  = "counters"
	customersCollection = "customers"
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil),
	}, nil
}

// Next atomically increments the counter identified by counterID and returns the new value. A
// missing counter starts from zero.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if err := repositories.ValidateCounterInput(id, step); err != nil {
		return 0, err
	}
	if step == 0 {
		step = 1
	}

	var nextValue int64
	err := r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		doc, err := r.counters.Get(txCtx, id)
		current := doc.Data
		switch {
		case err == nil:
		case pfirestore.IsNotFound(err):
			current = counterDocument{}
		default:
			return err
		}

		current.CurrentValue += step
		current.UpdatedAt = time.Now().UTC()
		if err := r.counters.Set(txCtx, id, current); err != nil {
			return err
		}
		nextValue = current.CurrentValue
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return nextValue, nil
}

// CustomerRepository resolves customers from the customers collection.
type CustomerRepository struct {
	customers *pfirestore.BaseRepository[customerDocument]
}

var _ repositories.CustomerLookup = (*CustomerRepository)(nil)

func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		customers: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil),
	}, nil
}

func (r *CustomerRepository) Resolve(ctx context.Context, customerID string) (domain.Customer, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Customer{}, pfirestore.NotFoundError("customers.get", "customer id is required")
	}
	doc, err := r.customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return domain.Customer{
		ID:         doc.ID,
		BusinessID: doc.Data.BusinessID,
		Name:       doc.Data.Name,
		Email:      doc.Data.Email,
		Phone:      doc.Data.Phone,
	}, nil
}
