package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

type txKey struct{}

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// TransactionFromContext returns the transaction bound to ctx by RunTransaction, if any.
func TransactionFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// RunTransaction executes fn within a transaction on the provided client. The transaction is also
// bound to the callback context so repositories called from fn join it. When ctx already carries a
// transaction fn runs inside it instead of opening a nested one. Firestore retries fn on contention,
// so fn must not leak side effects outside the transaction.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	if client == nil {
		return errors.New("firestore: client is nil")
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	txnCtx := ctx
	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			txnCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(context.WithValue(ctx, txKey{}, tx), tx)
	}, firestore.MaxAttempts(cfg.attempts))

	return WrapError("transaction", err)
}

// UnitOfWork adapts Firestore transactions to repositories.UnitOfWork.
type UnitOfWork struct {
	provider *Provider
	opts     []TxOption
}

// NewUnitOfWork binds a UnitOfWork to the provider's client.
func NewUnitOfWork(provider *Provider, opts ...TxOption) *UnitOfWork {
	return &UnitOfWork{provider: provider, opts: opts}
}

// RunInTx runs fn in a Firestore transaction. Repositories read the transaction from the context.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("firestore: unit of work provider is nil")
	}
	client, err := u.provider.Client(ctx)
	if err != nil {
		return err
	}
	return RunTransaction(ctx, client, func(txCtx context.Context, _ *firestore.Transaction) error {
		return fn(txCtx)
	}, u.opts...)
}
