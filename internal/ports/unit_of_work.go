package ports

import "context"

// Tx is the transaction handle carried in a context. The persistence
// adapter owns its concrete type.
type Tx interface{}

// UnitOfWork runs fn in one transaction: an error from fn rolls back, nil
// commits. Calls made with a context that already carries a transaction
// join it.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) Tx {
	return ctx.Value(txKey{})
}
