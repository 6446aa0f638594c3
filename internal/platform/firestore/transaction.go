package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	// txAttempts bounds the automatic retries Firestore performs on contended
	// transactions, such as two checkouts racing for the same slot.
	txAttempts = 5
	txTimeout  = 15 * time.Second
)

// TxFunc runs inside a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction executes fn in a transaction on client, capping the duration
// unless the caller already carries a tighter deadline.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	txnCtx := ctx
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline || time.Until(deadline) > txTimeout {
		var cancel context.CancelFunc
		txnCtx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}

	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(txAttempts))

	return WrapError("transaction", err)
}
