package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shpitdev/leads-enrichment-module/pkg/foundry"
)

// Foundry writes each key as <key>.json into the output dataset.
//
// Inside a build the output transaction is already open; the file joins it and the build commits.
// Otherwise the store opens a SNAPSHOT transaction and commits it itself.
type Foundry struct {
	client *foundry.Client
	ref    foundry.DatasetRef
}

// NewFoundry returns a store writing into the dataset ref names.
func NewFoundry(client *foundry.Client, ref foundry.DatasetRef) *Foundry {
	return &Foundry{client: client, ref: ref}
}

func (f *Foundry) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}

	var txnID string
	createdTxn := true
	err := foundry.RetryTransient(ctx, 8, 200*time.Millisecond, func() error {
		var err error
		txnID, err = f.client.CreateTransaction(ctx, f.ref.RID, f.ref.Branch, "SNAPSHOT")
		return err
	})
	if err != nil {
		if !foundry.IsOpenTransactionAlreadyExists(err) {
			return err
		}
		createdTxn = false

		var ok bool
		err = foundry.RetryTransient(ctx, 8, 200*time.Millisecond, func() error {
			var err error
			txnID, ok, err = f.client.FindLatestOpenTransaction(ctx, f.ref.RID)
			return err
		})
		if err != nil {
			return err
		}
		if !ok || txnID == "" {
			return fmt.Errorf("output dataset reports an open transaction but listTransactions returned none")
		}
	}

	if err := foundry.RetryTransient(ctx, 8, 200*time.Millisecond, func() error {
		return f.client.UploadFile(ctx, f.ref.RID, txnID, key+".json", contentType, value)
	}); err != nil {
		return err
	}

	if createdTxn {
		return foundry.RetryTransient(ctx, 8, 200*time.Millisecond, func() error {
			return f.client.CommitTransaction(ctx, f.ref.RID, txnID)
		})
	}
	return nil
}

func (f *Foundry) Close() error { return nil }
