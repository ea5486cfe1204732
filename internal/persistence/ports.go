// Package persistence defines the narrow load/save contract the store
// depends on. Implementations live in the sub-packages and in
// internal/storage and internal/sheets/google.
//
// Loaders return an empty list or core.DefaultSettings when nothing is stored
// and also when stored data is corrupt; they return an error only when the
// backend itself cannot be reached.
package persistence

import (
	"context"

	"bilancio/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionLoader interface {
		LoadTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// TransactionSaver replaces the whole stored set with txns, in order.
	TransactionSaver interface {
		SaveTransactions(ctx context.Context, txns []core.Transaction) error
	}

	SettingsLoader interface {
		LoadSettings(ctx context.Context) (core.Settings, error)
	}

	SettingsSaver interface {
		SaveSettings(ctx context.Context, s core.Settings) error
	}

	// Persistence is everything the store needs from a backend.
	Persistence interface {
		TransactionLoader
		TransactionSaver
		SettingsLoader
		SettingsSaver
	}
)

// CloneTransactions copies a slice so adapters never share backing arrays
// with their callers.
func CloneTransactions(txns []core.Transaction) []core.Transaction {
	if txns == nil {
		return []core.Transaction{}
	}
	return append(make([]core.Transaction, 0, len(txns)), txns...)
}
