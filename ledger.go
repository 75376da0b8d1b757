package assetflow

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrNotFound is returned when no transaction has the requested id.
var ErrNotFound = errors.New("transaction not found")

// LedgerStore persists the ordered list of transactions. Each call is atomic.
type LedgerStore interface {
	// Load returns an immutable copy of the whole ledger.
	Load() (Snapshot, error)
	// Append adds tx at the end of the ledger.
	Append(tx Transaction) error
	// Replace swaps the transaction with the given id for tx, keeping its
	// position and id.
	Replace(id string, tx Transaction) error
	// Remove deletes the transaction with the given id.
	Remove(id string) error
}

// Snapshot is an immutable, ordered copy of a ledger. Every derivation pass
// reads a single Snapshot.
type Snapshot struct {
	txs []Transaction
}

// NewSnapshot returns a snapshot of txs, in that order.
func NewSnapshot(txs ...Transaction) Snapshot {
	return Snapshot{txs: slices.Clone(txs)}
}

// Len returns the number of records, malformed ones included.
func (s Snapshot) Len() int { return len(s.txs) }

// Transactions iterates over the records in ledger order.
func (s Snapshot) Transactions() iter.Seq2[int, Transaction] {
	return func(yield func(int, Transaction) bool) {
		for i, tx := range s.txs {
			if !yield(i, tx) {
				return
			}
		}
	}
}

// Get returns the transaction with the given id.
func (s Snapshot) Get(id string) (Transaction, bool) {
	i := s.index(id)
	if i < 0 {
		return nil, false
	}
	return s.txs[i], true
}

func (s Snapshot) index(id string) int {
	return slices.IndexFunc(s.txs, func(tx Transaction) bool { return tx.Which() == id })
}

// Malformed returns a MalformedTransaction for each record excluded from the
// derivation passes.
func (s Snapshot) Malformed() []error {
	var errs []error
	for _, tx := range s.txs {
		if m, ok := tx.(Malformed); ok {
			errs = append(errs, &MalformedTransaction{ID: m.ID, Reason: m.Reason})
		}
	}
	return errs
}

// Version returns a hash of the snapshot content. Two snapshots with the same
// records in the same order have the same version.
func (s Snapshot) Version() (string, error) {
	h := sha256.New()
	for _, tx := range s.txs {
		if err := EncodeTransaction(h, tx); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checkAppend returns an error if tx cannot be appended to txs.
func checkAppend(txs []Transaction, tx Transaction) error {
	if _, ok := tx.(Malformed); ok {
		return fmt.Errorf("cannot append malformed transaction %s", tx.Which())
	}
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction %s: %w", tx.Which(), err)
	}
	if (Snapshot{txs}).index(tx.Which()) >= 0 {
		return fmt.Errorf("duplicate transaction id %s", tx.Which())
	}
	return nil
}

// replaced returns a copy of txs where the transaction id is replaced by tx.
func replaced(txs []Transaction, id string, tx Transaction) ([]Transaction, error) {
	i := (Snapshot{txs}).index(id)
	if i < 0 {
		return nil, fmt.Errorf("replace %s: %w", id, ErrNotFound)
	}
	tx = tx.withID(id)
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction %s: %w", id, err)
	}
	txs = slices.Clone(txs)
	txs[i] = tx
	return txs, nil
}

// removed returns a copy of txs without the transaction id.
func removed(txs []Transaction, id string) ([]Transaction, error) {
	i := (Snapshot{txs}).index(id)
	if i < 0 {
		return nil, fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	return slices.Delete(slices.Clone(txs), i, i+1), nil
}

// MemoryLedger is a LedgerStore kept in memory. It is safe for concurrent use.
type MemoryLedger struct {
	mu  sync.RWMutex
	txs []Transaction
}

// NewMemoryLedger returns a ledger holding txs, in that order.
func NewMemoryLedger(txs ...Transaction) *MemoryLedger {
	return &MemoryLedger{txs: slices.Clone(txs)}
}

func (l *MemoryLedger) Load() (Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return NewSnapshot(l.txs...), nil
}

func (l *MemoryLedger) Append(tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := checkAppend(l.txs, tx); err != nil {
		return err
	}
	l.txs = append(l.txs, tx)
	return nil
}

func (l *MemoryLedger) Replace(id string, tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txs, err := replaced(l.txs, id, tx)
	if err != nil {
		return err
	}
	l.txs = txs
	return nil
}

func (l *MemoryLedger) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txs, err := removed(l.txs, id)
	if err != nil {
		return err
	}
	l.txs = txs
	return nil
}

// FileLedger is a LedgerStore backed by a JSONL file. A missing file is an
// empty ledger. Rewrites go through a temporary file renamed over the ledger.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

// NewFileLedger returns a ledger stored at path.
func NewFileLedger(path string) *FileLedger { return &FileLedger{path: path} }

// Path returns the ledger file path.
func (l *FileLedger) Path() string { return l.path }

func (l *FileLedger) read() ([]Transaction, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not open ledger file %q: %w", l.path, err)
	}
	defer f.Close()
	txs, err := DecodeLedger(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode ledger file %q: %w", l.path, err)
	}
	return txs, nil
}

func (l *FileLedger) write(txs []Transaction) error {
	var buf bytes.Buffer
	if err := EncodeLedger(&buf, slices.All(txs)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write ledger file %q: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write ledger file %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("could not replace ledger file %q: %w", l.path, err)
	}
	return nil
}

func (l *FileLedger) Load() (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	txs, err := l.read()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{txs: txs}, nil
}

func (l *FileLedger) Append(tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txs, err := l.read()
	if err != nil {
		return err
	}
	if err := checkAppend(txs, tx); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not open ledger file %q: %w", l.path, err)
	}
	if err := EncodeTransaction(f, tx); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *FileLedger) Replace(id string, tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txs, err := l.read()
	if err != nil {
		return err
	}
	if txs, err = replaced(txs, id, tx); err != nil {
		return err
	}
	return l.write(txs)
}

func (l *FileLedger) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txs, err := l.read()
	if err != nil {
		return err
	}
	if txs, err = removed(txs, id); err != nil {
		return err
	}
	return l.write(txs)
}
