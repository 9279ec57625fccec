package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"relay-lab/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const historyPrefix = "hist:"

// HistoryRecord is the archived form of a terminal queued message.
type HistoryRecord struct {
	ID         uuid.UUID             `json:"id"`
	Status     domain.DeliveryStatus `json:"status"`
	Kind       domain.TargetKind     `json:"kind"`
	Type       domain.MessageType    `json:"type"`
	Payload    []byte                `json:"payload"`
	CreatedAt  time.Time             `json:"created_at"`
	ArchivedAt time.Time             `json:"archived_at"`
	RetryCount int                   `json:"retry_count"`
}

// History persists terminal messages in BadgerDB so operators can inspect
// what was sent, what failed and why, after the fact. The queue itself stays
// in memory; this archive is observability, not delivery state.
type History struct {
	db  *badger.DB
	log *slog.Logger
}

func NewHistory(db *badger.DB, log *slog.Logger) History {
	return History{db: db, log: log}
}

// Archive stores a terminal message.
// The key is formatted as "hist:{status}:{timestamp_padded}:{uuid}" to:
//  1. Allow per-status prefix scans.
//  2. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order), with the UUID as a collision disambiguator.
func (h History) Archive(m domain.QueuedMessage) error {
	now := time.Now().UTC()
	key := fmt.Sprintf("%s%s:%019d:%s", historyPrefix, m.Status, now.UnixNano(), m.ID)

	record := HistoryRecord{
		ID:         m.ID,
		Status:     m.Status,
		Kind:       m.Target.Kind,
		Type:       m.Type,
		Payload:    m.Payload,
		CreatedAt:  m.CreatedAt,
		ArchivedAt: now,
		RetryCount: m.RetryCount,
	}
	bytes, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// ListByStatus retrieves the most recent records of one terminal status.
// Thanks to the padded timestamp in the key a reverse scan yields them
// newest first.
func (h History) ListByStatus(status domain.DeliveryStatus, limit int) ([]HistoryRecord, error) {
	var records []HistoryRecord
	err := h.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("%s%s:", historyPrefix, status))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key for this status, then walk back.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var record HistoryRecord
				if err := json.Unmarshal(value, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// PruneOlderThan deletes archived records whose timestamp segment predates
// the cutoff. Returns how many were removed.
func (h History) PruneOlderThan(cutoff time.Time) (int, error) {
	var stale [][]byte
	cutoffNanos := cutoff.UnixNano()

	err := h.db.View(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			nanos, ok := timestampSegment(string(key))
			if !ok {
				h.log.Warn("Malformed history key skipped", "key", string(key))
				continue
			}
			if nanos < cutoffNanos {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = h.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// timestampSegment extracts the padded nanosecond segment from a history key.
func timestampSegment(key string) (int64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return 0, false
	}
	nanos, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, false
	}
	return nanos, true
}
