package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Callback receives the key that changed and its new JSON value.
// A nil value means the key was removed.
type Callback func(key string, value json.RawMessage)

type subscription struct {
	key        string
	collection bool
	cb         Callback
}

func (sub subscription) matches(key string) bool {
	if sub.collection {
		return strings.HasPrefix(key, sub.key)
	}
	return sub.key == key
}

// IsCollectionKey reports whether key addresses a collection prefix
// such as "report_".
func IsCollectionKey(key string) bool {
	return key == "" || strings.HasSuffix(key, "_")
}

// Set stores value under key as JSON and notifies subscribers.
func (s *Store) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	s.writeMu.Lock()
	err = s.write(key, data)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	s.notify(key, data)
	return nil
}

// Merge shallow-merges a JSON object into the object stored under key.
// Non-object existing values are replaced.
func (s *Store) Merge(key string, value any) error {
	patch, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	var patchObj map[string]json.RawMessage
	if err := json.Unmarshal(patch, &patchObj); err != nil {
		return s.Set(key, value)
	}

	data, err := s.mergeLocked(key, patchObj)
	if err != nil {
		return err
	}
	s.notify(key, data)
	return nil
}

func (s *Store) mergeLocked(key string, patchObj map[string]json.RawMessage) (json.RawMessage, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.GetRaw(key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	merged := map[string]json.RawMessage{}
	if existing != nil {
		if err := json.Unmarshal(existing, &merged); err != nil {
			merged = map[string]json.RawMessage{}
		}
	}
	for k, v := range patchObj {
		if string(v) == "null" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal merged %s: %w", key, err)
	}
	if err := s.write(key, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Get decodes the value stored under key into dst.
// It reports false when the key has no value.
func (s *Store) Get(key string, dst any) (bool, error) {
	raw, err := s.GetRaw(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// GetRaw returns the JSON stored under key.
func (s *Store) GetRaw(key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

// Remove deletes key and notifies subscribers with a nil value.
func (s *Store) Remove(key string) error {
	s.writeMu.Lock()
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.notify(key, nil)
	return nil
}

// Collection returns every key beginning with prefix.
func (s *Store) Collection(prefix string) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(`
		SELECT key, value FROM kv
		WHERE substr(key, 1, ?) = ?
	`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", prefix, err)
	}
	defer rows.Close()

	result := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		result[key] = json.RawMessage(value)
	}
	return result, rows.Err()
}

// Clear removes every key. Subscribers are notified per removed key.
func (s *Store) Clear() error {
	all, err := s.Collection("")
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	_, err = s.db.Exec(`DELETE FROM kv`)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.notify(k, nil)
	}
	return nil
}

// Connect subscribes cb to key. Keys ending in "_" subscribe to every key in
// that collection; the empty key subscribes to everything. The current value (or every collection member) is
// delivered synchronously before Connect returns.
func (s *Store) Connect(key string, cb Callback) int {
	sub := subscription{key: key, collection: IsCollectionKey(key), cb: cb}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	s.mu.Unlock()

	if sub.collection {
		members, err := s.Collection(key)
		if err != nil {
			return id
		}
		keys := make([]string, 0, len(members))
		for k := range members {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cb(k, members[k])
		}
		return id
	}

	if raw, err := s.GetRaw(key); err == nil {
		cb(key, raw)
	}
	return id
}

// Disconnect removes a subscription created by Connect.
func (s *Store) Disconnect(id int) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func (s *Store) write(key string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// notify runs matching callbacks outside the lock so they may call back
// into the store.
func (s *Store) notify(key string, data []byte) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id, sub := range s.subs {
		if sub.matches(key) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	cbs := make([]Callback, 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, s.subs[id].cb)
	}
	s.mu.RUnlock()

	var raw json.RawMessage
	if data != nil {
		raw = json.RawMessage(data)
	}
	for _, cb := range cbs {
		cb(key, raw)
	}
}
