// SPDX-License-Identifier: MIT
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	applog "ephys/internal/log"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultFileMode is the file mode for the session database.
	DefaultFileMode = 0600

	// DefaultTimeout bounds how long Open waits for the file lock.
	DefaultTimeout = 1 * time.Second
)

var sessionBucket = []byte("sessions")

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Session is one recording session as stored in the index.
type Session struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	Processor string    `json:"processor"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Buffers   uint64    `json:"buffers"`
}

// Active reports whether the session has not been ended.
func (s Session) Active() bool {
	return s.StoppedAt.IsZero()
}

// Store is a BoltDB-backed index of recording sessions.
type Store struct {
	db   *bolt.DB
	path string
	now  func() time.Time
}

// Open opens or creates the session database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for session database: %w", err)
	}

	db, err := bolt.Open(path, DefaultFileMode, &bolt.Options{Timeout: DefaultTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session database: %w", err)
	}

	applog.Infof("Session: index opened at %s", path)
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	applog.Debugf("Session: closing index %s", s.path)
	err := s.db.Close()
	s.db = nil
	return err
}

// Begin stores a new active session and returns its id.
func (s *Store) Begin(dir, processorName string) (string, error) {
	sess := Session{
		ID:        uuid.NewString(),
		Dir:       dir,
		Processor: processorName,
		StartedAt: s.now().UTC(),
	}
	if err := s.put(sess); err != nil {
		return "", err
	}
	applog.Infof("Session: %s started (%s, %s)", sess.ID, processorName, dir)
	return sess.ID, nil
}

// End marks the session stopped and records how many buffers it covered.
func (s *Store) End(id string, buffers uint64) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.StoppedAt = s.now().UTC()
	sess.Buffers = buffers
	if err := s.put(sess); err != nil {
		return err
	}
	applog.Infof("Session: %s stopped after %d buffers", id, buffers)
	return nil
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (Session, error) {
	var sess Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &sess)
	})
	return sess, err
}

// List returns every session, oldest first.
func (s *Store) List() ([]Session, error) {
	var sessions []Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).ForEach(func(_, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			sessions = append(sessions, sess)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (s *Store) put(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(sess.ID), data)
	})
}
