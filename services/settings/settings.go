package settings

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/r74tech/raven-front/db/kvdb"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
)

// Store persists per-session search settings and the last discovered index list.
type Store struct {
	logger   logger.Logger
	db       kvdb.DB
	defaults search.Settings
}

func New(logger logger.Logger, db kvdb.DB, defaults search.Settings) *Store {
	return &Store{
		logger:   logger,
		db:       db,
		defaults: defaults.Normalize(),
	}
}

func (s *Store) Defaults() search.Settings {
	return s.defaults
}

// Load returns the saved settings of a session, or the defaults when nothing was saved.
// A saved blank credential or index falls back to the default one.
func (s *Store) Load(sessionID string) (search.Settings, error) {
	if sessionID == "" {
		return s.defaults, nil
	}

	value, err := s.db.Get(kvdb.SettingsBucket, sessionID)
	if errors.Is(err, kvdb.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		s.logger.Error("could not load settings", "session", sessionID, "err", err.Error())
		return s.defaults, fmt.Errorf("could not load settings: %w", err)
	}

	var loaded search.Settings
	if err := json.Unmarshal([]byte(value), &loaded); err != nil {
		s.logger.Warn("discarding unreadable settings", "session", sessionID, "err", err.Error())
		return s.defaults, nil
	}

	loaded = loaded.Normalize()
	if loaded.APIKey == "" {
		loaded.APIKey = s.defaults.APIKey
	}
	if loaded.IndexName == "" {
		loaded.IndexName = s.defaults.IndexName
	}
	return loaded, nil
}

func (s *Store) Save(sessionID string, settings search.Settings) (search.Settings, error) {
	settings = settings.Normalize()
	value, err := json.Marshal(settings)
	if err != nil {
		return search.Settings{}, err
	}

	if err := s.db.Set(kvdb.SettingsBucket, sessionID, string(value)); err != nil {
		s.logger.Error("could not save settings", "session", sessionID, "err", err.Error())
		return search.Settings{}, fmt.Errorf("could not save settings: %w", err)
	}

	s.logger.Info("saved settings", "session", sessionID, "index", settings.IndexName)
	return settings, nil
}

// Reset forgets the saved settings and the discovered index list of a session.
func (s *Store) Reset(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	for _, bucket := range []string{kvdb.SettingsBucket, kvdb.IndexesBucket} {
		if err := s.db.Delete(bucket, sessionID); err != nil {
			s.logger.Error("could not reset settings", "session", sessionID, "bucket", bucket, "err", err.Error())
			return fmt.Errorf("could not reset settings: %w", err)
		}
	}

	s.logger.Info("reset settings", "session", sessionID)
	return nil
}

func (s *Store) SaveIndexes(sessionID string, indexes []string) error {
	value, err := json.Marshal(indexes)
	if err != nil {
		return err
	}
	if err := s.db.Set(kvdb.IndexesBucket, sessionID, string(value)); err != nil {
		s.logger.Error("could not cache discovered indexes", "session", sessionID, "err", err.Error())
		return fmt.Errorf("could not cache discovered indexes: %w", err)
	}
	return nil
}

// LoadIndexes returns the last successfully discovered index list, or an empty list.
func (s *Store) LoadIndexes(sessionID string) ([]string, error) {
	if sessionID == "" {
		return []string{}, nil
	}

	value, err := s.db.Get(kvdb.IndexesBucket, sessionID)
	if errors.Is(err, kvdb.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load discovered indexes: %w", err)
	}

	indexes := []string{}
	if err := json.Unmarshal([]byte(value), &indexes); err != nil {
		s.logger.Warn("discarding unreadable index cache", "session", sessionID, "err", err.Error())
		return []string{}, nil
	}
	return indexes, nil
}
