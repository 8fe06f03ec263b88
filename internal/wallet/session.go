package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyInitData = "initdata"
	keyAddress  = "address"
)

// ErrNoSession is returned when nothing is stored for a profile.
var ErrNoSession = errors.New("wallet: no stored session")

// Session is what the client needs to talk to the backend on behalf of a
// player: the Telegram init data and the last connected wallet address.
type Session struct {
	InitData string `json:"initData"`
	Address  string `json:"address"`
}

// UserID returns the Telegram user id carried in the init data's user field.
func (s Session) UserID() (int64, error) {
	values, err := url.ParseQuery(s.InitData)
	if err != nil {
		return 0, fmt.Errorf("wallet: parse init data: %w", err)
	}
	raw := values.Get("user")
	if raw == "" {
		return 0, errors.New("wallet: init data has no user")
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return 0, fmt.Errorf("wallet: decode init data user: %w", err)
	}
	return user.ID, nil
}

// SessionStore keeps sessions in the OS keychain, with a JSON file fallback
// for environments where no system keyring is available.
type SessionStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewSessionStore creates a keyring-backed session store.
func NewSessionStore(serviceName, fallbackPath string) *SessionStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "flappy-ton"
	}
	return &SessionStore{
		service:      serviceName,
		fallbackPath: fallbackPath,
	}
}

// Save stores both parts of the session. Empty parts are skipped.
func (s *SessionStore) Save(profile string, sess Session) error {
	if sess.InitData != "" {
		if err := s.set(profile, keyInitData, sess.InitData); err != nil {
			return err
		}
	}
	if sess.Address != "" {
		if err := s.set(profile, keyAddress, sess.Address); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the stored session, or ErrNoSession when neither part exists.
func (s *SessionStore) Load(profile string) (Session, error) {
	var sess Session
	var err error
	if sess.InitData, err = s.get(profile, keyInitData); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return Session{}, err
	}
	if sess.Address, err = s.get(profile, keyAddress); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return Session{}, err
	}
	if sess.InitData == "" && sess.Address == "" {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Clear removes the session from the keyring and the fallback file.
func (s *SessionStore) Clear(profile string) error {
	var firstErr error
	for _, part := range []string{keyInitData, keyAddress} {
		if err := keyring.Delete(s.service, s.key(profile, part)); err != nil &&
			!errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) && firstErr == nil {
			firstErr = err
		}
	}
	ferr := s.deleteFallback(profile)
	if firstErr != nil {
		return fmt.Errorf("wallet: keyring delete: %w", firstErr)
	}
	return ferr
}

func (s *SessionStore) key(profile, part string) string {
	return profile + "/" + part
}

func (s *SessionStore) set(profile, part, value string) error {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return fmt.Errorf("wallet: profile is required")
	}

	err := keyring.Set(s.service, s.key(profile, part), value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("wallet: keyring set %s: %w", part, err)
	}
	return s.setFallback(profile, part, value)
}

func (s *SessionStore) get(profile, part string) (string, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", fmt.Errorf("wallet: profile is required")
	}

	val, err := keyring.Get(s.service, s.key(profile, part))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("wallet: keyring get %s: %w", part, err)
	}

	fallback, ferr := s.getFallback(profile, part)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", keyring.ErrNotFound
	}
	return "", ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackFile map[string]map[string]string

func (s *SessionStore) setFallback(profile, part, value string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fmt.Errorf("wallet: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallback()
	if err != nil {
		return err
	}
	if data[profile] == nil {
		data[profile] = map[string]string{}
	}
	data[profile][part] = value
	return s.writeFallback(data)
}

func (s *SessionStore) getFallback(profile, part string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", keyring.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallback()
	if err != nil {
		return "", err
	}
	val, ok := data[profile][part]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (s *SessionStore) deleteFallback(profile string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallback()
	if err != nil {
		return err
	}
	if _, ok := data[profile]; !ok {
		return nil
	}
	delete(data, profile)
	return s.writeFallback(data)
}

func (s *SessionStore) readFallback() (fallbackFile, error) {
	out := fallbackFile{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("wallet: read fallback sessions: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("wallet: decode fallback sessions: %w", err)
	}
	return out, nil
}

func (s *SessionStore) writeFallback(data fallbackFile) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("wallet: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("wallet: encode fallback sessions: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("wallet: write fallback sessions: %w", err)
	}
	return nil
}
