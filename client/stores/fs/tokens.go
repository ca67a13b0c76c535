// Package fs provides a file system-based token store for authsession clients.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/panyam/authsession/client"
)

// FSTokenStore keeps one token pair per server in a JSON file. Every Save
// and Clear rewrites the file through a temp file and a rename, so a crash
// never leaves a half-written pair behind.
type FSTokenStore struct {
	mu      sync.RWMutex
	path    string
	server  string
	servers map[string]client.TokenPair
}

// tokenFile is the JSON structure stored on disk
type tokenFile struct {
	Servers map[string]client.TokenPair `json:"servers"`
}

// NewFSTokenStore creates a store for the session with serverURL.
// If path is empty, defaults to ~/.config/<appName>/tokens.json
func NewFSTokenStore(path, appName, serverURL string) (*FSTokenStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "authsession"
		}
		path = filepath.Join(configDir, appName, "tokens.json")
	}

	key, err := normalizeURL(serverURL)
	if err != nil {
		return nil, err
	}

	store := &FSTokenStore{
		path:    path,
		server:  key,
		servers: make(map[string]client.TokenPair),
	}

	// Load existing tokens if file exists
	if err := store.read(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return store, nil
}

// read loads the file from disk. Caller must hold s.mu or be the constructor
func (s *FSTokenStore) read() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file tokenFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse tokens file: %w", err)
	}

	s.servers = file.Servers
	if s.servers == nil {
		s.servers = make(map[string]client.TokenPair)
	}
	return nil
}

// normalizeURL reduces a server URL to scheme://host for use as a key
func normalizeURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}

	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

func (s *FSTokenStore) Load(ctx context.Context) (client.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers[s.server], nil
}

func (s *FSTokenStore) Save(ctx context.Context, pair client.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.servers[s.server]
	s.servers[s.server] = pair
	if err := s.flush(); err != nil {
		if had {
			s.servers[s.server] = prev
		} else {
			delete(s.servers, s.server)
		}
		return err
	}
	return nil
}

func (s *FSTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.servers[s.server]
	if !ok {
		return nil
	}
	delete(s.servers, s.server)
	if err := s.flush(); err != nil {
		s.servers[s.server] = prev
		return err
	}
	return nil
}

// Servers returns every server URL with stored tokens.
func (s *FSTokenStore) Servers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]string, 0, len(s.servers))
	for k := range s.servers {
		servers = append(servers, k)
	}
	return servers
}

// flush writes the file atomically. Caller must hold s.mu
func (s *FSTokenStore) flush() error {
	// Ensure directory exists with restricted permissions
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(tokenFile{Servers: s.servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize tokens: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write tokens: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict tokens file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write tokens: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace tokens file: %w", err)
	}
	return nil
}

// Path returns the path to the tokens file
func (s *FSTokenStore) Path() string {
	return s.path
}

var _ client.TokenStore = (*FSTokenStore)(nil)
