package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/ini.v1"
)

// SetupStanza is the sfx.conf stanza holding forwarder settings.
const SetupStanza = "setupentity"

// Stanza is one merged conf stanza.
type Stanza map[string]string

// Get returns the value for key or an empty string.
func (s Stanza) Get(key string) string {
	return s[key]
}

// Store reads and writes one Splunk app conf file.
// Params: app directory holding default/ and local/; conf file base name.
// Returns: store where local values override default values.
type Store struct {
	appDir string
	name   string
}

// NewStore creates a conf store for <appDir>/{default,local}/<name>.conf.
// Params: appDir app root; name conf base name (e.g. "sfx").
// Returns: store.
func NewStore(appDir, name string) *Store {
	return &Store{appDir: appDir, name: name}
}

// DefaultPath returns the shipped conf path.
func (s *Store) DefaultPath() string {
	return filepath.Join(s.appDir, "default", s.name+".conf")
}

// LocalPath returns the user-editable conf path.
func (s *Store) LocalPath() string {
	return filepath.Join(s.appDir, "local", s.name+".conf")
}

// Stanza reads one stanza merged from default then local file.
// Params: stanza section name.
// Returns: merged key/value map (empty when no file defines it) or parse error.
func (s *Store) Stanza(stanza string) (Stanza, error) {
	file, err := s.load(s.DefaultPath(), s.LocalPath())
	if err != nil {
		return nil, err
	}

	section, err := file.GetSection(stanza)
	if err != nil {
		return Stanza{}, nil
	}
	return Stanza(section.KeysHash()), nil
}

// Write stores values into stanza of the local file, keeping other keys and stanzas.
// Params: stanza section name; values keys to set.
// Returns: error when the local file cannot be read or written.
func (s *Store) Write(stanza string, values map[string]string) error {
	localPath := s.LocalPath()
	file, err := s.load(localPath)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	section := file.Section(stanza)
	for _, key := range keys {
		section.Key(key).SetValue(values[key])
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create conf dir %q: %w", filepath.Dir(localPath), err)
	}
	if err := file.SaveTo(localPath); err != nil {
		return fmt.Errorf("write conf %q: %w", localPath, err)
	}
	return nil
}

// load parses the given conf files in order; missing files are skipped.
func (s *Store) load(paths ...string) (*ini.File, error) {
	sources := make([]any, 0, len(paths))
	for _, path := range paths {
		sources = append(sources, path)
	}

	file, err := ini.LoadSources(ini.LoadOptions{
		Loose:               true,
		AllowBooleanKeys:    true,
		IgnoreInlineComment: true,
	}, sources[0], sources[1:]...)
	if err != nil {
		return nil, fmt.Errorf("parse %s.conf: %w", s.name, err)
	}
	return file, nil
}
