// Package credentials manages the node credential store, a KEY=VALUE file readable only by its owner.
//
// The store is only ever rewritten as a whole through an atomic replace, and rewrites are
// text-level: lines the agent does not manage survive verbatim.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/exalsius/node-agent/internal/fileutils"
	"github.com/joho/godotenv"
	"github.com/ubuntu/decorate"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Keys of the credential store.
const (
	KeyNodeID            = "NODE_ID"
	KeyAPIURL            = "API_URL"
	KeyAuthToken         = "AUTH_TOKEN"
	KeyAuth0ClientID     = "AUTH0_CLIENT_ID"
	KeyAuth0ClientDomain = "AUTH0_CLIENT_DOMAIN"
	KeyAccessToken       = "ACCESS_TOKEN"
)

const (
	filePerm = 0600
	dirPerm  = 0700
)

// Record is the content of the credential store.
type Record struct {
	NodeID    string
	APIURL    string
	AuthToken string

	Auth0ClientID     string
	Auth0ClientDomain string

	// AccessToken is the last rotated access token when AuthToken is a refresh token.
	AccessToken string
}

// RefreshMode reports whether AuthToken is a refresh token to exchange with the Auth0 client.
func (r Record) RefreshMode() bool {
	return r.Auth0ClientID != "" && r.Auth0ClientDomain != ""
}

// Overrides are externally supplied credential values. Empty fields are not supplied.
type Overrides struct {
	NodeID    string
	APIURL    string
	AuthToken string

	Auth0ClientID     string
	Auth0ClientDomain string
}

// entries returns the supplied overrides in store order.
func (o Overrides) entries() []entry {
	var es []entry
	for _, e := range []entry{
		{KeyNodeID, o.NodeID},
		{KeyAPIURL, o.APIURL},
		{KeyAuthToken, strings.TrimSpace(o.AuthToken)},
		{KeyAuth0ClientID, o.Auth0ClientID},
		{KeyAuth0ClientDomain, o.Auth0ClientDomain},
	} {
		if e.value != "" {
			es = append(es, e)
		}
	}
	return es
}

type entry struct {
	key   string
	value string
}

// Store is the credential store at a given path.
type Store struct {
	path      string
	log       *slog.Logger
	writeFile func(path string, data []byte, perm os.FileMode) error
}

type options struct {
	log       *slog.Logger
	writeFile func(path string, data []byte, perm os.FileMode) error
}

// Options represents an optional function to override Store default values.
type Options func(*options)

// New returns a Store for the file at path. The file is not accessed until the first load.
func New(path string, args ...Options) *Store {
	opts := options{
		log:       slog.Default(),
		writeFile: fileutils.AtomicWrite,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Store{
		path:      path,
		log:       opts.log,
		writeFile: opts.writeFile,
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithWriteFile overrides the function replacing the store content. It must not leave a
// partially written store behind when it fails.
func WithWriteFile(writeFile func(path string, data []byte, perm os.FileMode) error) Options {
	return func(o *options) {
		o.writeFile = writeFile
	}
}

// Path returns the path of the store.
func (s Store) Path() string {
	return s.path
}

// LoadOrCreate returns the stored credentials.
//
// When the store does not exist, it is created from the overrides, which must then supply the
// node id, API URL and auth token. When it exists, overrides differing from the stored values
// replace them in place.
func (s Store) LoadOrCreate(o Overrides) (r Record, err error) {
	defer decorate.OnError(&err, "could not load credentials")

	content, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		return s.create(o)
	}
	if err != nil {
		return Record{}, err
	}
	s.log.Debug("Loading credentials", "file", s.path)
	s.restrictPermissions()

	values, err := godotenv.Unmarshal(content)
	if err != nil {
		return Record{}, &IOError{Op: "parse", Path: s.path, Err: err}
	}

	var changed []entry
	for _, e := range o.entries() {
		if values[e.key] != e.value {
			changed = append(changed, e)
			values[e.key] = e.value
		}
	}

	r = recordFrom(values)
	if err := r.validate(); err != nil {
		return Record{}, err
	}

	if len(changed) > 0 {
		keys := make([]string, 0, len(changed))
		for _, e := range changed {
			keys = append(keys, e.key)
		}
		s.log.Info("Updating credential store with supplied values", "keys", keys)
		merged, err := s.merge(content, changed)
		if err != nil {
			return Record{}, err
		}
		if err := s.write(merged); err != nil {
			return Record{}, err
		}
	}

	return r, nil
}

// PersistToken replaces the stored auth token.
func (s Store) PersistToken(token string) error {
	return s.PersistValue(KeyAuthToken, token)
}

// PersistValue replaces the line holding key, or appends one, and rewrites the store.
func (s Store) PersistValue(key, value string) (err error) {
	defer decorate.OnError(&err, "could not persist %s", key)

	content, err := s.read()
	if err != nil {
		return err
	}

	merged, err := s.merge(content, []entry{{key, value}})
	if err != nil {
		return err
	}
	if err := s.write(merged); err != nil {
		return err
	}
	s.log.Info("Persisted credential", "key", key, "file", s.path)

	return nil
}

// create writes a new store holding the overrides.
func (s Store) create(o Overrides) (Record, error) {
	var errs []error
	for _, f := range []struct{ key, value string }{
		{KeyNodeID, o.NodeID},
		{KeyAPIURL, o.APIURL},
		{KeyAuthToken, strings.TrimSpace(o.AuthToken)},
	} {
		if f.value == "" {
			errs = append(errs, MissingFieldError{Field: f.key})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Record{}, err
	}

	values := make(map[string]string)
	var b strings.Builder
	for _, e := range o.entries() {
		values[e.key] = e.value
		b.WriteString(formatLine(e.key, e.value))
		b.WriteString("\n")
	}

	r := recordFrom(values)
	if err := r.validate(); err != nil {
		return Record{}, err
	}

	s.log.Info("Creating credential store", "file", s.path)
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return Record{}, &IOError{Op: "create directory for", Path: s.path, Err: err}
	}
	if err := s.write(b.String()); err != nil {
		return Record{}, err
	}

	return r, nil
}

// merge returns content with the entries applied. The merged content must read back as the
// previous values updated with the entries, otherwise nothing is returned.
func (s Store) merge(content string, entries []entry) (string, error) {
	want, err := godotenv.Unmarshal(content)
	if err != nil {
		return "", &IOError{Op: "parse", Path: s.path, Err: err}
	}
	for _, e := range entries {
		want[e.key] = e.value
	}

	merged := mergeLines(content, entries)
	got, err := godotenv.Unmarshal(merged)
	if err != nil {
		return "", &IOError{Op: "merge", Path: s.path, Err: err}
	}
	if !maps.Equal(want, got) {
		return "", &IOError{Op: "merge", Path: s.path, Err: errors.New("updated content does not read back the expected values")}
	}

	return merged, nil
}

// restrictPermissions makes an existing store accessible to its owner only.
func (s Store) restrictPermissions() {
	info, err := os.Stat(s.path)
	if err != nil {
		s.log.Warn("Could not check credential store permissions", "file", s.path, "error", err)
		return
	}
	if info.Mode().Perm()&0077 == 0 {
		return
	}

	s.log.Warn("Credential store is accessible to other users, restricting it to its owner", "file", s.path, "mode", info.Mode().Perm())
	if err := os.Chmod(s.path, filePerm); err != nil {
		s.log.Warn("Could not restrict credential store permissions", "file", s.path, "error", err)
	}
}

// read returns the store content as UTF-8, without any byte order mark.
func (s Store) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", &IOError{Op: "read", Path: s.path, Err: err}
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", &IOError{Op: "decode", Path: s.path, Err: err}
	}

	return string(decoded), nil
}

func (s Store) write(content string) error {
	if err := s.writeFile(s.path, []byte(content), filePerm); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func recordFrom(values map[string]string) Record {
	return Record{
		NodeID:            values[KeyNodeID],
		APIURL:            values[KeyAPIURL],
		AuthToken:         values[KeyAuthToken],
		Auth0ClientID:     values[KeyAuth0ClientID],
		Auth0ClientDomain: values[KeyAuth0ClientDomain],
		AccessToken:       values[KeyAccessToken],
	}
}

// validate checks the required fields are set, and that the Auth0 client is either fully configured or not at all.
func (r Record) validate() error {
	var errs []error
	for _, f := range []struct{ key, value string }{
		{KeyNodeID, r.NodeID},
		{KeyAPIURL, r.APIURL},
		{KeyAuthToken, r.AuthToken},
	} {
		if f.value == "" {
			errs = append(errs, EmptyFieldError{Field: f.key})
		}
	}

	switch {
	case r.Auth0ClientID != "" && r.Auth0ClientDomain == "":
		errs = append(errs, EmptyFieldError{Field: KeyAuth0ClientDomain})
	case r.Auth0ClientID == "" && r.Auth0ClientDomain != "":
		errs = append(errs, EmptyFieldError{Field: KeyAuth0ClientID})
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid credentials: %w", errors.Join(errs...))
	}
	return nil
}
