// Package pciref resolves raw PCI identifiers to vendor and device names and to VRAM capacities.
//
// The vendor and device names come from a pci.ids database. It is fetched from the network on
// first use, and only when that fails entirely is it read from an offline copy: the system hwdata
// files first, then the copy bundled in the binary.
package pciref

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/exalsius/node-agent/internal/constants"
)

//go:embed assets/pci.ids assets/gpu_vram.toml
var assets embed.FS

// Resolver looks up PCI devices in the reference database and the VRAM table.
// The database is loaded lazily, once, on the first resolution.
type Resolver struct {
	log  *slog.Logger
	vram VramTable

	client       *http.Client
	url          string
	networkFetch bool
	offlinePaths []string
	bundled      []byte

	once sync.Once
	db   *Database
}

type options struct {
	log          *slog.Logger
	client       *http.Client
	url          string
	networkFetch bool
	offlinePaths []string
	vram         string
	bundled      []byte
}

// Options represents an optional function to override Resolver default values.
type Options func(*options)

// source is one tier of the reference database lookup.
type source struct {
	name string
	load func(ctx context.Context) (*Database, error)
}

// New returns a new Resolver. It fails only if the VRAM table cannot be decoded.
func New(args ...Options) (*Resolver, error) {
	vram, err := assets.ReadFile("assets/gpu_vram.toml")
	if err != nil {
		return nil, fmt.Errorf("could not read bundled VRAM table: %v", err)
	}
	bundled, err := assets.ReadFile("assets/pci.ids")
	if err != nil {
		return nil, fmt.Errorf("could not read bundled PCI database: %v", err)
	}

	opts := options{
		log:          slog.Default(),
		client:       http.DefaultClient,
		url:          constants.DefaultPCIDatabaseURL,
		networkFetch: true,
		offlinePaths: []string{
			"/usr/share/hwdata/pci.ids",
			"/usr/share/misc/pci.ids",
			"/usr/share/pci.ids",
		},
		vram:    string(vram),
		bundled: bundled,
	}
	for _, opt := range args {
		opt(&opts)
	}

	t, err := ParseVramTable(opts.vram)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		log:          opts.log,
		vram:         t,
		client:       opts.client,
		url:          opts.url,
		networkFetch: opts.networkFetch,
		offlinePaths: opts.offlinePaths,
		bundled:      opts.bundled,
	}, nil
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithHTTPClient overrides the HTTP client used to fetch the online database.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.client = c
	}
}

// WithDatabaseURL overrides the URL the online database is fetched from.
func WithDatabaseURL(url string) Options {
	return func(o *options) {
		o.url = url
	}
}

// WithNetworkFetch enables or disables fetching the online database.
func WithNetworkFetch(enabled bool) Options {
	return func(o *options) {
		o.networkFetch = enabled
	}
}

// Resolve returns the reference for the given vendor and device identifiers.
// It returns false if the device is not in the reference database.
func (r *Resolver) Resolve(ctx context.Context, vendorID, deviceID uint16) (DeviceReference, bool) {
	return r.database(ctx).Lookup(vendorID, deviceID)
}

// VRAM returns the VRAM capacity in GB for the device identifier as read from sysfs, or 0 if unknown.
func (r *Resolver) VRAM(deviceID string) uint64 {
	return r.vram.Lookup(deviceID)
}

func (r *Resolver) database(ctx context.Context) *Database {
	r.once.Do(func() {
		r.db = r.load(ctx)
	})
	return r.db
}

// load walks the sources in order and returns the first database which loads.
// It never fails: with no usable source, the returned database is empty and every device is unknown.
func (r *Resolver) load(ctx context.Context) *Database {
	for _, s := range r.sources() {
		db, err := s.load(ctx)
		if err != nil {
			r.log.Warn("Failed loading PCI reference database", "source", s.name, "error", err)
			continue
		}
		r.log.Info("Loaded PCI reference database", "source", s.name, "vendors", db.Len())
		return db
	}

	r.log.Error("No PCI reference database available, GPUs cannot be identified")
	return &Database{}
}

func (r *Resolver) sources() []source {
	var sources []source
	if r.networkFetch {
		sources = append(sources, source{name: r.url, load: func(ctx context.Context) (*Database, error) {
			return fetchOnline(ctx, r.client, r.url)
		}})
	}
	for _, p := range r.offlinePaths {
		sources = append(sources, source{name: p, load: func(context.Context) (*Database, error) {
			return readOffline(p)
		}})
	}
	return append(sources, source{name: "bundled", load: func(context.Context) (*Database, error) {
		return Parse(bytes.NewReader(r.bundled))
	}})
}

// fetchOnline downloads and parses the database at url.
func fetchOnline(ctx context.Context, c *http.Client, url string) (*Database, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch online database: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return Parse(resp.Body)
}

// readOffline parses the database file at path.
func readOffline(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}
