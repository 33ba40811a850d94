// Package hardware collects the hardware inventory a node reports to the fleet API.
//
// Every file is read relative to a configurable root, so a whole host can be replayed from a
// directory tree.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/exalsius/node-agent/internal/pciref"
	"golang.org/x/sys/unix"
)

// UnknownModel is the GPU model reported when no supported GPU was found.
const UnknownModel = "UNKNOWN"

// ErrMalformedDevice is returned when a display controller exposes an unreadable or non hexadecimal identifier.
var ErrMalformedDevice = errors.New("malformed PCI device")

// CollectError is returned when a mandatory part of the inventory cannot be read.
type CollectError struct {
	Op  string
	Err error
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("failed to collect %s information: %v", e.Op, e.Err)
}

func (e *CollectError) Unwrap() error {
	return e.Err
}

// Inventory is a hardware snapshot of the node, built fresh on every collection.
//
// With several GPUs, GPUCount counts all of them but the vendor, model and VRAM describe only
// the first one found in PCI address order.
type Inventory struct {
	GPUCount  uint8         `json:"gpu_count" yaml:"gpu_count"`
	GPUVendor pciref.Vendor `json:"gpu_vendor" yaml:"gpu_vendor"`
	GPUModel  string        `json:"gpu_type" yaml:"gpu_type"`
	GPUVRAMGB uint64        `json:"gpu_memory" yaml:"gpu_memory"`
	CPUCores  uint64        `json:"cpu_cores" yaml:"cpu_cores"`
	MemoryGiB uint64        `json:"memory_gb" yaml:"memory_gb"`
	StorageGB uint64        `json:"storage_gb" yaml:"storage_gb"`
}

// PCIDevice is a display controller as exposed by sysfs.
type PCIDevice struct {
	Slot     string
	Class    string
	VendorID uint16
	DeviceID uint16
	// RawDevice is the device file content, which keys the VRAM table.
	RawDevice string
}

// GPU is a display controller with a supported vendor and a known model.
type GPU struct {
	Vendor pciref.Vendor
	Model  string
	VRAMGB uint64
}

// Resolver identifies PCI devices.
type Resolver interface {
	Resolve(ctx context.Context, vendorID, deviceID uint16) (pciref.DeviceReference, bool)
	VRAM(deviceID string) uint64
}

// Collector reads the hardware inventory of the host.
type Collector struct {
	log      *slog.Logger
	root     string
	resolver Resolver

	statfs func(path string, st *unix.Statfs_t) error
	uname  func(u *unix.Utsname) error
}

type options struct {
	log    *slog.Logger
	root   string
	statfs func(path string, st *unix.Statfs_t) error
	uname  func(u *unix.Utsname) error
}

// Options represents an optional function to override Collector default values.
type Options func(*options)

// New returns a new Collector identifying GPUs with r.
func New(r Resolver, args ...Options) Collector {
	opts := options{
		log:    slog.Default(),
		root:   "/",
		statfs: unix.Statfs,
		uname:  unix.Uname,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Collector{
		log:      opts.log,
		root:     opts.root,
		resolver: r,
		statfs:   opts.statfs,
		uname:    opts.uname,
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithRoot overrides the default root directory of the system.
func WithRoot(root string) Options {
	return func(o *options) {
		o.root = root
	}
}

// Collect builds the hardware inventory. Memory, CPU and PCI information are mandatory:
// failing to read any of them is a *CollectError.
func (c Collector) Collect(ctx context.Context) (Inventory, error) {
	c.log.Info("Collecting hardware information")

	inv := Inventory{
		GPUVendor: pciref.VendorUnknown,
		GPUModel:  UnknownModel,
	}

	var err error
	if inv.MemoryGiB, err = c.collectMemory(); err != nil {
		return Inventory{}, &CollectError{Op: "memory", Err: err}
	}
	c.log.Info("Total memory", "GiB", inv.MemoryGiB)

	if inv.CPUCores, err = c.collectCPU(); err != nil {
		return Inventory{}, &CollectError{Op: "CPU", Err: err}
	}
	c.log.Info("Total number of CPU cores", "cores", inv.CPUCores)

	if inv.StorageGB, err = c.collectStorage(); err != nil {
		return Inventory{}, &CollectError{Op: "storage", Err: err}
	}

	gpus, err := c.collectGPUs(ctx)
	if err != nil {
		return Inventory{}, &CollectError{Op: "GPU", Err: err}
	}
	for i, g := range gpus {
		c.log.Info("GPU found", "index", i, "vendor", g.Vendor, "model", g.Model, "vram_gb", g.VRAMGB)
	}

	if len(gpus) > 0 {
		inv.GPUCount = uint8(min(len(gpus), math.MaxUint8))
		inv.GPUVendor = gpus[0].Vendor
		inv.GPUModel = gpus[0].Model
		inv.GPUVRAMGB = gpus[0].VRAMGB
	}

	c.log.Info("Finished collecting hardware information")
	return inv, nil
}

func bytesToGiB(b uint64) uint64 {
	return b / (1 << 30)
}

func bytesToGB(b uint64) uint64 {
	return b / 1_000_000_000
}
