package hardware

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/exalsius/node-agent/internal/fileutils"
	"github.com/exalsius/node-agent/internal/pciref"
)

// displayClassPrefix is the PCI base class of display controllers.
const displayClassPrefix = "0x03"

// collectGPUs lists the supported GPUs in PCI address order.
// Display controllers from unsupported vendors or without a reference entry are skipped.
func (c Collector) collectGPUs(ctx context.Context) ([]GPU, error) {
	devices, err := c.listDisplayDevices()
	if err != nil {
		return nil, err
	}

	gpus := make([]GPU, 0, len(devices))
	for _, d := range devices {
		ref, ok := c.resolver.Resolve(ctx, d.VendorID, d.DeviceID)
		if !ok {
			c.log.Debug("Skipping display controller missing from the reference database", "slot", d.Slot, "vendor", fmt.Sprintf("%04x", d.VendorID), "device", fmt.Sprintf("%04x", d.DeviceID))
			continue
		}
		vendor, ok := pciref.VendorFromName(ref.VendorName)
		if !ok {
			c.log.Debug("Skipping display controller from unsupported vendor", "slot", d.Slot, "vendor", ref.VendorName)
			continue
		}

		gpus = append(gpus, GPU{
			Vendor: vendor,
			Model:  ref.DeviceName,
			VRAMGB: c.resolver.VRAM(d.RawDevice),
		})
	}

	return gpus, nil
}

// listDisplayDevices reads every PCI device of the display controller class.
func (c Collector) listDisplayDevices() ([]PCIDevice, error) {
	dir := filepath.Join(c.root, "sys/bus/pci/devices")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list PCI devices: %v", err)
	}

	var devices []PCIDevice
	for _, e := range entries {
		d, isDisplay, err := readPCIDevice(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrMalformedDevice, e.Name(), err)
		}
		if !isDisplay {
			continue
		}
		devices = append(devices, d)
	}

	return devices, nil
}

// readPCIDevice reads the identifiers of the device at path. The vendor and device
// identifiers are only read for display controllers.
func readPCIDevice(path string) (d PCIDevice, isDisplay bool, err error) {
	d.Slot = filepath.Base(path)

	d.Class, err = fileutils.ReadFileTrimmed(filepath.Join(path, "class"))
	if err != nil {
		return d, false, fmt.Errorf("could not read class: %v", err)
	}
	if !strings.HasPrefix(d.Class, displayClassPrefix) {
		return d, false, nil
	}

	vendor, err := fileutils.ReadFileTrimmed(filepath.Join(path, "vendor"))
	if err != nil {
		return d, true, fmt.Errorf("could not read vendor: %v", err)
	}
	if d.VendorID, err = parseHexID(vendor); err != nil {
		return d, true, fmt.Errorf("invalid vendor: %v", err)
	}

	d.RawDevice, err = fileutils.ReadFileTrimmed(filepath.Join(path, "device"))
	if err != nil {
		return d, true, fmt.Errorf("could not read device: %v", err)
	}
	if d.DeviceID, err = parseHexID(d.RawDevice); err != nil {
		return d, true, fmt.Errorf("invalid device: %v", err)
	}

	return d, true, nil
}

// parseHexID parses a sysfs identifier such as "0x10de".
func parseHexID(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%q is not a 16 bit hexadecimal identifier", s)
	}
	return uint16(v), nil
}
