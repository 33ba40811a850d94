package pciref

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// VramTable maps PCI device identifiers, as exposed by sysfs ("0x20b2"), to VRAM capacity in GB.
type VramTable map[string]uint64

// vramFile is the layout of the bundled VRAM reference asset.
type vramFile struct {
	AMD    map[string]uint64 `toml:"amd"`
	NVIDIA map[string]uint64 `toml:"nvidia"`
}

// ParseVramTable decodes a VRAM reference document and merges its vendor tables into a single table.
func ParseVramTable(data string) (VramTable, error) {
	var f vramFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("could not decode VRAM table: %v", err)
	}

	t := make(VramTable, len(f.AMD)+len(f.NVIDIA))
	for _, vendor := range []map[string]uint64{f.AMD, f.NVIDIA} {
		for id, gb := range vendor {
			t[normalizeDeviceID(id)] = gb
		}
	}

	return t, nil
}

// Lookup returns the VRAM capacity in GB for the device, or 0 if the device is unknown.
func (t VramTable) Lookup(deviceID string) uint64 {
	return t[normalizeDeviceID(deviceID)]
}

func normalizeDeviceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
