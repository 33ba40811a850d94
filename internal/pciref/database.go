package pciref

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrEmptyDatabase is returned when a reference database source contains no vendor.
var ErrEmptyDatabase = errors.New("PCI reference database contains no vendor")

// DeviceReference is the human readable identity of a PCI device.
type DeviceReference struct {
	VendorName string
	DeviceName string
}

type vendorEntry struct {
	name    string
	devices map[uint16]string
}

// Database is a parsed pci.ids vendor and device list.
type Database struct {
	vendors map[uint16]*vendorEntry
}

// Lookup returns the reference for the given vendor and device identifiers.
// It returns false if either the vendor or the device is unknown.
func (db *Database) Lookup(vendorID, deviceID uint16) (DeviceReference, bool) {
	if db == nil {
		return DeviceReference{}, false
	}

	v, ok := db.vendors[vendorID]
	if !ok {
		return DeviceReference{}, false
	}
	d, ok := v.devices[deviceID]
	if !ok {
		return DeviceReference{}, false
	}

	return DeviceReference{VendorName: v.name, DeviceName: d}, true
}

// Len returns the number of vendors in the database.
func (db *Database) Len() int {
	if db == nil {
		return 0
	}
	return len(db.vendors)
}

// Parse reads a database in the pci.ids format.
//
// Vendor lines are "vvvv  name", device lines are "\tdddd  name".
// Subsystem lines are skipped and parsing stops at the device class section.
func Parse(r io.Reader) (*Database, error) {
	db := &Database{vendors: make(map[uint16]*vendorEntry)}

	var current *vendorEntry
	s := bufio.NewScanner(r)
	for n := 1; s.Scan(); n++ {
		line := strings.TrimRight(s.Text(), "\r")

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// The class list follows every vendor.
		if strings.HasPrefix(line, "C ") {
			break
		}
		if strings.HasPrefix(line, "\t\t") {
			continue
		}

		if strings.HasPrefix(line, "\t") {
			if current == nil {
				return nil, fmt.Errorf("line %d: device entry without vendor", n)
			}
			id, name, err := parseEntry(strings.TrimPrefix(line, "\t"))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid device entry: %v", n, err)
			}
			current.devices[id] = name
			continue
		}

		id, name, err := parseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid vendor entry: %v", n, err)
		}
		current = &vendorEntry{name: name, devices: make(map[uint16]string)}
		db.vendors[id] = current
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("could not read PCI reference database: %v", err)
	}

	if len(db.vendors) == 0 {
		return nil, ErrEmptyDatabase
	}

	return db, nil
}

// parseEntry splits "hhhh  name" into its identifier and name.
func parseEntry(entry string) (uint16, string, error) {
	id, name, found := strings.Cut(entry, "  ")
	if !found || len(id) != 4 {
		return 0, "", fmt.Errorf("%q is not in the form \"hhhh  name\"", entry)
	}

	v, err := strconv.ParseUint(id, 16, 16)
	if err != nil {
		return 0, "", fmt.Errorf("%q is not a 16 bit hexadecimal identifier", id)
	}

	return uint16(v), strings.TrimSpace(name), nil
}
