package hardware

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/exalsius/node-agent/internal/fileutils"
	"golang.org/x/sys/unix"
)

// Lines are in the form `key`:   `bytes` (`unit`).
// For example: "MemTotal: 123 kB" or "MemTotal:   421".
var meminfoRegex = regexp.MustCompile(`^([^\s:]+):\s*([0-9]+)(?:\s+([^\s]+))?\s*$`)

// collectMemory reads the total memory from meminfo, in GiB.
func (c Collector) collectMemory() (uint64, error) {
	f, err := os.ReadFile(filepath.Join(c.root, "proc/meminfo"))
	if err != nil {
		return 0, fmt.Errorf("failed to read meminfo: %v", err)
	}

	for i, l := range strings.Split(string(f), "\n") {
		m := meminfoRegex.FindStringSubmatch(l)
		if m == nil || m[1] != "MemTotal" {
			continue
		}

		v, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("MemTotal on line %d is not an integer: %v", i, err)
		}
		b, err := fileutils.ConvertUnitToBytes(m[3], v)
		if err != nil {
			return 0, fmt.Errorf("MemTotal on line %d: %v", i, err)
		}

		return bytesToGiB(b), nil
	}

	return 0, errors.New("no MemTotal entry in meminfo")
}

// collectCPU counts the logical processors listed in cpuinfo.
func (c Collector) collectCPU() (uint64, error) {
	f, err := os.Open(filepath.Join(c.root, "proc/cpuinfo"))
	if err != nil {
		return 0, fmt.Errorf("failed to read cpuinfo: %v", err)
	}
	defer f.Close()

	var n uint64
	s := bufio.NewScanner(f)
	for s.Scan() {
		k, _, found := strings.Cut(s.Text(), ":")
		if found && strings.TrimSpace(k) == "processor" {
			n++
		}
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("failed to read cpuinfo: %v", err)
	}

	if n == 0 {
		return 0, errors.New("no processor entry in cpuinfo")
	}
	return n, nil
}

// collectStorage returns the capacity of the filesystem mounted on / in GB.
// A host without a root mount reports 0.
func (c Collector) collectStorage() (uint64, error) {
	f, err := os.Open(filepath.Join(c.root, "proc/self/mounts"))
	if err != nil {
		return 0, fmt.Errorf("failed to read mounts: %v", err)
	}
	defer f.Close()

	// Later entries shadow earlier ones mounted on the same point.
	var fsType string
	var found bool
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 3 || fields[1] != "/" {
			continue
		}
		fsType, found = fields[2], true
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("failed to read mounts: %v", err)
	}

	if !found {
		c.log.Warn("No filesystem mounted on /, reporting no storage")
		return 0, nil
	}

	var st unix.Statfs_t
	if err := c.statfs(c.root, &st); err != nil {
		return 0, fmt.Errorf("failed to stat root filesystem: %v", err)
	}

	gb := bytesToGB(st.Blocks * uint64(st.Bsize)) //nolint:gosec // Block size is never negative.
	c.log.Info("Root disk", "filesystem", fsType, "GB", gb)
	return gb, nil
}
