package hardware_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/exalsius/node-agent/internal/hardware"
	"github.com/exalsius/node-agent/internal/pciref"
	"github.com/exalsius/node-agent/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// pciDevice describes a sysfs PCI device directory. Empty fields are not created.
type pciDevice struct {
	slot   string
	class  string
	vendor string
	device string
}

var (
	hostBridge = pciDevice{slot: "0000:00:00.0", class: "0x060000", vendor: "0x1022", device: "0x1480"}
	isaBridge  = pciDevice{slot: "0000:00:14.3", class: "0x060100", vendor: "0x1022", device: "0x790e"}
	aspeedBMC  = pciDevice{slot: "0000:02:00.0", class: "0x030000", vendor: "0x1a03", device: "0x2000"}
	a100       = pciDevice{slot: "0000:17:00.0", class: "0x030200", vendor: "0x10de", device: "0x20b2"}
	h100       = pciDevice{slot: "0000:65:00.0", class: "0x030200", vendor: "0x10de", device: "0x2330"}
	connectX   = pciDevice{slot: "0000:c1:00.0", class: "0x020000", vendor: "0x15b3", device: "0x101b"}
)

type fakeResolver struct{}

var fakeReferences = map[[2]uint16]pciref.DeviceReference{
	{0x10de, 0x20b2}: {VendorName: "NVIDIA Corporation", DeviceName: "A100"},
	{0x10de, 0x2330}: {VendorName: "NVIDIA Corporation", DeviceName: "GH100 [H100 SXM5 80GB]"},
	{0x1002, 0x74a1}: {VendorName: "Advanced Micro Devices, Inc. [AMD/ATI]", DeviceName: "Aqua Vanjaram [Instinct MI300X]"},
	{0x8086, 0x0bd5}: {VendorName: "Intel Corporation", DeviceName: "Ponte Vecchio XT (2 Tile) [Data Center GPU Max 1550]"},
	{0x1a03, 0x2000}: {VendorName: "ASPEED Technology, Inc.", DeviceName: "ASPEED Graphics Family"},
	{0x102b, 0x0536}: {VendorName: "Matrox Electronics Systems Ltd.", DeviceName: "Integrated Matrox G200eW3 Graphics Controller"},
	{0x1234, 0x1111}: {VendorName: "Technical Corp.", DeviceName: "QEMU Virtual Video Controller"},
}

var fakeVram = map[string]uint64{"0x20b2": 80, "0x2330": 80, "0x74a1": 192}

func (fakeResolver) Resolve(_ context.Context, vendorID, deviceID uint16) (pciref.DeviceReference, bool) {
	ref, ok := fakeReferences[[2]uint16{vendorID, deviceID}]
	return ref, ok
}

func (fakeResolver) VRAM(deviceID string) uint64 {
	return fakeVram[deviceID]
}

// fakeStatfs reports a 2TB filesystem.
func fakeStatfs(_ string, st *unix.Statfs_t) error {
	st.Blocks = 488378646
	st.Bsize = 4096
	return nil
}

func TestCollect(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		root    string
		devices []pciDevice
		noPCI   bool
		files   map[string]string
		missing []string
		statfs  func(string, *unix.Statfs_t) error

		logs    map[slog.Level]uint
		wantErr bool
	}{
		"Regular hardware information": {
			devices: []pciDevice{hostBridge, isaBridge, aspeedBMC, a100, h100, connectX},
		},
		"No display controller reports no GPU": {
			devices: []pciDevice{hostBridge, isaBridge, connectX},
		},
		"No PCI device reports no GPU": {},
		"Single NVIDIA GPU": {
			devices: []pciDevice{hostBridge, a100},
		},
		"Unknown and unsupported display controllers are skipped": {
			devices: []pciDevice{
				hostBridge,
				{slot: "0000:03:00.0", class: "0x030000", vendor: "0x102b", device: "0x0536"},
				{slot: "0000:17:00.0", class: "0x030200", vendor: "0x10de", device: "0xffff"},
				{slot: "0000:c1:00.0", class: "0x038000", vendor: "0x1002", device: "0x74a1"},
				{slot: "0000:c2:00.0", class: "0x030000", vendor: "0x1234", device: "0x1111"},
			},
		},
		"GPU missing from the VRAM table reports no memory": {
			devices: []pciDevice{{slot: "0000:29:00.0", class: "0x038000", vendor: "0x8086", device: "0x0bd5"}},
		},
		"Identifiers of non display devices are not read": {
			devices: []pciDevice{
				{slot: "0000:00:01.0", class: "0x060400", vendor: "garbage", device: "garbage"},
				{slot: "0000:00:01.1", class: "0x060400"},
				a100,
			},
		},
		"No root mount reports no storage": {
			devices: []pciDevice{a100},
			files:   map[string]string{"proc/self/mounts": "proc /proc proc rw 0 0\n/dev/sda1 /data ext4 rw 0 0\n"},

			logs: map[slog.Level]uint{slog.LevelWarn: 1},
		},

		"Error on unreadable vendor": {
			devices: []pciDevice{{slot: "0000:17:00.0", class: "0x030200", vendor: "0xzzzz", device: "0x20b2"}},
			wantErr: true,
		},
		"Error on empty device": {
			devices: []pciDevice{{slot: "0000:17:00.0", class: "0x030200", vendor: "0x10de", device: " "}},
			wantErr: true,
		},
		"Error on device identifier wider than 16 bits": {
			devices: []pciDevice{{slot: "0000:17:00.0", class: "0x030200", vendor: "0x10de", device: "0x120b2"}},
			wantErr: true,
		},
		"Error on missing vendor": {
			devices: []pciDevice{{slot: "0000:17:00.0", class: "0x030200", device: "0x20b2"}},
			wantErr: true,
		},
		"Error on missing class": {
			devices: []pciDevice{{slot: "0000:17:00.0", vendor: "0x10de", device: "0x20b2"}},
			wantErr: true,
		},
		"Error on missing PCI devices directory": {
			noPCI:   true,
			wantErr: true,
		},
		"Error on missing meminfo": {
			missing: []string{"proc/meminfo"},
			wantErr: true,
		},
		"Error on meminfo without total": {
			files:   map[string]string{"proc/meminfo": "MemFree: 1234 kB\n"},
			wantErr: true,
		},
		"Error on meminfo with unknown unit": {
			files:   map[string]string{"proc/meminfo": "MemTotal: 1234 parsecs\n"},
			wantErr: true,
		},
		"Error on missing cpuinfo": {
			missing: []string{"proc/cpuinfo"},
			wantErr: true,
		},
		"Error on cpuinfo without processor": {
			files:   map[string]string{"proc/cpuinfo": "vendor_id\t: AuthenticAMD\n"},
			wantErr: true,
		},
		"Error on missing mounts": {
			missing: []string{"proc/self/mounts"},
			wantErr: true,
		},
		"Error on root filesystem stat failure": {
			statfs:  func(string, *unix.Statfs_t) error { return unix.EIO },
			wantErr: true,
		},
		"Error on empty root": {
			root:    "empty",
			wantErr: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.root == "" {
				tc.root = "regular"
			}
			root := setupRoot(t, tc.root, tc.files, tc.missing)
			if !tc.noPCI && tc.root != "empty" {
				writePCIDevices(t, root, tc.devices)
			}
			if tc.statfs == nil {
				tc.statfs = fakeStatfs
			}

			l := testutils.NewMockHandler(slog.LevelInfo)
			c := hardware.New(fakeResolver{},
				hardware.WithRoot(root),
				hardware.WithLogger(&l),
				hardware.WithStatfs(tc.statfs),
			)

			got, err := c.Collect(context.Background())
			if tc.wantErr {
				require.Error(t, err, "Collect should return an error and didn't")
				var cErr *hardware.CollectError
				require.ErrorAs(t, err, &cErr, "Collect errors should be CollectError")
				assert.Equal(t, hardware.Inventory{}, got, "Collect should return an empty inventory on error")
				return
			}
			require.NoError(t, err, "Collect should not return an error")

			want := testutils.LoadWithUpdateFromGoldenYAML(t, got)
			assert.Equal(t, want, got, "Collect should return expected hardware information")

			if !l.AssertLevels(t, tc.logs) {
				l.OutputLogs(t)
			}
		})
	}
}

func TestCollectMalformedDevice(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		device pciDevice
	}{
		"Vendor is not hexadecimal": {device: pciDevice{slot: "0000:17:00.0", class: "0x030200", vendor: "0xzzzz", device: "0x20b2"}},
		"Device is not hexadecimal": {device: pciDevice{slot: "0000:17:00.0", class: "0x030200", vendor: "0x10de", device: "NVIDIA"}},
		"Device is missing":         {device: pciDevice{slot: "0000:17:00.0", class: "0x030200", vendor: "0x10de"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := setupRoot(t, "regular", nil, nil)
			writePCIDevices(t, root, []pciDevice{tc.device})

			c := hardware.New(fakeResolver{}, hardware.WithRoot(root), hardware.WithStatfs(fakeStatfs))
			_, err := c.Collect(context.Background())
			require.ErrorIs(t, err, hardware.ErrMalformedDevice, "Collect should report a malformed device")
			assert.Contains(t, err.Error(), tc.device.slot, "Collect error should name the device")
		})
	}
}

func TestCollectUnits(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		meminfo string
		blocks  uint64
		bsize   int64

		wantMemoryGiB uint64
		wantStorageGB uint64
	}{
		"Exact GiB and GB": {
			meminfo: "MemTotal: 16777216 kB", blocks: 1_000_000, bsize: 1000,
			wantMemoryGiB: 16, wantStorageGB: 1,
		},
		"Memory is floored to the GiB below": {
			meminfo: "MemTotal: 1048575 kB", blocks: 1, bsize: 4096,
			wantMemoryGiB: 0, wantStorageGB: 0,
		},
		"Storage is floored to the GB below": {
			meminfo: "MemTotal: 1048576 kB", blocks: 244140624, bsize: 4096,
			wantMemoryGiB: 1, wantStorageGB: 999,
		},
		"Memory without unit is in bytes": {
			meminfo: "MemTotal: 2147483648", blocks: 244140625, bsize: 4096,
			wantMemoryGiB: 2, wantStorageGB: 1000,
		},
		"Storage uses decimal units": {
			meminfo: "MemTotal: 1073741824 kB", blocks: 268435456, bsize: 4096,
			wantMemoryGiB: 1024, wantStorageGB: 1099,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := setupRoot(t, "regular", map[string]string{"proc/meminfo": tc.meminfo + "\n"}, nil)
			writePCIDevices(t, root, nil)

			statfs := func(_ string, st *unix.Statfs_t) error {
				st.Blocks = tc.blocks
				st.Bsize = tc.bsize
				return nil
			}

			c := hardware.New(fakeResolver{}, hardware.WithRoot(root), hardware.WithStatfs(statfs))
			got, err := c.Collect(context.Background())
			require.NoError(t, err, "Collect should not return an error")

			assert.Equal(t, tc.wantMemoryGiB, got.MemoryGiB, "Collect should report memory in GiB")
			assert.Equal(t, tc.wantStorageGB, got.StorageGB, "Collect should report storage in GB")
			assert.Equal(t, uint64(4), got.CPUCores, "Collect should count the processors")
		})
	}
}

func TestCollectStatfsRootFilesystem(t *testing.T) {
	t.Parallel()

	root := setupRoot(t, "regular", nil, nil)
	writePCIDevices(t, root, nil)

	var statted []string
	statfs := func(path string, st *unix.Statfs_t) error {
		statted = append(statted, path)
		return fakeStatfs(path, st)
	}

	c := hardware.New(fakeResolver{}, hardware.WithRoot(root), hardware.WithStatfs(statfs))
	_, err := c.Collect(context.Background())
	require.NoError(t, err, "Collect should not return an error")
	assert.Equal(t, []string{root}, statted, "Collect should stat the root filesystem once")
}

func TestCollectErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := &hardware.CollectError{Op: "GPU", Err: hardware.ErrMalformedDevice}
	require.ErrorIs(t, err, hardware.ErrMalformedDevice, "CollectError should unwrap to its cause")
	assert.False(t, errors.Is(err, os.ErrNotExist), "CollectError should not match unrelated errors")
	assert.Contains(t, err.Error(), "GPU", "CollectError should name the failed operation")
}

// setupRoot copies the named testdata root into a temporary directory, then applies file overrides and removals.
func setupRoot(t *testing.T, name string, files map[string]string, missing []string) string {
	t.Helper()

	tmp := t.TempDir()
	require.NoError(t, testutils.CopyDir(filepath.Join("testdata", "linuxfs", name), tmp), "Setup: failed to copy test data directory")
	root := filepath.Join(tmp, name)

	for p, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(root, p)), 0750), "Setup: failed to create parent of %s", p)
		require.NoError(t, os.WriteFile(filepath.Join(root, p), []byte(content), 0600), "Setup: failed to write %s", p)
	}
	for _, p := range missing {
		require.NoError(t, os.RemoveAll(filepath.Join(root, p)), "Setup: failed to remove %s", p)
	}

	return root
}

// writePCIDevices creates the sysfs PCI device directories under root.
func writePCIDevices(t *testing.T, root string, devices []pciDevice) {
	t.Helper()

	dir := filepath.Join(root, "sys", "bus", "pci", "devices")
	require.NoError(t, os.MkdirAll(dir, 0750), "Setup: failed to create PCI devices directory")

	for _, d := range devices {
		p := filepath.Join(dir, d.slot)
		require.NoError(t, os.MkdirAll(p, 0750), "Setup: failed to create device %s", d.slot)
		for file, content := range map[string]string{"class": d.class, "vendor": d.vendor, "device": d.device} {
			if content == "" {
				continue
			}
			require.NoError(t, os.WriteFile(filepath.Join(p, file), []byte(content+"\n"), 0600), "Setup: failed to write %s of %s", file, d.slot)
		}
	}
}
