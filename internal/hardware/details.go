package hardware

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/exalsius/node-agent/internal/fileutils"
	"golang.org/x/sys/unix"
	"gopkg.in/ini.v1"
)

// Details is host context which is logged on every run but never reported.
type Details struct {
	OS       string
	Kernel   string
	Ethernet []EthernetLink
}

// EthernetLink is a wired network interface. SpeedMbps is -1 when the link speed is unknown.
type EthernetLink struct {
	Name      string
	SpeedMbps int
}

// arphrdEther is the ARP hardware type of ethernet interfaces.
const arphrdEther = 1

// Details collects the host context. Failures are logged and leave the field empty.
func (c Collector) Details() Details {
	d := Details{
		OS:       c.osName(),
		Kernel:   c.kernel(),
		Ethernet: c.ethernetLinks(),
	}

	c.log.Info("Operating system", "os", d.OS)
	c.log.Info("Kernel version", "kernel", d.Kernel)
	for i, e := range d.Ethernet {
		c.log.Info("Ethernet connection", "index", i, "name", e.Name, "speed_mbps", e.SpeedMbps)
	}

	return d
}

// osName returns the pretty name of the distribution from os-release.
func (c Collector) osName() string {
	cfg, err := ini.Load(filepath.Join(c.root, "etc/os-release"))
	if err != nil {
		c.log.Warn("Failed to read os-release", "error", err)
		return ""
	}

	s := cfg.Section("")
	if name := s.Key("PRETTY_NAME").String(); name != "" {
		return name
	}
	name := strings.TrimSpace(s.Key("NAME").String() + " " + s.Key("VERSION").String())
	if name == "" {
		c.log.Warn("os-release does not name the operating system")
	}
	return name
}

func (c Collector) kernel() string {
	var u unix.Utsname
	if err := c.uname(&u); err != nil {
		c.log.Warn("Failed to get kernel version", "error", err)
		return ""
	}
	return strings.TrimSpace(unix.ByteSliceToString(u.Sysname[:]) + " " + unix.ByteSliceToString(u.Release[:]))
}

// ethernetLinks lists the ethernet interfaces, named "en*" or "*en*" by the kernel or udev.
func (c Collector) ethernetLinks() []EthernetLink {
	dir := filepath.Join(c.root, "sys/class/net")
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.log.Warn("Failed to list network interfaces", "error", err)
		return nil
	}

	var links []EthernetLink
	for _, e := range entries {
		name := e.Name()
		if !strings.Contains(name, "en") {
			continue
		}

		t := fileutils.ReadFileLogError(filepath.Join(dir, name, "type"), c.log)
		if v, err := strconv.Atoi(t); err != nil || v != arphrdEther {
			continue
		}

		speed := -1
		if s, err := fileutils.ReadFileTrimmed(filepath.Join(dir, name, "speed")); err == nil {
			if v, err := strconv.Atoi(s); err == nil {
				speed = v
			}
		}

		links = append(links, EthernetLink{Name: name, SpeedMbps: speed})
	}

	return links
}
