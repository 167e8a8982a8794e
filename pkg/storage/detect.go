package storage

import (
	"bufio"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/paths"
)

// Mount is one line of /proc/self/mounts
type Mount struct {
	Device string
	Point  string
	FSType string
}

// Detector reads the layout from /proc and /sys below the root
type Detector struct {
	fs    filesystem.FS
	paths *paths.Paths
}

// NewDetector creates a Detector
func NewDetector(fsys filesystem.FS, p *paths.Paths) *Detector {
	return &Detector{fs: fsys, paths: p}
}

// Mounts parses /proc/self/mounts, keyed by mount point. Later mounts over
// the same point win.
func (d *Detector) Mounts() (map[string]Mount, error) {
	path := d.paths.Proc("self", "mounts")
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLayout, "cannot read %s", path)
	}
	defer func() { _ = f.Close() }()

	out := map[string]Mount{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		m := Mount{Device: fields[0], Point: unescape(fields[1]), FSType: fields[2]}
		out[m.Point] = m
	}
	return out, sc.Err()
}

// unescape decodes the octal escapes the kernel uses for spaces and tabs
func unescape(s string) string {
	return strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`).Replace(s)
}

// Detect determines the storage layout
func (d *Detector) Detect() (Layout, error) {
	mounts, err := d.Mounts()
	if err != nil {
		return nil, err
	}
	root, ok := mounts["/"]
	if !ok {
		return nil, errors.New(errors.ErrLayout, "no root filesystem mounted")
	}
	if root.FSType != "ext4" {
		return nil, errors.Newf(errors.ErrLayout, "root filesystem is %s, only ext4 is supported", root.FSType)
	}
	esp := ""
	if b, ok := mounts["/boot"]; ok && b.FSType == "vfat" {
		esp = b.Device
	}

	if name, ok := strings.CutPrefix(root.Device, "/dev/mapper/"); ok {
		return d.detectLvm(name, esp)
	}

	part := filepath.Base(root.Device)
	disk, err := d.diskOf(part)
	if err != nil {
		return nil, err
	}
	if esp == "" {
		return &BiosExt4{Disk: disk, Root: root.Device}, nil
	}
	return &EfiExt4{Disk: disk, ESP: esp, Root: root.Device}, nil
}

func (d *Detector) detectLvm(mapperName, esp string) (Layout, error) {
	if esp == "" {
		return nil, errors.Newf(errors.ErrLayout, "root is on LVM volume %s but no EFI system partition is mounted", mapperName)
	}
	vg, _, ok := strings.Cut(mapperName, "-")
	if !ok {
		return nil, errors.Newf(errors.ErrLayout, "cannot tell the volume group of %s", mapperName)
	}
	dm, err := d.findDM(mapperName)
	if err != nil {
		return nil, err
	}
	pvs, err := d.slaves(dm)
	if err != nil {
		return nil, err
	}

	var disks []string
	bcache, cache := false, ""
	for _, pv := range pvs {
		if strings.HasPrefix(pv, "bcache") {
			bcache = true
			backing, err := d.slaves(pv)
			if err != nil {
				return nil, err
			}
			for _, b := range backing {
				disk, err := d.diskOf(b)
				if err != nil {
					return nil, err
				}
				disks = append(disks, disk)
			}
			if c := d.cacheDevice(pv); c != "" {
				cache = c
			}
			continue
		}
		disk, err := d.diskOf(pv)
		if err != nil {
			return nil, err
		}
		disks = append(disks, disk)
	}
	sort.Strings(disks)

	if bcache {
		return &EfiBcacheLvmExt4{Disks: disks, ESP: esp, VolumeGroup: vg, CacheDevice: cache}, nil
	}
	return &EfiLvmExt4{Disks: disks, ESP: esp, VolumeGroup: vg}, nil
}

// findDM returns the dm-N block device carrying a device-mapper name
func (d *Detector) findDM(name string) (string, error) {
	devs, err := d.blockDevices()
	if err != nil {
		return "", err
	}
	for _, dev := range devs {
		data, err := filesystem.ReadFile(d.fs, d.paths.SysFS("block", dev, "dm", "name"))
		if err == nil && strings.TrimSpace(string(data)) == name {
			return dev, nil
		}
	}
	return "", errors.Newf(errors.ErrLayout, "no block device for %s", name)
}

// blockDevices lists /sys/block, whose entries are symlinks into the
// device tree
func (d *Detector) blockDevices() ([]string, error) {
	entries, err := d.fs.ReadDir(d.paths.SysFS("block"))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLayout, "cannot read block devices")
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}

func (d *Detector) slaves(dev string) ([]string, error) {
	entries, err := d.fs.ReadDir(d.paths.SysFS("block", dev, "slaves"))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLayout, "cannot read slaves of %s", dev)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}

// diskOf returns the whole disk a partition belongs to
func (d *Detector) diskOf(part string) (string, error) {
	disks, err := d.blockDevices()
	if err != nil {
		return "", err
	}
	for _, disk := range disks {
		if disk == part || filesystem.IsDir(d.fs, d.paths.SysFS("block", disk, part)) {
			return "/dev/" + disk, nil
		}
	}
	return "", errors.Newf(errors.ErrLayout, "partition %s belongs to no disk", part)
}

// cacheDevice follows bcacheN/bcache/cache/cache0, which points into the
// cache partition's bcache directory
func (d *Detector) cacheDevice(bcache string) string {
	target, err := d.fs.Readlink(d.paths.SysFS("block", bcache, "bcache", "cache", "cache0"))
	if err != nil {
		return ""
	}
	part := filepath.Base(filepath.Dir(target))
	disk, err := d.diskOf(part)
	if err != nil {
		return ""
	}
	return disk
}
