// Package storage detects which of the supported storage layouts the
// system runs on. Layout is a closed set: every consumer switches over the
// concrete types and handles each one.
package storage

import "fmt"

// Layout is one of BiosExt4, EfiExt4, EfiLvmExt4, EfiBcacheLvmExt4
type Layout interface {
	Name() string
	layout()
}

// BiosExt4 is a single disk booted by BIOS with an ext4 root partition
type BiosExt4 struct {
	Disk string
	Root string
}

// EfiExt4 is a single disk with an EFI system partition and an ext4 root
type EfiExt4 struct {
	Disk string
	ESP  string
	Root string
}

// EfiLvmExt4 spans one or more disks through an LVM volume group
type EfiLvmExt4 struct {
	Disks       []string
	ESP         string
	VolumeGroup string
}

// EfiBcacheLvmExt4 is EfiLvmExt4 with bcache between the disks and LVM.
// CacheDevice is empty when the bcache devices run without a cache.
type EfiBcacheLvmExt4 struct {
	Disks       []string
	ESP         string
	VolumeGroup string
	CacheDevice string
}

func (*BiosExt4) Name() string         { return "bios-ext4" }
func (*EfiExt4) Name() string          { return "efi-ext4" }
func (*EfiLvmExt4) Name() string       { return "efi-lvm-ext4" }
func (*EfiBcacheLvmExt4) Name() string { return "efi-bcache-lvm-ext4" }

func (*BiosExt4) layout()         {}
func (*EfiExt4) layout()          {}
func (*EfiLvmExt4) layout()       {}
func (*EfiBcacheLvmExt4) layout() {}

// SwapFile is where ext4 layouts keep their swap
const SwapFile = "/var/cache/swap/swap.img"

// Disks returns the whole disks a layout uses, cache device included
func Disks(l Layout) []string {
	switch v := l.(type) {
	case *BiosExt4:
		return []string{v.Disk}
	case *EfiExt4:
		return []string{v.Disk}
	case *EfiLvmExt4:
		return append([]string(nil), v.Disks...)
	case *EfiBcacheLvmExt4:
		out := append([]string(nil), v.Disks...)
		if v.CacheDevice != "" {
			out = append(out, v.CacheDevice)
		}
		return out
	}
	panic(fmt.Sprintf("unknown storage layout %T", l))
}

// Swap returns the swap file or device a layout uses
func Swap(l Layout) string {
	switch v := l.(type) {
	case *BiosExt4, *EfiExt4:
		return SwapFile
	case *EfiLvmExt4:
		return "/dev/mapper/" + v.VolumeGroup + "-swap"
	case *EfiBcacheLvmExt4:
		return "/dev/mapper/" + v.VolumeGroup + "-swap"
	}
	panic(fmt.Sprintf("unknown storage layout %T", l))
}

// ESP returns the EFI system partition, or "" for BIOS layouts
func ESP(l Layout) string {
	switch v := l.(type) {
	case *BiosExt4:
		return ""
	case *EfiExt4:
		return v.ESP
	case *EfiLvmExt4:
		return v.ESP
	case *EfiBcacheLvmExt4:
		return v.ESP
	}
	panic(fmt.Sprintf("unknown storage layout %T", l))
}

// RootDevice returns the block device holding the root filesystem
func RootDevice(l Layout) string {
	switch v := l.(type) {
	case *BiosExt4:
		return v.Root
	case *EfiExt4:
		return v.Root
	case *EfiLvmExt4:
		return "/dev/mapper/" + v.VolumeGroup + "-root"
	case *EfiBcacheLvmExt4:
		return "/dev/mapper/" + v.VolumeGroup + "-root"
	}
	panic(fmt.Sprintf("unknown storage layout %T", l))
}
