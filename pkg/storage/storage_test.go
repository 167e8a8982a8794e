package storage_test

import (
	"testing"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/storage"
	"github.com/fmtools/fmsys/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		mounts string
		sys    testutil.FileTree
		setup  func(t *testing.T, env *testutil.Env)
		want   storage.Layout
	}{
		{
			name:   "bios ext4",
			mounts: "/dev/sda2 / ext4 rw,relatime 0 0\nproc /proc proc rw 0 0\n",
			sys:    testutil.FileTree{"sda": testutil.FileTree{"sda1": testutil.FileTree{}, "sda2": testutil.FileTree{}}},
			want:   &storage.BiosExt4{Disk: "/dev/sda", Root: "/dev/sda2"},
		},
		{
			name:   "efi ext4",
			mounts: "/dev/nvme0n1p2 / ext4 rw 0 0\n/dev/nvme0n1p1 /boot vfat rw 0 0\n",
			sys:    testutil.FileTree{"nvme0n1": testutil.FileTree{"nvme0n1p1": testutil.FileTree{}, "nvme0n1p2": testutil.FileTree{}}},
			want:   &storage.EfiExt4{Disk: "/dev/nvme0n1", ESP: "/dev/nvme0n1p1", Root: "/dev/nvme0n1p2"},
		},
		{
			name:   "efi lvm ext4",
			mounts: "/dev/mapper/hdd-root / ext4 rw 0 0\n/dev/sda1 /boot vfat rw 0 0\n",
			sys: testutil.FileTree{
				"sda":  testutil.FileTree{"sda1": testutil.FileTree{}, "sda2": testutil.FileTree{}},
				"sdb":  testutil.FileTree{"sdb1": testutil.FileTree{}},
				"dm-0": testutil.FileTree{"dm": testutil.FileTree{"name": "hdd-root\n"}, "slaves": testutil.FileTree{"sda2": "", "sdb1": ""}},
			},
			want: &storage.EfiLvmExt4{Disks: []string{"/dev/sda", "/dev/sdb"}, ESP: "/dev/sda1", VolumeGroup: "hdd"},
		},
		{
			name:   "efi bcache lvm ext4",
			mounts: "/dev/mapper/hdd-root / ext4 rw 0 0\n/dev/sda1 /boot vfat rw 0 0\n",
			sys: testutil.FileTree{
				"sda":      testutil.FileTree{"sda1": testutil.FileTree{}, "sda2": testutil.FileTree{}},
				"nvme0n1":  testutil.FileTree{"nvme0n1p1": testutil.FileTree{}},
				"bcache0":  testutil.FileTree{"slaves": testutil.FileTree{"sda2": ""}, "bcache": testutil.FileTree{"cache": testutil.FileTree{}}},
				"dm-0":     testutil.FileTree{"dm": testutil.FileTree{"name": "hdd-root\n"}, "slaves": testutil.FileTree{"bcache0": ""}},
				"loop0":    testutil.FileTree{},
				"zz-other": testutil.FileTree{},
			},
			setup: func(t *testing.T, env *testutil.Env) {
				testutil.CreateSymlinkT(t, "../../../devices/pci0000:00/nvme/nvme0n1/nvme0n1p1/bcache",
					env.Sys("/sys/block/bcache0/bcache/cache/cache0"))
			},
			want: &storage.EfiBcacheLvmExt4{Disks: []string{"/dev/sda"}, ESP: "/dev/sda1", VolumeGroup: "hdd", CacheDevice: "/dev/nvme0n1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			env.Write(t, "/proc/self/mounts", tt.mounts)
			env.Tree(t, "/sys/block", tt.sys)
			if tt.setup != nil {
				tt.setup(t, env)
			}

			got, err := storage.NewDetector(env.FS, env.Paths).Detect()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectUnsupported(t *testing.T) {
	tests := []struct {
		name   string
		mounts string
		want   string
	}{
		{"btrfs root", "/dev/sda2 / btrfs rw 0 0\n", "only ext4"},
		{"no root", "proc /proc proc rw 0 0\n", "no root filesystem"},
		{"lvm without esp", "/dev/mapper/hdd-root / ext4 rw 0 0\n", "no EFI system partition"},
		{"unknown partition", "/dev/sdz9 / ext4 rw 0 0\n", "belongs to no disk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			env.Write(t, "/proc/self/mounts", tt.mounts)
			env.Tree(t, "/sys/block", testutil.FileTree{"sda": testutil.FileTree{"sda2": testutil.FileTree{}}})

			_, err := storage.NewDetector(env.FS, env.Paths).Detect()
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrLayout))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLayoutHelpers(t *testing.T) {
	bcache := &storage.EfiBcacheLvmExt4{Disks: []string{"/dev/sda", "/dev/sdb"}, ESP: "/dev/sda1", VolumeGroup: "hdd", CacheDevice: "/dev/nvme0n1"}
	assert.Equal(t, []string{"/dev/sda", "/dev/sdb", "/dev/nvme0n1"}, storage.Disks(bcache))
	assert.Equal(t, []string{"/dev/sda", "/dev/sdb"}, bcache.Disks, "Disks does not alias the layout")
	assert.Equal(t, "/dev/mapper/hdd-swap", storage.Swap(bcache))
	assert.Equal(t, "/dev/sda1", storage.ESP(bcache))

	bios := &storage.BiosExt4{Disk: "/dev/sda", Root: "/dev/sda2"}
	assert.Equal(t, storage.SwapFile, storage.Swap(bios))
	assert.Equal(t, "", storage.ESP(bios))
	assert.Equal(t, "bios-ext4", bios.Name())
	assert.Equal(t, "/dev/sda2", storage.RootDevice(bios))
	assert.Equal(t, "/dev/mapper/hdd-root", storage.RootDevice(bcache))
}

func TestMountsUnescape(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Write(t, "/proc/self/mounts", "/dev/sdb1 /mnt/my\\040disk ext4 rw 0 0\n")
	mounts, err := storage.NewDetector(env.FS, env.Paths).Mounts()
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdb1", mounts["/mnt/my disk"].Device)
}
