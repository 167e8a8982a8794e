package config

// Paths holds the on-disk locations used by fmsys. Every path is absolute
// and interpreted relative to Root, so the whole tool can operate on a
// mounted system image or a test directory.
type Paths struct {
	Root             string `koanf:"root" toml:"root"`
	PortageConfigDir string `koanf:"portage_config_dir" toml:"portage_config_dir"`
	ReposDir         string `koanf:"repos_dir" toml:"repos_dir"`
	OverlaysDir      string `koanf:"overlays_dir" toml:"overlays_dir"`
	OverlayFilesDir  string `koanf:"overlay_files_dir" toml:"overlay_files_dir"`
	DataDir          string `koanf:"data_dir" toml:"data_dir"`
	PatchDir         string `koanf:"patch_dir" toml:"patch_dir"`
	VdbDir           string `koanf:"vdb_dir" toml:"vdb_dir"`
	BootDir          string `koanf:"boot_dir" toml:"boot_dir"`
	OverlayDB        string `koanf:"overlay_db" toml:"overlay_db"`
	ProcDir          string `koanf:"proc_dir" toml:"proc_dir"`
	SysDir           string `koanf:"sys_dir" toml:"sys_dir"`
}

// Mirror selects where the primary repository is rsynced from when
// GENTOO_MIRRORS carries no rsync mirror.
type Mirror struct {
	Default   string `koanf:"default" toml:"default"`
	RsyncArgs string `koanf:"rsync_args" toml:"rsync_args"`
}

// Overlays holds overlay-wide settings
type Overlays struct {
	Priority int `koanf:"priority" toml:"priority"`
}

// Patch configures manifest regeneration after patch application.
// ManifestJobs <= 0 means unbounded.
type Patch struct {
	ManifestCommand string `koanf:"manifest_command" toml:"manifest_command"`
	ManifestJobs    int    `koanf:"manifest_jobs" toml:"manifest_jobs"`
}

// Sync configures concurrent repository/overlay syncing
type Sync struct {
	Jobs int `koanf:"jobs" toml:"jobs"`
}

// Link declares one symlink slot of a portage configuration directory
type Link struct {
	Slot   string `koanf:"slot" toml:"slot"`
	Target string `koanf:"target" toml:"target"`
}

// PortageDir declares the managed content of one /etc/portage/package.* dir
type PortageDir struct {
	Name       string   `koanf:"name" toml:"name"`
	Links      []Link   `koanf:"links" toml:"links"`
	EmptyFiles []string `koanf:"empty_files" toml:"empty_files"`
}

// PortageConfig lists the managed portage configuration directories
type PortageConfig struct {
	Dirs []PortageDir `koanf:"dirs" toml:"dirs"`
}

// Locale holds the system locale
type Locale struct {
	Lang    string `koanf:"lang" toml:"lang"`
	Charset string `koanf:"charset" toml:"charset"`
}

// Pam lists the /etc/pam.d files that must exist
type Pam struct {
	Required []string `koanf:"required" toml:"required"`
}

// Cruft configures the unexplained-file sweep
type Cruft struct {
	PythonBytecode   bool     `koanf:"python_bytecode" toml:"python_bytecode"`
	BytecodeSuffixes []string `koanf:"bytecode_suffixes" toml:"bytecode_suffixes"`
	Exempt           []string `koanf:"exempt" toml:"exempt"`
}

// Owner is the expected owner of package-installed files
type Owner struct {
	UID int `koanf:"uid" toml:"uid"`
	GID int `koanf:"gid" toml:"gid"`
}

// Config is the main configuration structure
type Config struct {
	Paths         Paths         `koanf:"paths" toml:"paths"`
	Mirror        Mirror        `koanf:"mirror" toml:"mirror"`
	Overlays      Overlays      `koanf:"overlays" toml:"overlays"`
	Patch         Patch         `koanf:"patch" toml:"patch"`
	Sync          Sync          `koanf:"sync" toml:"sync"`
	PortageConfig PortageConfig `koanf:"portage_config" toml:"portage_config"`
	Locale        Locale        `koanf:"locale" toml:"locale"`
	Pam           Pam           `koanf:"pam" toml:"pam"`
	Cruft         Cruft         `koanf:"cruft" toml:"cruft"`
	Owner         Owner         `koanf:"owner" toml:"owner"`
}
