package cli

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort           = "Keep a Gentoo system consistent with its declared baseline"
	MsgCheckShort          = "Check the whole system, optionally repairing it"
	MsgBasicCheckShort     = "Quickly check portage configuration, repositories and overlays"
	MsgSyncShort           = "Sync every repository and overlay"
	MsgRepoShort           = "Manage the package repositories"
	MsgRepoListShort       = "List the known repositories"
	MsgRepoAddShort        = "Create a repository checkout and its configuration"
	MsgRepoSyncShort       = "Sync one repository"
	MsgRepoCheckShort      = "Check one repository, optionally repairing it"
	MsgOverlayShort        = "Manage overlays"
	MsgOverlayList         = "List the configured overlays"
	MsgOverlayAdd          = "Add an overlay found in the overlay list"
	MsgOverlayRemove       = "Remove an overlay"
	MsgOverlayCheck        = "Check one overlay, optionally repairing it"
	MsgOverlayAddTrusted   = "Add an overlay that is used as-is"
	MsgOverlayAddTransient = "Add an overlay whose packages are enabled one by one"
	MsgOverlaySync         = "Sync one overlay"
	MsgOverlayEnable       = "Enable a package of a transient overlay"
	MsgOverlayDisable      = "Disable a package of a transient overlay"
	MsgGenConfigShort      = "Print the default configuration"
	MsgVersionShort        = "Print version information"

	// Status messages
	MsgCheckClean       = "No problems found."
	MsgCheckSummary     = "\n%d error(s), %d warning(s)\n"
	MsgOverlayAdded     = "Added %s overlay %s\n"
	MsgOverlayRemoved   = "Removed overlay %s\n"
	MsgPackageEnabled   = "Enabled %s in overlay %s\n"
	MsgPackageDisabled  = "Disabled %s in overlay %s\n"
	MsgRepoCreated      = "Created repository %s\n"
	MsgNoOverlays       = "No overlays configured."
	MsgConfigWritten    = "Wrote %s\n"
	MsgVersionFormat    = "fmsys version %s\n  commit: %s\n  built:  %s\n"
	MsgBasicCheckPassed = "Basic check passed."

	// Error messages
	MsgErrLoadConfig  = "failed to load configuration: %w"
	MsgErrCheckFailed = "check found %d error(s)"
	MsgErrBasicCheck  = "basic check failed, run \"fmsys check\" for details: %w"
	MsgErrOverlayDB   = "failed to look up overlay %s: %w"
	MsgErrSync        = "sync failed: %w"
	MsgErrVariant     = "--static cannot be combined with --vcs or --url"

	// Flag descriptions
	MsgFlagVerbose        = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagConfig         = "Configuration file (default /etc/fmsys/fmsys.toml)"
	MsgFlagRoot           = "Operate on the system mounted at this directory"
	MsgFlagAutofix        = "Repair what the check finds"
	MsgFlagDeepHardware   = "Also check disk health with smartctl"
	MsgFlagDeepFilesystem = "Also check the root filesystem superblock"
	MsgFlagJobs           = "Maximum concurrent syncs (0 uses the configured value)"
	MsgFlagVCS            = "VCS type of the overlay (git or svn)"
	MsgFlagURL            = "URL of the overlay"
	MsgFlagTrusted        = "Use the overlay as-is instead of selecting packages"
	MsgFlagStatic         = "Register a hand-maintained overlay without a source"
	MsgFlagWrite          = "Write the configuration file instead of printing it"
	MsgFlagContent        = "Also compare enabled packages with upstream"
)
