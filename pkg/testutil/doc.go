// Package testutil provides utilities for testing fmsys components.
//
// Key components:
//   - Env: a temporary system root with configuration and paths wired to it
//   - FileTree: declarative directory setup
//   - FakeRunner: a scripted execx.Runner that records every invocation
//
// Usage guidelines:
//   - Every test works below t.TempDir(); nothing touches the real system
//   - All test data should be defined inline, not in external files
//   - External commands are always faked; tests never need git or emerge
package testutil
