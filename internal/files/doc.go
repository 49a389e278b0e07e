// Package files provides file system operations and discovery utilities
// for dtpanel.
//
// Discovery locates registry source workbooks. FindFile walks a directory
// tree in lexical order and returns the first file with the requested name,
// matching how the research data folders nest vendor downloads.
//
// Manager performs the writes: AtomicWrite replaces an output through a
// temp file and rename, MoveFile and Archive shelve earlier results.
//
// Example usage:
//
//	discovery := files.NewDiscovery(paths.BaseDir)
//	path, ok, err := discovery.FindFile(paths.ControlDir, "FI_T1.xlsx")
//
//	manager := files.NewManager(logger)
//	err = manager.AtomicWrite(paths.PanelFile, func(w io.Writer) error {
//	    return writePanel(w)
//	})
package files
