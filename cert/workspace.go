package cert

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Workspace owns a process-lifetime temporary directory holding CSRs, the
// serial counter and generated config fragments. None of its content is
// meant to outlive the run; an ephemeral root CA key stored here is
// irrecoverable once the workspace is cleaned up, which is intentional.
type Workspace struct {
	dir string

	// paths of root CA keys that exist only inside the workspace
	ephemeralKeys []string
}

// NewWorkspace returns an empty workspace. The directory is created lazily
// on first use.
func NewWorkspace() *Workspace {
	return &Workspace{}
}

// Dir creates the workspace directory once and returns its path. Subsequent
// calls return the same path.
func (w *Workspace) Dir() (string, error) {
	if w.dir != "" {
		return w.dir, nil
	}

	dir := filepath.Join(os.TempDir(), "devca-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	log.Debugf("created workspace %s", dir)
	w.dir = dir

	return w.dir, nil
}

// SharedConfigPath returns the path of the rendered authority policy config
// inside the workspace.
func (w *Workspace) SharedConfigPath() (string, error) {
	dir, err := w.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "devca.cnf"), nil
}

// SerialPath returns the path of the serial counter file shared by all
// signing operations of the run.
func (w *Workspace) SerialPath() (string, error) {
	dir, err := w.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "serial"), nil
}

// ExtFilePath returns a request-specific extension fragment path for the
// certificate named name.
func (w *Workspace) ExtFilePath(name string) (string, error) {
	dir, err := w.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".ext.cnf"), nil
}

// KeyPath returns a workspace-internal path for a private key that must not
// be persisted and registers it as ephemeral.
func (w *Workspace) KeyPath(name string) (string, error) {
	dir, err := w.Dir()
	if err != nil {
		return "", err
	}

	p := filepath.Join(dir, name+KeyFileSuffix)
	w.ephemeralKeys = append(w.ephemeralKeys, p)

	return p, nil
}

// CSRPath returns a workspace-internal path for a certificate signing
// request.
func (w *Workspace) CSRPath(name string) (string, error) {
	dir, err := w.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".csr"), nil
}

// Cleanup recursively removes the workspace. A removal failure is a
// *CleanupError; it is marked fatal when an ephemeral root CA key is still
// inside, because an undeleted temporary root key is a security hazard.
// Cleanup is a no-op when the directory was never created.
func (w *Workspace) Cleanup() error {
	if w.dir == "" {
		return nil
	}

	dir := w.dir
	if err := os.RemoveAll(dir); err != nil {
		fatal := false
		for _, k := range w.ephemeralKeys {
			if _, statErr := os.Stat(k); statErr == nil {
				fatal = true
				break
			}
		}
		return &CleanupError{Dir: dir, Fatal: fatal, Err: err}
	}

	log.Debugf("removed workspace %s", dir)
	w.dir = ""
	w.ephemeralKeys = nil

	return nil
}
