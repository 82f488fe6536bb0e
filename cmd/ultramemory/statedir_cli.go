package main

import (
	"time"

	"dev.vasic.ultramemory/internal/statedir"
)

// ensureStateDir creates (if missing) and returns the persisted-state root
// (~/.ulmemory by default).
func ensureStateDir(a *app) (string, error) {
	root, err := statedir.EnsureLayout()
	if err != nil {
		return "", err
	}
	return root, nil
}

// statedirRootNoEnsure resolves the state directory without creating it —
// used by read-only lookups that shouldn't conjure directories as a side
// effect of merely checking whether something exists.
func statedirRootNoEnsure() (string, error) {
	return statedir.Dir()
}

func appendDeletionLog(root, id, action, status, replacedBy string) error {
	return statedir.AppendDeletionLog(root, statedir.DeletionLogEntry{
		Timestamp:  time.Now(),
		DocumentID: id,
		Action:     action,
		Status:     status,
		ReplacedBy: replacedBy,
	})
}

func statedirAppendHeartbeat(root, title, tag string) error {
	return statedir.AppendHeartbeatTask(root, title, tag)
}
