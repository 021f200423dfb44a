package fs

// ModKeyForOS computes a change-detection key for path on the real filesystem.
// It is intentionally not part of the FS interface: only the cache's file
// layer needs it, and only osFS can answer it meaningfully.
func ModKeyForOS(path string) (ModKey, error) {
	return computeModKey(path)
}

// IsModKeyUnusable reports a file whose modification time can't safely be
// trusted for change detection (e.g. zeroed mtime, or mtime too close to
// "now" to rule out a same-tick write-after-read race).
func IsModKeyUnusable(err error) bool {
	_, ok := err.(errUnusableModKey)
	return ok
}
