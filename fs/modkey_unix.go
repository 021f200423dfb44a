//go:build darwin || freebsd || linux

package fs

import (
	"time"

	"golang.org/x/sys/unix"
)

// ModKey is a cheap proxy for "has this file changed". It is used by the
// cache to decide whether a previously-read file's contents can be reused
// without a fresh read, the same approach the teacher's cache.FSCache takes
// with "stat" instead of re-reading file contents on every resolution.
type ModKey struct {
	inode     uint64
	size      int64
	mtimeSec  int64
	mtimeNsec int64
	mode      uint32
}

var errModKeyUnusable = errUnusableModKey{}

type errUnusableModKey struct{}

func (errUnusableModKey) Error() string { return "mod key is unusable on this file" }

// modKeySafetyGap guards against a file being modified within the same
// clock tick used for comparison; see the teacher's identical constant.
const modKeySafetyGap = 2

func computeModKey(path string) (ModKey, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return ModKey{}, err
	}

	if stat.Mtim.Sec == 0 && stat.Mtim.Nsec == 0 {
		return ModKey{}, errModKeyUnusable
	}

	now := time.Now()
	mtimeSec := stat.Mtim.Sec + modKeySafetyGap
	if mtimeSec > now.Unix() {
		return ModKey{}, errModKeyUnusable
	}

	return ModKey{
		inode:     stat.Ino,
		size:      stat.Size,
		mtimeSec:  int64(stat.Mtim.Sec),
		mtimeNsec: int64(stat.Mtim.Nsec),
		mode:      uint32(stat.Mode),
	}, nil
}
