//go:build unix

package local

import (
	"os"
	"strconv"
	"syscall"
)

// platformMetadata exposes the owning uid and gid of a host file.
func platformMetadata(info os.FileInfo) map[string]string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	return map[string]string{
		"uid":  strconv.FormatUint(uint64(stat.Uid), 10),
		"gid":  strconv.FormatUint(uint64(stat.Gid), 10),
		"mode": info.Mode().Perm().String(),
	}
}
