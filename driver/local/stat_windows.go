//go:build windows

package local

import (
	"os"
	"syscall"
	"time"
)

// platformMetadata exposes the creation time Windows records natively.
// Owner lookup needs GetSecurityInfo and is not reported.
func platformMetadata(info os.FileInfo) map[string]string {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return nil
	}

	created := time.Unix(0, data.CreationTime.Nanoseconds())
	if created.IsZero() {
		return nil
	}
	return map[string]string{
		"created": created.UTC().Format(time.RFC3339),
	}
}
