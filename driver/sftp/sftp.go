// Package sftp is the nodefs backend for a directory on a remote host
// reached over SSH. Paths are resolved below Config.BasePath.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gobeaver/nodefs"
)

// Adapter provides an SFTP implementation of nodefs.FileSystem
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config

	pollInterval time.Duration
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key
	BasePath   string

	// HostKeyCallback verifies the server key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the base path for SFTP operations
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// WithPollInterval sets how often Watch tokens poll the server.
func WithPollInterval(interval time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = interval
	}
}

// New dials the server and creates an SFTP filesystem adapter.
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		config:       cfg,
		basePath:     cfg.BasePath,
		pollInterval: 30 * time.Second,
	}
	for _, option := range options {
		option(adapter)
	}

	adapter.mu.Lock()
	err := adapter.connect()
	adapter.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return adapter, adapter.ensureBase()
}

// NewFromClient wraps an established SFTP session. The adapter does not
// reconnect such sessions.
func NewFromClient(client *sftp.Client, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		client:       client,
		pollInterval: 30 * time.Second,
	}
	for _, option := range options {
		option(adapter)
	}
	return adapter, adapter.ensureBase()
}

func (a *Adapter) ensureBase() error {
	if a.basePath == "" {
		return nil
	}
	c, err := a.conn()
	if err != nil {
		return err
	}
	return c.MkdirAll(a.basePath)
}

// connect establishes SSH and SFTP connections. Must be called with mu held.
func (a *Adapter) connect() error {
	hostKeyCallback := a.config.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}

	sshConfig := &ssh.ClientConfig{
		User:            a.config.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	if len(a.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.config.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	if a.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(a.config.Password))
	}

	if len(sshConfig.Auth) == 0 {
		return fmt.Errorf("no authentication method provided")
	}

	port := a.config.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", a.config.Host, port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = sftpClient

	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}

	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}

	return errors.Join(errs...)
}

// conn returns a live client, reconnecting dialed sessions that dropped.
func (a *Adapter) conn() (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if _, err := a.client.Getwd(); err == nil {
			return a.client, nil
		}
	}

	if a.config.Host == "" {
		if a.client == nil {
			return nil, fmt.Errorf("sftp session closed")
		}
		return a.client, nil
	}

	a.client = nil
	a.sshConn = nil
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a.client, nil
}

// resolve returns the root-relative form of p and its full remote path.
func (a *Adapter) resolve(op, p string) (rel, full string, err error) {
	slashed := strings.ReplaceAll(p, `\`, "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", "", &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrNotAllowed}
		}
	}
	rel = strings.TrimPrefix(path.Clean("/"+slashed), "/")
	switch {
	case a.basePath == "" && rel == "":
		full = "."
	case a.basePath == "":
		full = rel
	default:
		full = path.Join(a.basePath, rel)
	}
	return rel, full, nil
}

// prepare runs the checks shared by every operation.
func (a *Adapter) prepare(ctx context.Context, op, p string) (c *sftp.Client, rel, full string, err error) {
	select {
	case <-ctx.Done():
		return nil, "", "", ctx.Err()
	default:
	}

	rel, full, err = a.resolve(op, p)
	if err != nil {
		return nil, "", "", err
	}

	c, err = a.conn()
	if err != nil {
		return nil, "", "", &nodefs.PathError{Op: op, Path: rel, Err: err}
	}
	return c, rel, full, nil
}

// mapSFTPError maps SFTP errors to nodefs errors
func mapSFTPError(op, p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrNotExist}
	case errors.Is(err, fs.ErrPermission):
		return &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrPermission}
	case errors.Is(err, syscall.ENOTDIR):
		return &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrNotDir}
	default:
		return nodefs.WrapPathErr(op, p, err)
	}
}

// Write implements nodefs.FileWriter
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...nodefs.Option) error {
	c, rel, fullPath, err := a.prepare(ctx, "write", filePath)
	if err != nil {
		return err
	}
	if rel == "" {
		return &nodefs.PathError{Op: "write", Path: filePath, Err: nodefs.ErrIsDir}
	}

	opts := nodefs.ApplyOptions(options...)

	info, err := c.Stat(fullPath)
	switch {
	case err == nil && info.IsDir():
		return &nodefs.PathError{Op: "write", Path: rel, Err: nodefs.ErrIsDir}
	case err == nil && !opts.Overwrite:
		return &nodefs.PathError{Op: "write", Path: rel, Err: nodefs.ErrExist}
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return mapSFTPError("write", rel, err)
	}

	if err := c.MkdirAll(path.Dir(fullPath)); err != nil {
		return mapSFTPError("write", rel, err)
	}

	file, err := c.Create(fullPath)
	if err != nil {
		return mapSFTPError("write", rel, err)
	}

	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return &nodefs.PathError{Op: "write", Path: rel, Err: err}
	}
	if err := file.Close(); err != nil {
		return mapSFTPError("write", rel, err)
	}

	var perm os.FileMode = 0o644
	if opts.Visibility == nodefs.VisibilityPrivate {
		perm = 0o600
	}
	// some servers refuse chmod; the content is already stored
	_ = c.Chmod(fullPath, perm)

	return nil
}

// Read implements nodefs.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	c, rel, fullPath, err := a.prepare(ctx, "read", filePath)
	if err != nil {
		return nil, err
	}

	info, err := c.Stat(fullPath)
	if err != nil {
		return nil, mapSFTPError("read", rel, err)
	}
	if info.IsDir() {
		return nil, &nodefs.PathError{Op: "read", Path: rel, Err: nodefs.ErrIsDir}
	}

	file, err := c.Open(fullPath)
	if err != nil {
		return nil, mapSFTPError("read", rel, err)
	}
	return file, nil
}

// ReadAll implements nodefs.FileReader
func (a *Adapter) ReadAll(ctx context.Context, p string) ([]byte, error) {
	rc, err := a.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete implements nodefs.FileWriter
func (a *Adapter) Delete(ctx context.Context, filePath string) error {
	c, rel, fullPath, err := a.prepare(ctx, "delete", filePath)
	if err != nil {
		return err
	}

	info, err := c.Stat(fullPath)
	if err != nil {
		return mapSFTPError("delete", rel, err)
	}
	if info.IsDir() {
		return &nodefs.PathError{Op: "delete", Path: rel, Err: nodefs.ErrIsDir}
	}

	return mapSFTPError("delete", rel, c.Remove(fullPath))
}

func (a *Adapter) statKind(ctx context.Context, op, p string, wantDir bool) (bool, error) {
	c, rel, fullPath, err := a.prepare(ctx, op, p)
	if err != nil {
		return false, err
	}

	info, err := c.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, mapSFTPError(op, rel, err)
	}
	return info.IsDir() == wantDir, nil
}

// FileExists implements nodefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	return a.statKind(ctx, "fileexists", filePath, false)
}

// DirExists implements nodefs.FileReader
func (a *Adapter) DirExists(ctx context.Context, dirPath string) (bool, error) {
	return a.statKind(ctx, "direxists", dirPath, true)
}

// Stat implements nodefs.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*nodefs.FileInfo, error) {
	c, rel, fullPath, err := a.prepare(ctx, "stat", filePath)
	if err != nil {
		return nil, err
	}

	info, err := c.Stat(fullPath)
	if err != nil {
		return nil, mapSFTPError("stat", rel, err)
	}

	fi := toFileInfo(rel, info)
	return &fi, nil
}

func toFileInfo(rel string, info os.FileInfo) nodefs.FileInfo {
	fi := nodefs.FileInfo{
		Name:    path.Base(rel),
		Path:    rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if rel == "" {
		fi.Name = ""
	}
	if fi.IsDir {
		fi.Size = 0
	} else {
		fi.ContentType = nodefs.GuessContentType(rel, nil)
	}
	return fi
}

// ListContents implements nodefs.FileReader
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]nodefs.FileInfo, error) {
	c, rel, fullPath, err := a.prepare(ctx, "listcontents", dirPath)
	if err != nil {
		return nil, err
	}

	info, err := c.Stat(fullPath)
	if err != nil {
		return nil, mapSFTPError("listcontents", rel, err)
	}
	if !info.IsDir() {
		return nil, &nodefs.PathError{Op: "listcontents", Path: rel, Err: nodefs.ErrNotDir}
	}

	var files []nodefs.FileInfo
	err = walk(ctx, c, fullPath, rel, recursive, func(entryRel string, entry os.FileInfo) {
		files = append(files, toFileInfo(entryRel, entry))
	})
	if err != nil {
		return nil, mapSFTPError("listcontents", rel, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// walk visits the entries below fullPath, descending when recursive.
func walk(ctx context.Context, c *sftp.Client, fullPath, relPath string, recursive bool, fn func(string, os.FileInfo)) error {
	entries, err := c.ReadDir(fullPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		entryRel := path.Join(relPath, entry.Name())
		fn(entryRel, entry)

		if recursive && entry.IsDir() {
			if err := walk(ctx, c, path.Join(fullPath, entry.Name()), entryRel, true, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateDir implements nodefs.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	c, rel, fullPath, err := a.prepare(ctx, "createdir", dirPath)
	if err != nil {
		return err
	}

	if info, err := c.Stat(fullPath); err == nil && !info.IsDir() {
		return &nodefs.PathError{Op: "createdir", Path: rel, Err: nodefs.ErrExist}
	}

	return mapSFTPError("createdir", rel, c.MkdirAll(fullPath))
}

// DeleteDir implements nodefs.FileWriter. Deleting the root empties it.
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	c, rel, fullPath, err := a.prepare(ctx, "deletedir", dirPath)
	if err != nil {
		return err
	}

	info, err := c.Stat(fullPath)
	if err != nil {
		return mapSFTPError("deletedir", rel, err)
	}
	if !info.IsDir() {
		return &nodefs.PathError{Op: "deletedir", Path: rel, Err: nodefs.ErrNotDir}
	}

	return mapSFTPError("deletedir", rel, removeAll(c, fullPath, rel != ""))
}

// removeAll removes everything below dirPath and, when self is set, the
// directory itself.
func removeAll(c *sftp.Client, dirPath string, self bool) error {
	entries, err := c.ReadDir(dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryPath := path.Join(dirPath, entry.Name())
		if entry.IsDir() {
			if err := removeAll(c, entryPath, true); err != nil {
				return err
			}
			continue
		}
		if err := c.Remove(entryPath); err != nil {
			return err
		}
	}

	if !self {
		return nil
	}
	return c.RemoveDirectory(dirPath)
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

func within(rel, dir string) bool {
	return rel == dir || dir == "" || strings.HasPrefix(rel, dir+"/")
}

// Copy implements nodefs.CanCopy. SFTP has no server-side copy, so the
// content is streamed through the client. Directories are copied
// recursively.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	c, srcRel, srcPath, err := a.prepare(ctx, "copy", src)
	if err != nil {
		return err
	}
	dstRel, dstPath, err := a.resolve("copy", dst)
	if err != nil {
		return err
	}

	info, err := c.Stat(srcPath)
	if err != nil {
		return mapSFTPError("copy", srcRel, err)
	}
	if !info.IsDir() {
		return copyFile(c, srcPath, dstPath, dstRel)
	}
	if within(dstRel, srcRel) {
		return &nodefs.PathError{Op: "copy", Path: dstRel, Err: nodefs.ErrNotAllowed}
	}

	if err := c.MkdirAll(dstPath); err != nil {
		return mapSFTPError("copy", dstRel, err)
	}
	return walkCopy(ctx, c, srcPath, dstPath, dstRel)
}

func walkCopy(ctx context.Context, c *sftp.Client, srcPath, dstPath, dstRel string) error {
	entries, err := c.ReadDir(srcPath)
	if err != nil {
		return mapSFTPError("copy", dstRel, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		from := path.Join(srcPath, entry.Name())
		to := path.Join(dstPath, entry.Name())
		toRel := path.Join(dstRel, entry.Name())

		if entry.IsDir() {
			if err := c.MkdirAll(to); err != nil {
				return mapSFTPError("copy", toRel, err)
			}
			if err := walkCopy(ctx, c, from, to, toRel); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(c, from, to, toRel); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(c *sftp.Client, srcPath, dstPath, dstRel string) error {
	if info, err := c.Stat(dstPath); err == nil && info.IsDir() {
		return &nodefs.PathError{Op: "copy", Path: dstRel, Err: nodefs.ErrIsDir}
	}

	in, err := c.Open(srcPath)
	if err != nil {
		return mapSFTPError("copy", dstRel, err)
	}
	defer in.Close()

	if err := c.MkdirAll(path.Dir(dstPath)); err != nil {
		return mapSFTPError("copy", dstRel, err)
	}

	out, err := c.Create(dstPath)
	if err != nil {
		return mapSFTPError("copy", dstRel, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return mapSFTPError("copy", dstRel, err)
	}
	return mapSFTPError("copy", dstRel, out.Close())
}

// Move implements nodefs.CanMove using SFTP's native Rename.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	c, srcRel, srcPath, err := a.prepare(ctx, "move", src)
	if err != nil {
		return err
	}
	dstRel, dstPath, err := a.resolve("move", dst)
	if err != nil {
		return err
	}
	if srcRel == "" {
		return &nodefs.PathError{Op: "move", Path: src, Err: nodefs.ErrNotAllowed}
	}

	info, err := c.Stat(srcPath)
	if err != nil {
		return mapSFTPError("move", srcRel, err)
	}
	if info.IsDir() && within(dstRel, srcRel) {
		return &nodefs.PathError{Op: "move", Path: dstRel, Err: nodefs.ErrNotAllowed}
	}

	if err := c.MkdirAll(path.Dir(dstPath)); err != nil {
		return mapSFTPError("move", dstRel, err)
	}

	// plain SFTP rename refuses to replace an existing file
	if existing, err := c.Stat(dstPath); err == nil && !existing.IsDir() && !info.IsDir() {
		if err := c.Remove(dstPath); err != nil {
			return mapSFTPError("move", dstRel, err)
		}
	}

	return mapSFTPError("move", srcRel, c.Rename(srcPath, dstPath))
}

// Checksum implements nodefs.CanChecksum by reading and hashing the file.
func (a *Adapter) Checksum(ctx context.Context, filePath string, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	reader, err := a.Read(ctx, filePath)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	checksum, err := nodefs.CalculateChecksum(reader, algorithm)
	if err != nil {
		return "", &nodefs.PathError{Op: "checksum", Path: filePath, Err: err}
	}
	return checksum, nil
}

// Visibility implements nodefs.CanVisibility from the remote mode bits.
func (a *Adapter) Visibility(ctx context.Context, p string) (nodefs.Visibility, error) {
	c, rel, fullPath, err := a.prepare(ctx, "visibility", p)
	if err != nil {
		return "", err
	}

	info, err := c.Stat(fullPath)
	if err != nil {
		return "", mapSFTPError("visibility", rel, err)
	}
	if info.Mode().Perm()&0o004 != 0 {
		return nodefs.VisibilityPublic, nil
	}
	return nodefs.VisibilityPrivate, nil
}

// ============================================================================
// Watcher Implementation (Polling-based)
// ============================================================================

// Watch implements nodefs.CanWatch by polling, since SFTP has no change
// notifications. The token fires when the set of matching files, their
// sizes or their modification times differ from the first snapshot.
func (a *Adapter) Watch(ctx context.Context, pattern string) (nodefs.ChangeToken, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &nodefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	initialState, err := a.snapshot(ctx, matcher)
	if err != nil {
		return nil, err
	}

	token := nodefs.NewPollingChangeToken(ctx, nodefs.PollingConfig{
		Interval: a.pollInterval,
		CheckFunc: func() bool {
			currentState, err := a.snapshot(ctx, matcher)
			if err != nil {
				return false
			}
			return !statesEqual(initialState, currentState)
		},
	})

	return token, nil
}

// fileState represents the state of a file for change detection
type fileState struct {
	modTime time.Time
	size    int64
}

func (a *Adapter) snapshot(ctx context.Context, matcher glob.Glob) (map[string]fileState, error) {
	c, _, fullPath, err := a.prepare(ctx, "watch", "")
	if err != nil {
		return nil, err
	}

	state := make(map[string]fileState)
	err = walk(ctx, c, fullPath, "", true, func(rel string, info os.FileInfo) {
		if !info.IsDir() && matcher.Match(rel) {
			state[rel] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	})
	if err != nil {
		return nil, mapSFTPError("watch", "", err)
	}
	return state, nil
}

func statesEqual(a, b map[string]fileState) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !v.modTime.Equal(bv.modTime) || v.size != bv.size {
			return false
		}
	}
	return true
}

// Ensure Adapter implements required and optional interfaces
var (
	_ nodefs.FileSystem    = (*Adapter)(nil)
	_ nodefs.CanCopy       = (*Adapter)(nil)
	_ nodefs.CanMove       = (*Adapter)(nil)
	_ nodefs.CanChecksum   = (*Adapter)(nil)
	_ nodefs.CanVisibility = (*Adapter)(nil)
	_ nodefs.CanWatch      = (*Adapter)(nil)
)
