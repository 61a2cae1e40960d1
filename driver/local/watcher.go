package local

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/gobeaver/nodefs"
)

// Watch implements nodefs.CanWatch using fsnotify. The pattern is a glob
// over root-relative paths ("**/*.json", "config/*"). The returned token
// fires once, on the first matching event, and releases its watcher.
func (a *Adapter) Watch(ctx context.Context, pattern string) (nodefs.ChangeToken, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "/")
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &nodefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	watchDir, recursive := watchBase(pattern)
	_, watchPath, err := a.resolve("watch", watchDir)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &nodefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	if err := addWatches(watcher, watchPath, recursive); err != nil {
		watcher.Close()
		return nil, &nodefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	token := nodefs.NewCallbackChangeToken()
	go a.watchLoop(ctx, watcher, matcher, recursive, token)

	return token, nil
}

func (a *Adapter) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, matcher glob.Glob, recursive bool, token *nodefs.CallbackChangeToken) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// new directories below a recursive watch need their own watch
			if recursive && event.Has(fsnotify.Create) {
				_ = addWatches(watcher, event.Name, true)
			}

			rel, err := a.toRel(event.Name)
			if err != nil || !matcher.Match(rel) {
				continue
			}
			token.SignalChange()
			return
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// watchBase returns the deepest directory of pattern free of glob
// metacharacters and whether the pattern reaches below it.
func watchBase(pattern string) (dir string, recursive bool) {
	idx := strings.IndexAny(pattern, "*?[{")
	if idx < 0 {
		// a literal path: watch its directory
		if i := strings.LastIndex(pattern, "/"); i >= 0 {
			return pattern[:i], false
		}
		return "", false
	}

	prefix := pattern[:idx]
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}
	rest := pattern[len(dir):]
	return dir, strings.Contains(pattern, "**") || strings.Count(strings.TrimPrefix(rest, "/"), "/") > 0
}

func addWatches(watcher *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		return watcher.Add(root)
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
