package rl

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchInitFile reads the init file at path again whenever it is written
// or replaced, until ctx is done. The parent directory is watched so
// editors that save by rename are seen too.
func (r *Readline) WatchInitFile(ctx context.Context, path string) error {
	p, err := r.host.FileName(path)
	if err != nil {
		return err
	}
	p, err = filepath.Abs(p)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(p)); err != nil {
		w.Close()
		return fileError("watch init file", p, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != p {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := r.ReadInitFile(p); err != nil {
					r.logf("readline: reload %s: %v", p, err)
				} else {
					r.logf("readline: reloaded %s", p)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logf("readline: watch %s: %v", p, err)
			}
		}
	}()
	return nil
}
