package rewrite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type patchFile struct {
	Patches []Patch `yaml:"patches"`
}

// LoadPatchFile reads a YAML patch list.
func LoadPatchFile(path string) ([]Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch file: %w", err)
	}
	var f patchFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse patch file: %w", err)
	}
	if len(f.Patches) == 0 {
		return nil, fmt.Errorf("patch file %s defines no patches", path)
	}
	for i, p := range f.Patches {
		if p.Find == "" {
			return nil, fmt.Errorf("patch %d has an empty find literal", i)
		}
	}
	return f.Patches, nil
}

// WatchPatchFile reloads the rewriter's patch set whenever the file
// changes, until ctx is canceled. A failed reload keeps the previous
// set. The vendor rotates bundle hashes often enough that updating
// literals without a restart matters during tournaments.
func WatchPatchFile(ctx context.Context, path string, r *Rewriter, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("patchwatch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than write in
	// place, which drops the watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			patches, err := LoadPatchFile(path)
			if err != nil {
				log.Warn("patch reload failed, keeping previous set", zap.Error(err))
				continue
			}
			r.SetPatches(patches)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("patch file watcher error", zap.Error(err))
		}
	}
}
