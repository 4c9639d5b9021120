package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// watchDebounce batches bursts of filesystem events.
const watchDebounce = 500 * time.Millisecond

// metadataSourcePath records the file a document was read from.
const metadataSourcePath = "source_path"

// defaultWatchExts are the file types watched without --ext.
var defaultWatchExts = []string{".txt", ".md", ".markdown", ".rst", ".html", ".htm", ".docx", ".eml"}

var (
	watchExts    []string
	watchInitial bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files from a directory as they change",
	Long: `Watches a directory tree and keeps the index in sync with it: created and
modified files are ingested, removed files are deleted. Hidden files and
directories are skipped.

Changes to the config file are applied while watching: chunk size, chunk
overlap, search defaults and the async threshold take effect immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchExts, "ext", defaultWatchExts, "file extensions to ingest")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", true, "ingest existing files before watching")
	rootCmd.AddCommand(watchCmd)
}

type changeKind int

const (
	changeUpsert changeKind = iota + 1
	changeRemove
)

// fileChange is a pending change to one file.
type fileChange struct {
	kind changeKind
	path string
}

// dirWatcher mirrors files under root into the RAG service.
type dirWatcher struct {
	root string
	exts map[string]bool
	rag  driving.RAGService
}

func newDirWatcher(root string, exts []string, rag driving.RAGService) (*dirWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	w := &dirWatcher{root: abs, exts: make(map[string]bool, len(exts)), rag: rag}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		w.exts[e] = true
	}
	return w, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *dirWatcher) wanted(path string) bool {
	if isHidden(path) || !strings.HasPrefix(path, w.root+string(filepath.Separator)) {
		return false
	}
	return len(w.exts) == 0 || w.exts[strings.ToLower(filepath.Ext(path))]
}

// documentID derives a stable document id from the file's path.
func (w *dirWatcher) documentID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

// handleFsEvent maps a filesystem event to a change, if it is one we act on.
func (w *dirWatcher) handleFsEvent(ev fsnotify.Event) (fileChange, bool) {
	if !w.wanted(ev.Name) {
		return fileChange{}, false
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return fileChange{}, false
		}
		return fileChange{kind: changeUpsert, path: ev.Name}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return fileChange{kind: changeRemove, path: ev.Name}, true
	default:
		return fileChange{}, false
	}
}

// apply pushes one change to the service.
func (w *dirWatcher) apply(ctx context.Context, ch fileChange) error {
	id := w.documentID(ch.path)
	rel, err := filepath.Rel(w.root, ch.path)
	if err != nil {
		rel = ch.path
	}

	if ch.kind == changeRemove {
		res, err := w.rag.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("delete %s: %w", rel, err)
		}
		if res.Success {
			logger.Info("removed %s", rel)
		}
		return nil
	}

	in, err := readFile(ctx, ch.path)
	if err != nil {
		return err
	}
	title := in.title
	if title == "" {
		title = titleFromName(in.name)
	}
	md := make(map[string]any, len(in.metadata)+1)
	maps.Copy(md, in.metadata)
	md[metadataSourcePath] = filepath.ToSlash(rel)

	res, err := w.rag.Ingest(ctx, domain.Document{
		ID:           id,
		Title:        title,
		Content:      in.content,
		DocumentType: documentTypeFor(in.name),
		Metadata:     md,
	}, domain.IngestOptions{})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", rel, err)
	}
	if !res.Success {
		logger.Warn("skipped %s: %s", rel, res.Error)
		return nil
	}
	logger.Info("ingested %s", rel)
	return nil
}

// scan ingests every wanted file under root and returns the directories seen.
func (w *dirWatcher) scan(ctx context.Context, ingest bool) (dirs []string, files int, err error) {
	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != w.root && isHidden(path) {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		}
		if !ingest || !d.Type().IsRegular() || !w.wanted(path) {
			return nil
		}
		if err := w.apply(ctx, fileChange{kind: changeUpsert, path: path}); err != nil {
			logger.Warn("%v", err)
			return nil
		}
		files++
		return ctx.Err()
	})
	return dirs, files, err
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireRAG(); err != nil {
		return err
	}
	ctx := cmd.Context()

	w, err := newDirWatcher(args[0], watchExts, ragService)
	if err != nil {
		return err
	}

	dirs, files, err := w.scan(ctx, watchInitial)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.root, err)
	}
	if watchInitial {
		cmd.Printf("Ingested %d files from %s\n", files, w.root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	cfgFile := watchedConfigPath()
	if cfgFile != "" {
		// Editors replace files, so watch the directory.
		if err := watcher.Add(filepath.Dir(cfgFile)); err != nil {
			logger.Warn("config reload disabled: %v", err)
			cfgFile = ""
		}
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", w.root)
	return w.loop(ctx, watcher, cfgFile)
}

func (w *dirWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, cfgFile string) error {
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	pending := make(map[string]fileChange)
	reload := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if cfgFile != "" && filepath.Clean(ev.Name) == cfgFile {
				reload = reload || !ev.Has(fsnotify.Chmod)
				continue
			}
			if ev.Has(fsnotify.Create) && !isHidden(ev.Name) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watcher.Add(ev.Name); err != nil {
						logger.Warn("watch %s: %v", ev.Name, err)
					}
					continue
				}
			}
			if ch, ok := w.handleFsEvent(ev); ok {
				pending[ch.path] = ch
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: %v", err)

		case <-ticker.C:
			if reload {
				reload = false
				applyConfigReload()
			}
			for path, ch := range pending {
				delete(pending, path)
				if err := w.apply(ctx, ch); err != nil {
					logger.Warn("%v", err)
				}
			}
		}
	}
}

// watchedConfigPath returns the config file to watch for tunable changes,
// or "" when reload is unavailable.
func watchedConfigPath() string {
	if reloadConfig == nil || configStore == nil {
		return ""
	}
	path := configStore.Path()
	if path == "" || strings.HasPrefix(path, ":") {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	return filepath.Clean(abs)
}

func applyConfigReload() {
	if reloadConfig == nil {
		return
	}
	if err := reloadConfig(); err != nil {
		logger.Warn("config reload: %v", err)
	}
}
