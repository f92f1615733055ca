// Package fswatch wakes the client's change detector early when something
// under the tracked tree changes. The detector still polls on its own
// period; the watcher only shortens the latency, so a watch failure
// degrades to pure polling.
package fswatch

import (
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/treeshare/treeshare/pkg/errors"
)

var fs = afero.NewOsFs()

// Watch watches the directory tree rooted at root. It sends an event on the
// returned channel whenever anything under the tree changes. Bursts of
// events are coalesced, so the channel signals "something changed", not how
// much.
func Watch(root string) (chan struct{}, error) {
	paths, err := getPathsToWatch(root)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handles for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}
			return nil, errors.WithContext(err, "watch "+path)
		}
	}
	return combineUpdates(watcher.Events), nil
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// getPathsToWatch returns root and every directory below it. fsnotify
// doesn't watch recursively, so each directory is added individually;
// watching a directory covers the files inside it.
func getPathsToWatch(root string) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, errors.New("tracked path is not a directory")
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}
		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
