package fswatch

import (
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestGetPathsToWatch(t *testing.T) {
	fs = afero.NewMemMapFs()
	dirs := []string{"/tracked", "/tracked/docs", "/tracked/src",
		"/tracked/src/deep", "/elsewhere"}
	files := []string{"/tracked/readme.txt", "/tracked/src/main.go",
		"/tracked/src/deep/util.go", "/elsewhere/other.txt"}
	for _, dir := range dirs {
		assert.NoError(t, fs.MkdirAll(dir, 0755))
	}
	for _, file := range files {
		assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
	}

	paths, err := getPathsToWatch("/tracked")
	assert.NoError(t, err)

	exp := []string{"/tracked", "/tracked/docs", "/tracked/src", "/tracked/src/deep"}
	sort.Strings(paths)
	assert.Equal(t, exp, paths)
}

func TestGetPathsToWatchMissingRoot(t *testing.T) {
	fs = afero.NewMemMapFs()
	_, err := getPathsToWatch("/nope")
	assert.Error(t, err)
}

func TestCombineUpdates(t *testing.T) {
	t.Parallel()

	updates := make(chan fsnotify.Event, 1024)
	addEvents := func(num int) {
		for i := 0; i < num; i++ {
			updates <- fsnotify.Event{}
		}
	}

	numUpdates := 100
	addEvents(numUpdates)
	combined := combineUpdates(updates)

	numCombined := countEvents(combined)
	assert.True(t, numCombined < numUpdates,
		"expected less combined events (%d) than %d", numCombined, numUpdates)

	addEvents(100)
	<-combined
}

func countEvents(c chan struct{}) (n int) {
	<-c
	n++

	for {
		select {
		case <-c:
			n++
		case <-time.After(500 * time.Millisecond):
			return n
		}
	}
}
