package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"crowdbeat/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// feedFile is the JSON document the DJ software exports. Either field may be
// omitted; only the fields present are applied.
type feedFile struct {
	Track    *TrackInput  `json:"track"`
	Playlist []TrackInput `json:"playlist"`
}

// FeedWatcher tails a now-playing file written by the DJ software and drives
// the bridge from it. Every write to the file is treated as a playback
// update.
type FeedWatcher struct {
	path    string
	bridge  *Bridge
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFeedWatcher creates a watcher for the given file path.
func NewFeedWatcher(path string, b *Bridge) *FeedWatcher {
	return &FeedWatcher{
		path:   path,
		bridge: b,
		done:   make(chan struct{}),
	}
}

// Start begins watching. The file's directory is watched so the export can
// be replaced atomically (rename onto the path) without losing the watch.
func (w *FeedWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create feed watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch feed directory: %w", err)
	}
	w.watcher = watcher

	// Apply an existing export once so a restart picks up the live state.
	if _, err := os.Stat(w.path); err == nil {
		w.apply()
	}

	go w.loop()

	logger.Info("now-playing feed watcher started", logger.String("path", w.path))
	return nil
}

// Stop ends the watch loop.
func (w *FeedWatcher) Stop() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *FeedWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.apply()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("feed watcher error", logger.ErrorField(err))

		case <-w.done:
			return
		}
	}
}

// apply re-reads the export file and feeds it to the bridge.
func (w *FeedWatcher) apply() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		logger.Warn("failed to read now-playing file", logger.ErrorField(err), logger.String("path", w.path))
		return
	}
	if len(data) == 0 {
		return
	}

	var feed feedFile
	if err := json.Unmarshal(data, &feed); err != nil {
		logger.Warn("invalid now-playing file", logger.ErrorField(err), logger.String("path", w.path))
		return
	}

	ctx := context.Background()

	if feed.Track != nil {
		in := *feed.Track
		if in.Title == "" {
			in.Title = "Unknown Title"
		}
		if in.Artist == "" {
			in.Artist = "Unknown Artist"
		}
		if in.ID == "" {
			// Derive a stable ID from title+artist: the exporter rewrites
			// the file continuously, and a fresh random ID per write would
			// demote the same track over and over.
			in.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(in.Title+"\n"+in.Artist)).String()
		}
		w.bridge.SetCurrentTrack(ctx, Track{
			ID:       in.ID,
			Title:    in.Title,
			Artist:   in.Artist,
			Album:    in.Album,
			Duration: in.Duration,
			Position: in.Position,
		})
	}

	if feed.Playlist != nil {
		w.bridge.SetPlaylist(ctx, feed.Playlist)
	}
}
