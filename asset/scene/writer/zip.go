package writer

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/log"
	"github.com/google/uuid"
)

// Entries inside a compiled scene container.
const (
	dataFile     = "scene.bin"
	manifestFile = "manifest.json"
)

// The container format version this package reads and writes.
const containerVersion = 1

// The manifest that accompanies the scene blob inside a compiled scene
// container.
type sceneManifest struct {
	Version   int       `json:"version"`
	SceneID   string    `json:"scene_id"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type zipSceneWriter struct {
	logger log.Logger
}

// Create a new compiled scene writer.
func newZipSceneWriter() *zipSceneWriter {
	return &zipSceneWriter{
		logger: log.New("szb writer"),
	}
}

// Write scene definition to a compiled scene container: a zip archive
// holding the gob-encoded scene blob plus a manifest that records the
// container version, a fresh scene id and the blob checksum.
func (w *zipSceneWriter) Write(sc *scene.Scene, filename string) error {
	w.logger.Infof(`writing compiled scene to "%s"`, filename)
	start := time.Now()

	var sceneData bytes.Buffer
	if err := gob.NewEncoder(&sceneData).Encode(sc); err != nil {
		return fmt.Errorf("zipSceneWriter: could not encode scene: %v", err)
	}
	checksum := sha256.Sum256(sceneData.Bytes())
	manifest, err := json.MarshalIndent(&sceneManifest{
		Version:   containerVersion,
		SceneID:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Checksum:  hex.EncodeToString(checksum[:]),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("zipSceneWriter: could not encode manifest: %v", err)
	}

	zipFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("zipSceneWriter: %v", err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	entries := []struct {
		name    string
		payload []byte
	}{
		{dataFile, sceneData.Bytes()},
		{manifestFile, manifest},
	}
	for _, entry := range entries {
		cw, err := zw.Create(entry.name)
		if err != nil {
			return fmt.Errorf("zipSceneWriter: %v", err)
		}
		if _, err = cw.Write(entry.payload); err != nil {
			return fmt.Errorf("zipSceneWriter: could not write %s: %v", entry.name, err)
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("zipSceneWriter: %v", err)
	}

	w.logger.Infof("compressed scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}
