package reader

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Dandelight/sceneport/asset"
	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/log"
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

type zipSceneReader struct {
	logger log.Logger
}

// Create a new compiled scene reader.
func newZipSceneReader() *zipSceneReader {
	return &zipSceneReader{
		logger: log.New("szb reader"),
	}
}

// Read scene definition from a compiled scene container. The container is a
// zip archive holding a gob-encoded scene blob plus a manifest whose checksum
// must match the blob.
func (p *zipSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	p.logger.Infof(`parsing compiled scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// The zip package requires a reader implementing ReaderAt. To work
	// around this requirement we read the entire container into memory and
	// create a reader from the bytes package that implements ReaderAt.
	data, err := io.ReadAll(sceneRes)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var (
		sceneData []byte
		manifest  *sceneManifest
	)
	for _, f := range zr.File {
		switch f.Name {
		case dataFile, manifestFile:
		default:
			p.logger.Warningf("unknown file %s in scene container; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		payload, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zipSceneReader: could not read %s: %v", f.Name, err)
		}

		if f.Name == dataFile {
			sceneData = payload
			continue
		}
		manifest = &sceneManifest{}
		if err = json.Unmarshal(payload, manifest); err != nil {
			return nil, fmt.Errorf("zipSceneReader: could not parse %s: %v", f.Name, err)
		}
	}

	if sceneData == nil {
		return nil, fmt.Errorf("zipSceneReader: container defines no %s entry", dataFile)
	}
	if manifest == nil {
		return nil, fmt.Errorf("zipSceneReader: container defines no %s entry", manifestFile)
	}
	if manifest.Version != containerVersion {
		return nil, fmt.Errorf("zipSceneReader: unsupported container version %d", manifest.Version)
	}
	if checksum := sha256.Sum256(sceneData); manifest.Checksum != hex.EncodeToString(checksum[:]) {
		return nil, fmt.Errorf("zipSceneReader: scene data does not match the manifest checksum")
	}

	sc := &scene.Scene{}
	if err = gob.NewDecoder(bytes.NewReader(sceneData)).Decode(sc); err != nil {
		return nil, fmt.Errorf("zipSceneReader: could not decode %s: %v", dataFile, err)
	}

	p.logger.Infof("loaded scene %s in %d ms", manifest.SceneID, time.Since(start).Nanoseconds()/1e6)
	return sc, nil
}
