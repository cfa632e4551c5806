package reader

import (
	"errors"

	"github.com/Dandelight/sceneport/asset/scene"
)

// An Importer combines scene reading with the post-process pipeline and keeps
// track of the most recent scene and error. Importers are not safe for
// concurrent use; callers needing parallelism use one Importer per goroutine.
type Importer struct {
	sc      *scene.Scene
	lastErr string
}

// Create a new importer.
func NewImporter() *Importer {
	return &Importer{}
}

// Read a scene from file and apply the requested post-process steps. The
// previous scene and error state are discarded at the start of each call. A
// scene that parses but is flagged incomplete or lacks a root node is
// rejected the same way an unreadable file is.
func (im *Importer) ReadFile(filename string, steps PostProcess) (*scene.Scene, error) {
	im.sc = nil
	im.lastErr = ""

	sc, err := ReadScene(filename)
	if err != nil {
		im.lastErr = err.Error()
		return nil, err
	}
	if sc.Flags&scene.FlagIncomplete != 0 {
		im.lastErr = "scene is incomplete"
		return nil, errors.New(im.lastErr)
	}
	if sc.Root == nil {
		im.lastErr = "scene has no root node"
		return nil, errors.New(im.lastErr)
	}

	ApplyPostProcess(sc, steps)
	im.sc = sc
	return sc, nil
}

// The scene produced by the most recent successful ReadFile call or nil.
func (im *Importer) Scene() *scene.Scene {
	return im.sc
}

// The error reported by the most recent ReadFile call or an empty string when
// it succeeded.
func (im *Importer) ErrorString() string {
	return im.lastErr
}
