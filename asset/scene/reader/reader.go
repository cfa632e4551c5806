package reader

import (
	"fmt"

	"github.com/Dandelight/sceneport/asset"
	"github.com/Dandelight/sceneport/asset/scene"
)

// The Reader interface is implemented by all scene readers.
type Reader interface {
	// Read scene definition from a resource.
	Read(*asset.Resource) (*scene.Scene, error)
}

// Read scene from file. The reader is selected based on the file extension.
func ReadScene(filename string) (*scene.Scene, error) {
	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	return ReadSceneResource(res)
}

// Read scene from a resource. The reader is selected based on the resource
// extension. Usd scene content is sniffed by the usd reader itself so a usdz
// package and a bare usda layer both dispatch to it.
func ReadSceneResource(res *asset.Resource) (*scene.Scene, error) {
	var reader Reader
	switch res.Extension() {
	case "usdz", "usda", "usd":
		reader = newUsdReader()
	case "obj":
		reader = newWavefrontReader()
	case "szb":
		reader = newZipSceneReader()
	default:
		return nil, fmt.Errorf("readScene: unsupported file format %q", res.Extension())
	}
	return reader.Read(res)
}
