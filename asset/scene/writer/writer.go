package writer

import (
	"fmt"

	"github.com/Dandelight/sceneport/asset/scene"
)

// The Writer interface is implemented by all scene writers.
type Writer interface {
	// Write scene definition to a file.
	Write(*scene.Scene, string) error
}

// A FormatDesc describes one registered output format.
type FormatDesc struct {
	// Short format identifier used to select the format.
	ID string

	// Human-readable format description.
	Description string

	// Preferred file extension without its leading dot.
	Extension string
}

// The registered output formats together with their writer factories. The
// slice order defines the format enumeration order.
var formats = []struct {
	desc      FormatDesc
	newWriter func() Writer
}{
	{FormatDesc{"obj", "Wavefront OBJ format", "obj"}, func() Writer { return newWavefrontWriter(true) }},
	{FormatDesc{"objnomtl", "Wavefront OBJ format without material file", "obj"}, func() Writer { return newWavefrontWriter(false) }},
	{FormatDesc{"stl", "Stereolithography", "stl"}, func() Writer { return newStlWriter(false) }},
	{FormatDesc{"stlb", "Stereolithography (binary)", "stl"}, func() Writer { return newStlWriter(true) }},
	{FormatDesc{"gltf2", "GL Transmission Format v. 2", "gltf"}, func() Writer { return newGltfWriter(false) }},
	{FormatDesc{"glb2", "GL Transmission Format v. 2 (binary)", "glb"}, func() Writer { return newGltfWriter(true) }},
	{FormatDesc{"szb", "sceneport compiled scene", "szb"}, func() Writer { return newZipSceneWriter() }},
}

// List the registered output formats in registration order.
func Formats() []FormatDesc {
	out := make([]FormatDesc, len(formats))
	for index, format := range formats {
		out[index] = format.desc
	}
	return out
}

// Write scene to a file using the format registered under formatID.
func Export(sc *scene.Scene, formatID string, filename string) error {
	if sc == nil {
		return fmt.Errorf("export: no scene to write")
	}
	for _, format := range formats {
		if format.desc.ID == formatID {
			return format.newWriter().Write(sc, filename)
		}
	}
	return fmt.Errorf("export: unsupported format %q", formatID)
}
