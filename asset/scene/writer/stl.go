package writer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/log"
	"github.com/Dandelight/sceneport/types"
)

type stlWriter struct {
	logger log.Logger

	// Emit the binary stl variant instead of the ascii one.
	binary bool
}

// Create a new stl writer.
func newStlWriter(binary bool) *stlWriter {
	return &stlWriter{
		logger: log.New("stl writer"),
		binary: binary,
	}
}

// Write scene geometry to an stl file. Stl carries no vertex attributes or
// materials; faces with fewer than three vertices are dropped and larger
// polygons emit one facet per fan triangle. Facet normals are always
// recomputed from the transformed vertex positions.
func (w *stlWriter) Write(sc *scene.Scene, filename string) error {
	w.logger.Infof(`writing stl scene to "%s"`, filename)
	start := time.Now()

	var facets []stlFacet
	collect := func(mesh *scene.Mesh, world types.Mat4) {
		identWorld := world.IsIdent()
		for _, face := range mesh.Faces {
			for arg := 1; arg < len(face.Indices)-1; arg++ {
				facet := stlFacet{
					vertices: [3]types.Vec3{
						mesh.Vertices[face.Indices[0]],
						mesh.Vertices[face.Indices[arg]],
						mesh.Vertices[face.Indices[arg+1]],
					},
				}
				if !identWorld {
					for i, vertex := range facet.vertices {
						facet.vertices[i] = world.TransformPoint(vertex)
					}
				}
				e01 := facet.vertices[1].Sub(facet.vertices[0])
				e02 := facet.vertices[2].Sub(facet.vertices[0])
				facet.normal = e01.Cross(e02).Normalize()
				facets = append(facets, facet)
			}
		}
	}
	if sc.Root != nil {
		sc.EachMeshInstance(collect)
	} else {
		for _, mesh := range sc.Meshes {
			collect(mesh, types.Ident4())
		}
	}

	stlFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("stlWriter: %v", err)
	}
	defer stlFile.Close()

	buf := bufio.NewWriter(stlFile)
	if w.binary {
		err = writeBinaryStl(buf, facets)
	} else {
		err = writeAsciiStl(buf, facets)
	}
	if err != nil {
		return fmt.Errorf("stlWriter: %v", err)
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("stlWriter: %v", err)
	}

	w.logger.Infof("wrote %d facets in %d ms", len(facets), time.Since(start).Nanoseconds()/1e6)
	return nil
}

type stlFacet struct {
	normal   types.Vec3
	vertices [3]types.Vec3
}

func writeAsciiStl(buf *bufio.Writer, facets []stlFacet) error {
	fmt.Fprintf(buf, "solid scene\n")
	for _, facet := range facets {
		fmt.Fprintf(buf, "facet normal %g %g %g\n", facet.normal[0], facet.normal[1], facet.normal[2])
		fmt.Fprintf(buf, "outer loop\n")
		for _, vertex := range facet.vertices {
			fmt.Fprintf(buf, "vertex %g %g %g\n", vertex[0], vertex[1], vertex[2])
		}
		fmt.Fprintf(buf, "endloop\nendfacet\n")
	}
	_, err := fmt.Fprintf(buf, "endsolid scene\n")
	return err
}

// Binary stl layout: an 80 byte header, a uint32 facet count and one 50 byte
// little-endian record per facet.
func writeBinaryStl(buf *bufio.Writer, facets []stlFacet) error {
	var header [80]byte
	copy(header[:], "sceneport binary stl")
	if _, err := buf.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(facets))); err != nil {
		return err
	}

	for _, facet := range facets {
		record := make([]float32, 0, 12)
		record = append(record, facet.normal[0], facet.normal[1], facet.normal[2])
		for _, vertex := range facet.vertices {
			record = append(record, vertex[0], vertex[1], vertex[2])
		}
		if err := binary.Write(buf, binary.LittleEndian, record); err != nil {
			return err
		}
		// Attribute byte count; always zero.
		if err := binary.Write(buf, binary.LittleEndian, uint16(0)); err != nil {
			return err
		}
	}
	return nil
}
