package writer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/log"
	"github.com/Dandelight/sceneport/types"
)

type wavefrontWriter struct {
	logger log.Logger

	// Emit a companion material library next to the geometry file.
	withMaterials bool
}

// Create a new wavefront obj writer.
func newWavefrontWriter(withMaterials bool) *wavefrontWriter {
	return &wavefrontWriter{
		logger:        log.New("obj writer"),
		withMaterials: withMaterials,
	}
}

// Write scene geometry to a wavefront obj file. Node transforms are baked
// into the emitted vertex data so instanced meshes appear once per instance.
// When material output is enabled and the scene defines materials, a
// companion .mtl library is written next to the obj file.
func (w *wavefrontWriter) Write(sc *scene.Scene, filename string) error {
	w.logger.Infof(`writing obj scene to "%s"`, filename)
	start := time.Now()

	objFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("objWriter: %v", err)
	}
	defer objFile.Close()

	buf := bufio.NewWriter(objFile)
	withMaterials := w.withMaterials && len(sc.Materials) > 0
	if withMaterials {
		fmt.Fprintf(buf, "mtllib %s\n", filepath.Base(materialLibPath(filename)))
	}

	var vOffset, vtOffset, vnOffset int
	emitMesh := func(mesh *scene.Mesh, world types.Mat4) {
		fmt.Fprintf(buf, "o %s\n", mesh.Name)

		identWorld := world.IsIdent()
		for _, vertex := range mesh.Vertices {
			if !identWorld {
				vertex = world.TransformPoint(vertex)
			}
			fmt.Fprintf(buf, "v %g %g %g\n", vertex[0], vertex[1], vertex[2])
		}
		for _, uv := range mesh.UVs {
			fmt.Fprintf(buf, "vt %g %g\n", uv[0], uv[1])
		}
		for _, normal := range mesh.Normals {
			if !identWorld {
				normal = world.TransformDir(normal)
			}
			fmt.Fprintf(buf, "vn %g %g %g\n", normal[0], normal[1], normal[2])
		}

		if withMaterials && mesh.MaterialIndex != -1 && int(mesh.MaterialIndex) < len(sc.Materials) {
			fmt.Fprintf(buf, "usemtl %s\n", sc.Materials[mesh.MaterialIndex].Name)
		}

		hasUVs := len(mesh.UVs) > 0
		hasNormals := len(mesh.Normals) > 0
		for _, face := range mesh.Faces {
			buf.WriteString("f")
			for _, index := range face.Indices {
				switch {
				case hasUVs && hasNormals:
					fmt.Fprintf(buf, " %d/%d/%d", vOffset+int(index)+1, vtOffset+int(index)+1, vnOffset+int(index)+1)
				case hasUVs:
					fmt.Fprintf(buf, " %d/%d", vOffset+int(index)+1, vtOffset+int(index)+1)
				case hasNormals:
					fmt.Fprintf(buf, " %d//%d", vOffset+int(index)+1, vnOffset+int(index)+1)
				default:
					fmt.Fprintf(buf, " %d", vOffset+int(index)+1)
				}
			}
			buf.WriteByte('\n')
		}

		vOffset += len(mesh.Vertices)
		vtOffset += len(mesh.UVs)
		vnOffset += len(mesh.Normals)
	}

	if sc.Root != nil {
		sc.EachMeshInstance(emitMesh)
	} else {
		for _, mesh := range sc.Meshes {
			emitMesh(mesh, types.Ident4())
		}
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("objWriter: %v", err)
	}

	if withMaterials {
		if err = w.writeMaterialLib(sc, materialLibPath(filename)); err != nil {
			return err
		}
	}

	w.logger.Infof("wrote obj scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Write the scene material list to a wavefront mtl library.
func (w *wavefrontWriter) writeMaterialLib(sc *scene.Scene, filename string) error {
	mtlFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("objWriter: %v", err)
	}
	defer mtlFile.Close()

	buf := bufio.NewWriter(mtlFile)
	for _, mat := range sc.Materials {
		fmt.Fprintf(buf, "newmtl %s\n", mat.Name)
		fmt.Fprintf(buf, "Kd %g %g %g\n", mat.Kd[0], mat.Kd[1], mat.Kd[2])
		if mat.IsSpecular() {
			fmt.Fprintf(buf, "Ks %g %g %g\n", mat.Ks[0], mat.Ks[1], mat.Ks[2])
		}
		if mat.IsEmissive() {
			fmt.Fprintf(buf, "Ke %g %g %g\n", mat.Ke[0], mat.Ke[1], mat.Ke[2])
		}
		// Roughness maps inversely onto the specular exponent range.
		fmt.Fprintf(buf, "Ns %g\n", (1.0-mat.Roughness)*1000.0)
		fmt.Fprintf(buf, "Ni %g\n", mat.Ni)
		fmt.Fprintf(buf, "d %g\n", mat.Opacity)

		texMaps := []struct {
			statement string
			texIndex  int32
		}{
			{"map_Kd", mat.KdTex},
			{"map_Ks", mat.KsTex},
			{"map_Ke", mat.KeTex},
			{"map_bump", mat.NormalTex},
		}
		for _, texMap := range texMaps {
			if texMap.texIndex != -1 && int(texMap.texIndex) < len(sc.Textures) {
				fmt.Fprintf(buf, "%s %s\n", texMap.statement, sc.Textures[texMap.texIndex].Name)
			}
		}
		buf.WriteByte('\n')
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("objWriter: %v", err)
	}
	return nil
}

// The companion material library path for an obj file.
func materialLibPath(objPath string) string {
	return strings.TrimSuffix(objPath, filepath.Ext(objPath)) + ".mtl"
}
