package writer

import (
	"fmt"
	"time"

	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/log"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

type gltfWriter struct {
	logger log.Logger

	// Emit the packed glb variant instead of the json one.
	binary bool
}

// Create a new gltf 2.0 writer.
func newGltfWriter(binary bool) *gltfWriter {
	return &gltfWriter{
		logger: log.New("gltf writer"),
		binary: binary,
	}
}

// Write the scene to a gltf 2.0 document. The node hierarchy and mesh
// attributes are carried over; materials map onto the metallic-roughness
// model with factors only, textures are not embedded.
func (w *gltfWriter) Write(sc *scene.Scene, filename string) error {
	w.logger.Infof(`writing gltf scene to "%s"`, filename)
	start := time.Now()

	doc := gltf.NewDocument()
	doc.Asset.Generator = "sceneport"

	for _, mat := range sc.Materials {
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name: mat.Name,
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &[4]float32{mat.Kd[0], mat.Kd[1], mat.Kd[2], mat.Opacity},
				MetallicFactor:  gltf.Float(mat.Metallic),
				RoughnessFactor: gltf.Float(mat.Roughness),
			},
			EmissiveFactor: [3]float32{mat.Ke[0], mat.Ke[1], mat.Ke[2]},
		})
	}

	for _, mesh := range sc.Meshes {
		gltfMesh, err := buildGltfMesh(doc, mesh)
		if err != nil {
			return fmt.Errorf("gltfWriter: %v", err)
		}
		doc.Meshes = append(doc.Meshes, gltfMesh)
	}

	if sc.Root != nil {
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, appendGltfNode(doc, sc.Root))
	} else {
		for meshIndex, mesh := range sc.Meshes {
			doc.Nodes = append(doc.Nodes, &gltf.Node{Name: mesh.Name, Mesh: gltf.Index(uint32(meshIndex))})
			doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
		}
	}

	var err error
	if w.binary {
		err = gltf.SaveBinary(doc, filename)
	} else {
		err = gltf.Save(doc, filename)
	}
	if err != nil {
		return fmt.Errorf("gltfWriter: %v", err)
	}

	w.logger.Infof("wrote gltf scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Convert a scene mesh into a gltf mesh with a single primitive. Polygon
// faces are fan-triangulated since gltf only carries triangle topology.
func buildGltfMesh(doc *gltf.Document, mesh *scene.Mesh) (*gltf.Mesh, error) {
	if len(mesh.Vertices) == 0 {
		return nil, fmt.Errorf("mesh %q defines no vertices", mesh.Name)
	}

	positions := make([][3]float32, len(mesh.Vertices))
	for index, vertex := range mesh.Vertices {
		positions[index] = vertex
	}
	attrs := gltf.Attribute{
		gltf.POSITION: modeler.WritePosition(doc, positions),
	}

	if len(mesh.Normals) == len(mesh.Vertices) {
		normals := make([][3]float32, len(mesh.Normals))
		for index, normal := range mesh.Normals {
			normals[index] = normal
		}
		attrs[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
	}
	if len(mesh.UVs) == len(mesh.Vertices) {
		uvs := make([][2]float32, len(mesh.UVs))
		for index, uv := range mesh.UVs {
			uvs[index] = uv
		}
		attrs[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, uvs)
	}

	var indices []uint32
	for _, face := range mesh.Faces {
		for arg := 1; arg < len(face.Indices)-1; arg++ {
			indices = append(indices, face.Indices[0], face.Indices[arg], face.Indices[arg+1])
		}
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("mesh %q defines no triangle faces", mesh.Name)
	}

	prim := &gltf.Primitive{
		Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
		Attributes: attrs,
	}
	if mesh.MaterialIndex != -1 && int(mesh.MaterialIndex) < len(doc.Materials) {
		prim.Material = gltf.Index(uint32(mesh.MaterialIndex))
	}
	return &gltf.Mesh{
		Name:       mesh.Name,
		Primitives: []*gltf.Primitive{prim},
	}, nil
}

// Append a scene node subtree to the document and return its node index.
// Scene nodes referencing several meshes split the extra references into
// anonymous child nodes since a gltf node carries at most one mesh.
func appendGltfNode(doc *gltf.Document, node *scene.Node) uint32 {
	gltfNode := &gltf.Node{
		Name:   node.Name,
		Matrix: [16]float32(node.Transform),
	}
	if len(node.MeshIndices) > 0 {
		gltfNode.Mesh = gltf.Index(node.MeshIndices[0])
	}

	nodeIndex := uint32(len(doc.Nodes))
	doc.Nodes = append(doc.Nodes, gltfNode)

	if len(node.MeshIndices) > 1 {
		for _, meshIndex := range node.MeshIndices[1:] {
			doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: gltf.Index(meshIndex)})
			gltfNode.Children = append(gltfNode.Children, uint32(len(doc.Nodes)-1))
		}
	}
	for _, child := range node.Children {
		gltfNode.Children = append(gltfNode.Children, appendGltfNode(doc, child))
	}
	return nodeIndex
}
