package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/Dandelight/sceneport/asset/texture"
	"github.com/Dandelight/sceneport/types"
	"github.com/olekukonko/tablewriter"
)

// Scene flag bits reported by readers.
type Flag uint32

const (
	// The reader could only recover part of the scene contents. Scenes
	// tagged with this flag are rejected by the conversion pipeline.
	FlagIncomplete Flag = 1 << iota
)

// A face references a list of mesh vertices. Faces may have arbitrary arity
// when parsed; the triangulation post-process step reduces them to triangles.
type Face struct {
	Indices []uint32
}

// A mesh is comprised of indexed vertex attributes and a list of faces that
// index into them. The three attribute lists are either empty or share the
// same length.
type Mesh struct {
	Name string

	Vertices []types.Vec3
	Normals  []types.Vec3
	UVs      []types.Vec2

	Faces []Face

	// Index into the scene material list or -1 when the mesh defines no
	// material.
	MaterialIndex int32
}

// A node combines a local transform with a set of mesh references and an
// optional list of child nodes.
type Node struct {
	Name      string
	Transform types.Mat4

	MeshIndices []uint32
	Children    []*Node
}

// The scene contains all elements that were loaded by a reader: the node
// hierarchy plus the mesh, material and texture lists its nodes reference.
type Scene struct {
	Flags Flag

	Root      *Node
	Meshes    []*Mesh
	Materials []*Material
	Textures  []*texture.Texture
}

// Create a new empty scene.
func NewScene() *Scene {
	return &Scene{
		Meshes:    make([]*Mesh, 0),
		Materials: make([]*Material, 0),
		Textures:  make([]*texture.Texture, 0),
	}
}

// Create a new named mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:          name,
		MaterialIndex: -1,
	}
}

// Create a new named node with an identity transform.
func NewNode(name string) *Node {
	return &Node{
		Name:      name,
		Transform: types.Ident4(),
	}
}

// Returns true if every face in the mesh is a triangle.
func (m *Mesh) IsTriangulated() bool {
	for _, face := range m.Faces {
		if len(face.Indices) != 3 {
			return false
		}
	}
	return true
}

// Visit every mesh referenced by the node hierarchy together with the world
// transform of the node that references it. Meshes referenced by multiple
// nodes are visited once per reference.
func (sc *Scene) EachMeshInstance(visit func(mesh *Mesh, world types.Mat4)) {
	if sc.Root == nil {
		return
	}
	sc.visitNode(sc.Root, types.Ident4(), visit)
}

func (sc *Scene) visitNode(node *Node, parent types.Mat4, visit func(*Mesh, types.Mat4)) {
	world := parent.Mul4(node.Transform)
	for _, meshIndex := range node.MeshIndices {
		if int(meshIndex) < len(sc.Meshes) {
			visit(sc.Meshes[meshIndex], world)
		}
	}
	for _, child := range node.Children {
		sc.visitNode(child, world, visit)
	}
}

// Count the nodes in the scene hierarchy.
func (sc *Scene) NodeCount() int {
	return countNodes(sc.Root)
}

func countNodes(node *Node) int {
	if node == nil {
		return 0
	}
	total := 1
	for _, child := range node.Children {
		total += countNodes(child)
	}
	return total
}

// Count the triangles in all scene meshes. Faces with more than three
// vertices count as the number of triangles a fan triangulation yields.
func (sc *Scene) TriangleCount() int {
	var total int
	for _, mesh := range sc.Meshes {
		for _, face := range mesh.Faces {
			if len(face.Indices) >= 3 {
				total += len(face.Indices) - 2
			}
		}
	}
	return total
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	var (
		vertexSlices []interface{}
		normalSlices []interface{}
		uvSlices     []interface{}
		texSlices    []interface{}
	)
	for _, mesh := range sc.Meshes {
		vertexSlices = append(vertexSlices, mesh.Vertices)
		normalSlices = append(normalSlices, mesh.Normals)
		uvSlices = append(uvSlices, mesh.UVs)
	}
	for _, tex := range sc.Textures {
		texSlices = append(texSlices, tex.Data)
	}
	geomSlices := append(append(append([]interface{}{}, vertexSlices...), normalSlices...), uvSlices...)
	allSlices := append(append([]interface{}{}, geomSlices...), texSlices...)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Count", "Size"})
	table.Append([]string{"Geometry", "---", fmtSize(geomSlices...)})
	table.Append([]string{"", fmt.Sprintf("%d meshes", len(sc.Meshes)), ""})
	table.Append([]string{"", fmt.Sprintf("%d nodes", sc.NodeCount()), ""})
	table.Append([]string{"", fmt.Sprintf("%d triangles", sc.TriangleCount()), ""})
	table.Append([]string{"", "Vertices", fmtSize(vertexSlices...)})
	table.Append([]string{"", "Normals", fmtSize(normalSlices...)})
	table.Append([]string{"", "UVs", fmtSize(uvSlices...)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Materials", fmt.Sprintf("%d", len(sc.Materials)), ""})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Textures", fmt.Sprintf("%d", len(sc.Textures)), fmtSize(texSlices...)})
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(allSlices...), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
