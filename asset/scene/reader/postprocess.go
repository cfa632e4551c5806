package reader

import (
	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/types"
)

// Post-process steps that can be applied to a scene after reading.
type PostProcess uint32

const (
	// Split faces with more than three vertices into triangle fans and
	// drop degenerate faces with fewer than three vertices.
	Triangulate PostProcess = 1 << iota

	// Flip the V component of all UV coordinates.
	FlipUVs

	// Generate area-weighted smooth vertex normals for meshes that define
	// no normal data. Meshes with authored normals are left untouched.
	GenSmoothNormals

	// Merge vertices that share identical position, normal and UV values
	// and remap face indices to the merged set.
	JoinIdenticalVertices
)

// Apply the requested post-process steps to every scene mesh. Steps always
// run in a fixed order: triangulation, UV flipping, normal generation and
// vertex merging.
func ApplyPostProcess(sc *scene.Scene, steps PostProcess) {
	for _, mesh := range sc.Meshes {
		if steps&Triangulate != 0 {
			triangulateMesh(mesh)
		}
		if steps&FlipUVs != 0 {
			flipMeshUVs(mesh)
		}
		if steps&GenSmoothNormals != 0 {
			genMeshSmoothNormals(mesh)
		}
		if steps&JoinIdenticalVertices != 0 {
			joinMeshVertices(mesh)
		}
	}
}

// Split polygon faces into triangle fans anchored at their first vertex.
func triangulateMesh(mesh *scene.Mesh) {
	if mesh.IsTriangulated() {
		return
	}

	faces := make([]scene.Face, 0, len(mesh.Faces))
	for _, face := range mesh.Faces {
		if len(face.Indices) < 3 {
			continue
		}
		if len(face.Indices) == 3 {
			faces = append(faces, face)
			continue
		}
		for arg := 1; arg < len(face.Indices)-1; arg++ {
			faces = append(faces, scene.Face{
				Indices: []uint32{face.Indices[0], face.Indices[arg], face.Indices[arg+1]},
			})
		}
	}
	mesh.Faces = faces
}

func flipMeshUVs(mesh *scene.Mesh) {
	for index := range mesh.UVs {
		mesh.UVs[index][1] = 1.0 - mesh.UVs[index][1]
	}
}

// Generate smooth per-vertex normals by accumulating face normals weighted by
// their area. The unnormalized cross product doubles as the area weight.
func genMeshSmoothNormals(mesh *scene.Mesh) {
	if len(mesh.Normals) != 0 || len(mesh.Vertices) == 0 {
		return
	}

	normals := make([]types.Vec3, len(mesh.Vertices))
	for _, face := range mesh.Faces {
		if len(face.Indices) < 3 {
			continue
		}

		i0, i1, i2 := face.Indices[0], face.Indices[1], face.Indices[2]
		e01 := mesh.Vertices[i1].Sub(mesh.Vertices[i0])
		e02 := mesh.Vertices[i2].Sub(mesh.Vertices[i0])
		faceNormal := e01.Cross(e02)
		for _, index := range face.Indices {
			normals[index] = normals[index].Add(faceNormal)
		}
	}
	for index := range normals {
		normals[index] = normals[index].Normalize()
	}
	mesh.Normals = normals
}

type vertexKey struct {
	position types.Vec3
	normal   types.Vec3
	uv       types.Vec2
}

// Merge identical vertices and remap face indices to the merged vertex set.
func joinMeshVertices(mesh *scene.Mesh) {
	if len(mesh.Vertices) == 0 {
		return
	}

	hasNormals := len(mesh.Normals) == len(mesh.Vertices)
	hasUVs := len(mesh.UVs) == len(mesh.Vertices)

	remap := make([]uint32, len(mesh.Vertices))
	seen := make(map[vertexKey]uint32, len(mesh.Vertices))
	var (
		vertices []types.Vec3
		normals  []types.Vec3
		uvs      []types.Vec2
	)
	for index, vertex := range mesh.Vertices {
		key := vertexKey{position: vertex}
		if hasNormals {
			key.normal = mesh.Normals[index]
		}
		if hasUVs {
			key.uv = mesh.UVs[index]
		}

		mergedIndex, exists := seen[key]
		if !exists {
			mergedIndex = uint32(len(vertices))
			seen[key] = mergedIndex
			vertices = append(vertices, vertex)
			if hasNormals {
				normals = append(normals, mesh.Normals[index])
			}
			if hasUVs {
				uvs = append(uvs, mesh.UVs[index])
			}
		}
		remap[index] = mergedIndex
	}

	for faceIndex := range mesh.Faces {
		indices := mesh.Faces[faceIndex].Indices
		for argIndex, index := range indices {
			indices[argIndex] = remap[index]
		}
	}

	mesh.Vertices = vertices
	mesh.Normals = normals
	mesh.UVs = uvs
}
