package writer

import (
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
)

func TestGltfWriter(t *testing.T) {
	sc := mockScene()
	gltfFile := filepath.Join(t.TempDir(), "tri.gltf")
	if err := Export(sc, "gltf2", gltfFile); err != nil {
		t.Fatal(err)
	}

	doc, err := gltf.Open(gltfFile)
	if err != nil {
		t.Fatal(err)
	}
	verifyGltfDocument(t, doc)
}

func TestGlbWriter(t *testing.T) {
	sc := mockScene()
	glbFile := filepath.Join(t.TempDir(), "tri.glb")
	if err := Export(sc, "glb2", glbFile); err != nil {
		t.Fatal(err)
	}

	doc, err := gltf.Open(glbFile)
	if err != nil {
		t.Fatal(err)
	}
	verifyGltfDocument(t, doc)
}

func verifyGltfDocument(t *testing.T, doc *gltf.Document) {
	t.Helper()

	if len(doc.Meshes) != 1 {
		t.Fatalf("expected 1 mesh; got %d", len(doc.Meshes))
	}
	if len(doc.Materials) != 1 {
		t.Fatalf("expected 1 material; got %d", len(doc.Materials))
	}

	prim := doc.Meshes[0].Primitives[0]
	if prim.Indices == nil {
		t.Fatal("expected primitive to define an index accessor")
	}
	for _, expAttr := range []string{gltf.POSITION, gltf.NORMAL, gltf.TEXCOORD_0} {
		if _, exists := prim.Attributes[expAttr]; !exists {
			t.Fatalf("expected primitive to define a %s attribute", expAttr)
		}
	}
	if prim.Material == nil || *prim.Material != 0 {
		t.Fatal("expected primitive to reference material 0")
	}

	mat := doc.Materials[0]
	if mat.Name != "white" {
		t.Fatalf("expected material to be named white; got %q", mat.Name)
	}
	if mat.PBRMetallicRoughness == nil || mat.PBRMetallicRoughness.RoughnessFactor == nil {
		t.Fatal("expected material to carry a roughness factor")
	}
	if *mat.PBRMetallicRoughness.RoughnessFactor != 0.5 {
		t.Fatalf("expected roughness factor to be 0.5; got %f", *mat.PBRMetallicRoughness.RoughnessFactor)
	}
	expBaseColor := [4]float32{0.9, 0.9, 0.9, 1}
	if mat.PBRMetallicRoughness.BaseColorFactor == nil || *mat.PBRMetallicRoughness.BaseColorFactor != expBaseColor {
		t.Fatalf("expected base color factor to be %v; got %v", expBaseColor, mat.PBRMetallicRoughness.BaseColorFactor)
	}

	// The scene root maps onto a named node referencing the mesh.
	if len(doc.Scenes) == 0 || len(doc.Scenes[0].Nodes) != 1 {
		t.Fatal("expected document to define a single root node")
	}
	root := doc.Nodes[doc.Scenes[0].Nodes[0]]
	if root.Name != "root" || root.Mesh == nil || *root.Mesh != 0 {
		t.Fatalf("expected root node to reference mesh 0; got %+v", root)
	}
}
