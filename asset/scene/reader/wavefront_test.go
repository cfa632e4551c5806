package reader

import (
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/Dandelight/sceneport/asset"
	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/types"
)

func TestFloat32Parser(t *testing.T) {
	expError := `unsupported syntax for "v"; expected 1 argument; got 0`
	_, err := parseFloat32([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseFloat32([]string{"v", "not-a-float"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseFloat32([]string{"v", "3.14"})
	if err != nil {
		t.Fatal(err)
	}

	if v != 3.14 {
		t.Fatalf("expected parsed value to be 3.14; got %f", v)
	}
}

func TestVec2Parser(t *testing.T) {
	expError := `unsupported syntax for "v"; expected 2 arguments; got 0`
	_, err := parseVec2([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseVec2([]string{"v", "not-a-float", "2"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseVec2([]string{"v", "3.14", "0"})
	if err != nil {
		t.Fatal(err)
	}

	expVal := types.Vec2{3.14, 0}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestVec3Parser(t *testing.T) {
	expError := `unsupported syntax for "v"; expected 3 arguments; got 0`
	_, err := parseVec3([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseVec3([]string{"v", "not-a-float", "2", "3"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseVec3([]string{"v", "3.14", "0", "0.4"})
	if err != nil {
		t.Fatal(err)
	}

	expVal := types.Vec3{3.14, 0, 0.4}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestSelectFaceCoordinate(t *testing.T) {
	expError := "index out of bounds"
	type spec struct {
		in       string
		listLen  int
		out      int
		expError string
	}
	specs := []spec{
		{"2", 1, -1, expError},
		{"-2", 1, -1, expError},
		{"1", 10, 0, ""}, // indices are 1-based
		{"-1", 10, 9, ""},
	}

	for idx, s := range specs {
		v, err := selectFaceCoordIndex(s.in, s.listLen)
		if s.expError != "" && (err == nil || err.Error() != s.expError) {
			t.Fatalf("[spec %d] expected error %s; got %v", idx, s.expError, err)
		} else if v != s.out {
			t.Fatalf("[spec %d] expected index to be %d; got %d", idx, s.out, v)
		}
	}
}

func TestParseSingleFacedObject(t *testing.T) {
	payload := `
o testObj
v 0 0 0
v 1 0 0
v 0 1 0
vn 1 0 0
vt 0 0
vn 0 1 0
vt 0 1
vn 0 1 0
vt 1 0
vn 0 0 1
# Comment
f 1/1/1 2/2/2 -1/-1/-1
`

	res := mockResource(payload)
	sc, err := newWavefrontReader().Read(res)
	if err != nil {
		t.Fatal(err)
	}

	expMeshes := 1
	if len(sc.Meshes) != expMeshes {
		t.Fatalf("expected %d meshes to be parsed; got %d", expMeshes, len(sc.Meshes))
	}

	mesh0 := sc.Meshes[0]
	expName := "testObj"
	if mesh0.Name != expName {
		t.Fatalf("expected mesh[0] name to be %q; got %q", expName, mesh0.Name)
	}

	expPoints := []types.Vec3{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	}
	expNormals := []types.Vec3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	expUVs := []types.Vec2{
		{0, 0},
		{0, 1},
		{1, 0},
	}
	if !reflect.DeepEqual(mesh0.Vertices, expPoints) {
		t.Fatalf("expected mesh vertices to be %v; got %v", expPoints, mesh0.Vertices)
	}
	if !reflect.DeepEqual(mesh0.Normals, expNormals) {
		t.Fatalf("expected mesh normals to be %v; got %v", expNormals, mesh0.Normals)
	}
	if !reflect.DeepEqual(mesh0.UVs, expUVs) {
		t.Fatalf("expected mesh uvs to be %v; got %v", expUVs, mesh0.UVs)
	}

	expFaces := []scene.Face{{Indices: []uint32{0, 1, 2}}}
	if !reflect.DeepEqual(mesh0.Faces, expFaces) {
		t.Fatalf("expected mesh faces to be %v; got %v", expFaces, mesh0.Faces)
	}

	// Faces without a usemtl reference the generated default material.
	expMaterials := 1
	if len(sc.Materials) != expMaterials {
		t.Fatalf("expected scene to contain %d material(s); got %d", expMaterials, len(sc.Materials))
	}
	if mesh0.MaterialIndex != 0 {
		t.Fatalf("expected mesh material index to be 0; got %d", mesh0.MaterialIndex)
	}

	if sc.Root == nil {
		t.Fatal("expected scene root node to be generated")
	}
	expRootName := "embedded"
	if sc.Root.Name != expRootName {
		t.Fatalf("expected root node name to be %q; got %q", expRootName, sc.Root.Name)
	}
	expMeshIndices := []uint32{0}
	if !reflect.DeepEqual(sc.Root.MeshIndices, expMeshIndices) {
		t.Fatalf("expected root mesh indices to be %v; got %v", expMeshIndices, sc.Root.MeshIndices)
	}

	if sc.Flags&scene.FlagIncomplete != 0 {
		t.Fatal("expected parsed scene not to be flagged as incomplete")
	}
}

func TestPolygonFacesArePreserved(t *testing.T) {
	payload := `
o pentagon
v 0 0 0
v 1 0 0
v 1.5 1 0
v 0.5 2 0
v -0.5 1 0
f 1 2 3 4 5
`

	res := mockResource(payload)
	sc, err := newWavefrontReader().Read(res)
	if err != nil {
		t.Fatal(err)
	}

	expIndices := 5
	if len(sc.Meshes[0].Faces[0].Indices) != expIndices {
		t.Fatalf("expected face to retain %d indices; got %d", expIndices, len(sc.Meshes[0].Faces[0].Indices))
	}

	// No vt/vn references means the attribute lists are stripped.
	if len(sc.Meshes[0].Normals) != 0 {
		t.Fatalf("expected no normals to be emitted; got %d", len(sc.Meshes[0].Normals))
	}
	if len(sc.Meshes[0].UVs) != 0 {
		t.Fatalf("expected no uvs to be emitted; got %d", len(sc.Meshes[0].UVs))
	}
}

func TestTripletReuse(t *testing.T) {
	payload := `
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3
f 1 3 4
`

	res := mockResource(payload)
	sc, err := newWavefrontReader().Read(res)
	if err != nil {
		t.Fatal(err)
	}

	// Face args referencing the same triplet share mesh vertices.
	expVertices := 4
	if len(sc.Meshes[0].Vertices) != expVertices {
		t.Fatalf("expected %d mesh vertices; got %d", expVertices, len(sc.Meshes[0].Vertices))
	}

	expFaces := []scene.Face{
		{Indices: []uint32{0, 1, 2}},
		{Indices: []uint32{0, 2, 3}},
	}
	if !reflect.DeepEqual(sc.Meshes[0].Faces, expFaces) {
		t.Fatalf("expected faces to be %v; got %v", expFaces, sc.Meshes[0].Faces)
	}
}

func TestMeshSplitOnMaterialChange(t *testing.T) {
	payload := `
mtllib mats.mtl
o twoTone
v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
usemtl red
f 1 2 3
usemtl blue
f 2 4 3
`
	matLib := `
newmtl red
Kd 1 0 0
newmtl blue
Kd 0 0 1
`

	server := mockServer(map[string]string{
		"/scenes/scene.obj": payload,
		"/scenes/mats.mtl":  matLib,
	})
	defer server.Close()

	res, err := asset.NewResource(server.URL+"/scenes/scene.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	sc, err := newWavefrontReader().Read(res)
	if err != nil {
		t.Fatal(err)
	}

	expMeshes := 2
	if len(sc.Meshes) != expMeshes {
		t.Fatalf("expected material switch to split object into %d meshes; got %d", expMeshes, len(sc.Meshes))
	}

	expMaterials := 2
	if len(sc.Materials) != expMaterials {
		t.Fatalf("expected %d materials; got %d", expMaterials, len(sc.Materials))
	}

	if sc.Meshes[0].MaterialIndex == sc.Meshes[1].MaterialIndex {
		t.Fatal("expected split meshes to bind different materials")
	}
	if sc.Meshes[0].Name != sc.Meshes[1].Name {
		t.Fatal("expected split meshes to share the object name")
	}
}

func TestMeshInstancing(t *testing.T) {
	payload := `
o testObj
v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
# Mesh instances
instance testObj 	1 0 1	0 0 0 	1 1 1
instance testObj 	0 0 0	0 90 0 	1 1 1
instance testObj 	0 1 0	90 0 0	10 10 10
`

	res := mockResource(payload)
	sc, err := newWavefrontReader().Read(res)
	if err != nil {
		t.Fatal(err)
	}

	expChildren := 3
	if len(sc.Root.Children) != expChildren {
		t.Fatalf("expected %d child nodes to be generated; got %d", expChildren, len(sc.Root.Children))
	}

	type spec struct {
		child      int
		in, expOut types.Vec3
	}
	specs := []spec{
		{0, types.Vec3{0, 0, 0}, types.Vec3{1, 0, 1}},
		{0, types.Vec3{-1, 0, -1}, types.Vec3{0, 0, 0}},
		{1, types.Vec3{1, 0, 0}, types.Vec3{0, 0, -1}},
		{1, types.Vec3{0, 0, -1}, types.Vec3{-1, 0, 0}},
		{2, types.Vec3{0, 1, 0}, types.Vec3{0, 1, 10}},
	}
	for idx, s := range specs {
		node := sc.Root.Children[s.child]
		out := node.Transform.TransformPoint(s.in)
		if !types.ApproxEqual(out, s.expOut, 1e-3) {
			t.Fatalf("[spec %d] expected transformed point with child %d matrix to be %v; got %v", idx, s.child, s.expOut, out)
		}
	}
}

func TestVertexStatementPassthroughError(t *testing.T) {
	payload := `
o testObj
v bogus 0 0
`

	res := mockResource(payload)
	_, err := newWavefrontReader().Read(res)

	expError := `[embedded: 3] error: strconv.ParseFloat: parsing "bogus": invalid syntax`
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestUnknownInstanceMesh(t *testing.T) {
	payload := `
o testObj
v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
instance missingObj 0 0 0 0 0 0 1 1 1
`

	res := mockResource(payload)
	_, err := newWavefrontReader().Read(res)

	expError := `[embedded: 7] error: unknown mesh with name "missingObj"`
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestEmptySceneFlaggedIncomplete(t *testing.T) {
	payload := `
v 0 0 0
v 1 0 0
v 0 1 0
`

	res := mockResource(payload)
	sc, err := newWavefrontReader().Read(res)
	if err != nil {
		t.Fatal(err)
	}

	if sc.Flags&scene.FlagIncomplete == 0 {
		t.Fatal("expected scene without polygons to be flagged as incomplete")
	}
	if sc.Root == nil {
		t.Fatal("expected incomplete scene to still carry a root node")
	}
}

func TestMaterialLoaderMissingNewMaterialCommand(t *testing.T) {
	payload := `Kd 1.0 1.0 1.0`
	res := mockResource(payload)
	err := newWavefrontReader().parseMaterials(res)

	expError := `[embedded: 1] error: got "Kd" without a "newmtl"`
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderInvalidVec3Param(t *testing.T) {
	payload := `
newmtl foo
Kd 1.0`
	res := mockResource(payload)
	err := newWavefrontReader().parseMaterials(res)

	expError := `[embedded: 3] error: unsupported syntax for "Kd"; expected 3 arguments; got 1`
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderInvalidScalarParam(t *testing.T) {
	payload := `
newmtl foo
Ni`
	res := mockResource(payload)
	err := newWavefrontReader().parseMaterials(res)

	expError := `[embedded: 3] error: unsupported syntax for "Ni"; expected 1 argument; got 0`
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderSuccess(t *testing.T) {
	payload := `
# comment
newmtl foo
Kd 1.0 1.0 1.0
Ks 0.1 0.2 0.3
Ke 0.4    0.5 0.6
Ni 2.5
Ns 600
d 0.75`
	res := mockResource(payload)
	r := newWavefrontReader()
	err := r.parseMaterials(res)
	if err != nil {
		t.Fatal(err)
	}

	matLen := len(r.sc.Materials)
	if matLen != 1 {
		t.Fatalf("expected to parse 1 material; got %d", matLen)
	}

	mat := r.sc.Materials[0]
	if mat.Name != "foo" {
		t.Fatalf("expected material name to be 'foo'; got %s", mat.Name)
	}

	expVec3 := types.Vec3{1, 1, 1}
	if !reflect.DeepEqual(mat.Kd, expVec3) {
		t.Fatalf("expected Kd to be %v; got %v", expVec3, mat.Kd)
	}
	expVec3 = types.Vec3{0.1, 0.2, 0.3}
	if !reflect.DeepEqual(mat.Ks, expVec3) {
		t.Fatalf("expected Ks to be %v; got %v", expVec3, mat.Ks)
	}
	expVec3 = types.Vec3{0.4, 0.5, 0.6}
	if !reflect.DeepEqual(mat.Ke, expVec3) {
		t.Fatalf("expected Ke to be %v; got %v", expVec3, mat.Ke)
	}
	var expScalar float32 = 2.5
	if mat.Ni != expScalar {
		t.Fatalf("expected Ni to be %f; got %f", expScalar, mat.Ni)
	}
	expScalar = 0.4
	if !types.ApproxEqualScalar(mat.Roughness, expScalar, 1e-6) {
		t.Fatalf("expected Roughness to be %f; got %f", expScalar, mat.Roughness)
	}
	expScalar = 0.75
	if mat.Opacity != expScalar {
		t.Fatalf("expected Opacity to be %f; got %f", expScalar, mat.Opacity)
	}
}

func TestMaterialLoaderWithTextures(t *testing.T) {
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		png.Encode(w, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	payload := `
newmtl foo
map_Kd SERVER/kd.png
map_Ks SERVER/ks.png
map_Ke SERVER/ke.png
map_normal SERVER/normal.png
`
	res := mockResource(strings.ReplaceAll(payload, "SERVER", server.URL))
	r := newWavefrontReader()
	err := r.parseMaterials(res)
	if err != nil {
		t.Fatal(err)
	}

	if len(r.sc.Materials) != 1 {
		t.Fatalf("expected to parse 1 material; got %d", len(r.sc.Materials))
	}

	expTexCount := 4
	if len(r.sc.Textures) != expTexCount {
		t.Fatalf("expected to load %d textures; got %d", expTexCount, len(r.sc.Textures))
	}

	texIndices := 0
	mat := r.sc.Materials[0]
	if mat.KdTex != -1 {
		texIndices++
	}
	if mat.KsTex != -1 {
		texIndices++
	}
	if mat.KeTex != -1 {
		texIndices++
	}
	if mat.NormalTex != -1 {
		texIndices++
	}
	if texIndices != expTexCount {
		t.Fatalf("expected %d texture indices to be assigned to mat0; got %d", expTexCount, texIndices)
	}
}

func TestMaterialLoaderWithMissingTextures(t *testing.T) {
	payload := `
newmtl foo
map_Kd invalid.png
`
	res := mockResource(payload)
	r := newWavefrontReader()
	err := r.parseMaterials(res)
	if err != nil {
		t.Fatal(err)
	}

	if len(r.sc.Textures) != 0 {
		t.Fatalf("expected texture list to be empty; got %d items", len(r.sc.Textures))
	}

	mat := r.sc.Materials[0]
	if mat.KdTex != -1 {
		t.Fatalf("expected KdTex to be -1 for missing texture; got %d", mat.KdTex)
	}
}

func mockResource(payload string) *asset.Resource {
	return asset.NewResourceFromStream("embedded", strings.NewReader(payload))
}

func mockServer(files map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, exists := files[r.URL.Path]
		if !exists {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(payload))
	}))
}
