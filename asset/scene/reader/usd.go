package reader

import (
	"archive/zip"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Dandelight/sceneport/asset"
	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/asset/texture"
	"github.com/Dandelight/sceneport/log"
	"github.com/Dandelight/sceneport/types"
	"github.com/gabriel-vasile/mimetype"
)

// Binary usd crates start with this magic.
const usdCrateMagic = "PXR-USDC"

// Attribute value interpolation across a mesh.
type usdInterp int

const (
	interpAbsent usdInterp = iota
	interpVertex
	interpFaceVarying
	interpUniform
	interpInvalid
)

// A parsed attribute value. The raw text is decoded lazily based on how the
// consumer wants to interpret it.
type usdValue struct {
	valType string
	raw     string
	line    int
}

// A prim parsed from a usda layer.
type usdPrim struct {
	typeName string
	name     string
	path     string
	line     int

	attrs    map[string]usdValue
	rels     map[string]string
	connects map[string]string
	children []*usdPrim
}

// Fetch a quoted token attribute such as info:id.
func (prim *usdPrim) token(name string) string {
	val, exists := prim.attrs[name]
	if !exists {
		return ""
	}
	return usdQuoted(val.raw)
}

// A parsed usda layer: its metadata plus the root prim forest.
type usdLayer struct {
	name          string
	defaultPrim   string
	upAxis        string
	metersPerUnit float64

	roots  []*usdPrim
	byPath map[string]*usdPrim
}

type usdReader struct {
	logger log.Logger

	// The resource being read; used to resolve relative texture paths for
	// plain usda layers.
	res *asset.Resource

	// Container entries when reading a usdz package; nil otherwise.
	archive   map[string]*zip.File
	layerName string

	// The scene being assembled.
	sc    *scene.Scene
	layer *usdLayer

	// Maps of material prim paths and texture asset paths to scene list
	// indices.
	matPathToIndex map[string]int32
	texPathToIndex map[string]int32
}

// Create a new usd reader.
func newUsdReader() *usdReader {
	return &usdReader{
		logger:         log.New("usd reader"),
		matPathToIndex: make(map[string]int32, 0),
		texPathToIndex: make(map[string]int32, 0),
	}
}

// Read scene definition from a usdz package or a text usda layer.
func (r *usdReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	r.logger.Infof(`parsing usd scene from "%s"`, sceneRes.Path())
	start := time.Now()

	r.res = sceneRes
	data, err := io.ReadAll(sceneRes)
	if err != nil {
		return nil, fmt.Errorf("usd: could not read %s: %v", sceneRes.Path(), err)
	}

	layerName := filepath.Base(sceneRes.Path())
	layerData := data
	if sceneRes.Extension() == "usdz" || mimetype.Detect(data).Is("application/zip") {
		layerName, layerData, err = r.openContainer(data)
		if err != nil {
			return nil, err
		}
	}

	if bytes.HasPrefix(layerData, []byte(usdCrateMagic)) {
		return nil, fmt.Errorf(`usd: layer "%s" is a binary usd crate; only text usda layers are supported`, layerName)
	}
	if !bytes.HasPrefix(layerData, []byte("#usda")) {
		return nil, fmt.Errorf(`usd: layer "%s" is not a usda layer`, layerName)
	}

	layer, err := parseUsdLayer(layerName, layerData)
	if err != nil {
		return nil, err
	}

	sc, err := r.buildScene(layer)
	if err != nil {
		return nil, err
	}

	r.logger.Infof("parsed %d meshes, %d materials and %d textures in %d ms",
		len(sc.Meshes), len(sc.Materials), len(sc.Textures), time.Since(start).Nanoseconds()/1e6)
	return sc, nil
}

// Open a usdz container and locate its root layer. Usdz packages are
// uncompressed zip archives whose first layer entry acts as the root layer.
func (r *usdReader) openContainer(data []byte) (string, []byte, error) {
	if detected := mimetype.Detect(data); !detected.Is("application/zip") {
		return "", nil, fmt.Errorf("usd: not a usd container (detected %s)", detected.String())
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("usd: could not open container: %v", err)
	}

	r.archive = make(map[string]*zip.File, len(zr.File))
	var layerFile *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		entryName := path.Clean(f.Name)
		r.archive[entryName] = f

		switch path.Ext(entryName) {
		case ".usda", ".usd", ".usdc":
			if layerFile == nil {
				layerFile = f
			}
		}
	}
	if layerFile == nil {
		return "", nil, fmt.Errorf("usd: container defines no root layer")
	}

	rc, err := layerFile.Open()
	if err != nil {
		return "", nil, fmt.Errorf("usd: could not open layer %s: %v", layerFile.Name, err)
	}
	defer rc.Close()
	layerData, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("usd: could not read layer %s: %v", layerFile.Name, err)
	}

	r.layerName = path.Clean(layerFile.Name)
	return r.layerName, layerData, nil
}

// Resolve an asset path referenced by the layer. Paths inside usdz packages
// resolve against the container entries; plain layers resolve relative to the
// layer resource.
func (r *usdReader) resolveAsset(pathToAsset string) (*asset.Resource, error) {
	if r.archive == nil {
		return asset.NewResource(pathToAsset, r.res)
	}

	entryName := path.Clean(pathToAsset)
	if dir := path.Dir(r.layerName); dir != "." {
		entryName = path.Clean(path.Join(dir, pathToAsset))
	}
	f, exists := r.archive[entryName]
	if !exists {
		f, exists = r.archive[path.Clean(pathToAsset)]
	}
	if !exists {
		return nil, fmt.Errorf("no entry %q in usd container", entryName)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return asset.NewResourceFromStream(f.Name, bytes.NewReader(data)), nil
}

// Assemble a scene from the parsed layer.
func (r *usdReader) buildScene(layer *usdLayer) (*scene.Scene, error) {
	r.sc = scene.NewScene()
	r.layer = layer

	if len(layer.roots) > 0 {
		rootName := layer.defaultPrim
		if rootName == "" {
			rootName = strings.TrimSuffix(path.Base(layer.name), path.Ext(layer.name))
		}

		root := scene.NewNode(rootName)
		root.Transform = layerTransform(layer)
		for _, prim := range layer.roots {
			node, err := r.buildNode(prim, "")
			if err != nil {
				return nil, err
			}
			if node != nil {
				root.Children = append(root.Children, node)
			}
		}
		r.sc.Root = root
	}

	if len(r.sc.Meshes) == 0 {
		r.sc.Flags |= scene.FlagIncomplete
	}
	return r.sc, nil
}

// The root transform implied by layer metadata: stage units scale to meters
// and Z-up stages rotate to the Y-up convention used by the scene graph.
func layerTransform(layer *usdLayer) types.Mat4 {
	m := types.Ident4()
	if layer.metersPerUnit > 0 && layer.metersPerUnit != 1 {
		s := float32(layer.metersPerUnit)
		m = types.Scale4(types.Vec3{s, s, s})
	}
	if strings.EqualFold(layer.upAxis, "Z") {
		m = m.Mul4(types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, float32(-math.Pi/2)).Mat4())
	}
	return m
}

// Convert a prim subtree into scene nodes. Material bindings are inherited by
// descendant prims unless they bind their own material.
func (r *usdReader) buildNode(prim *usdPrim, inheritedBinding string) (*scene.Node, error) {
	switch prim.typeName {
	case "Material", "Shader", "GeomSubset":
		return nil, nil
	}

	binding := inheritedBinding
	if target, exists := prim.rels["material:binding"]; exists {
		binding = target
	}

	node := scene.NewNode(prim.name)
	var err error
	if node.Transform, err = r.primTransform(prim); err != nil {
		return nil, err
	}

	if prim.typeName == "Mesh" {
		mesh, err := r.buildMesh(prim, binding)
		if err != nil {
			return nil, err
		}
		r.sc.Meshes = append(r.sc.Meshes, mesh)
		node.MeshIndices = append(node.MeshIndices, uint32(len(r.sc.Meshes)-1))
	}

	for _, child := range prim.children {
		childNode, err := r.buildNode(child, binding)
		if err != nil {
			return nil, err
		}
		if childNode != nil {
			node.Children = append(node.Children, childNode)
		}
	}
	return node, nil
}

// Compose the local transform of a prim from its xform ops. Ops are applied
// in xformOpOrder order; without an explicit order any present canonical ops
// compose as translate, orient, rotate, scale.
func (r *usdReader) primTransform(prim *usdPrim) (types.Mat4, error) {
	var opNames []string
	if orderVal, exists := prim.attrs["xformOpOrder"]; exists {
		opNames = usdTokens(orderVal.raw)
	} else {
		for _, known := range []string{"xformOp:transform", "xformOp:translate", "xformOp:orient", "xformOp:rotateXYZ", "xformOp:scale"} {
			if _, exists := prim.attrs[known]; exists {
				opNames = append(opNames, known)
			}
		}
	}

	m := types.Ident4()
	for _, opName := range opNames {
		if strings.HasPrefix(opName, "!") {
			continue
		}
		val, exists := prim.attrs[opName]
		if !exists {
			continue
		}

		opKind := strings.TrimPrefix(opName, "xformOp:")
		if i := strings.IndexByte(opKind, ':'); i != -1 {
			opKind = opKind[:i]
		}

		var opM types.Mat4
		switch opKind {
		case "translate":
			v, err := usdVec3(val.raw)
			if err != nil {
				return m, usdError(r.layer.name, val.line, "invalid %s for %q: %v", opName, prim.path, err)
			}
			opM = types.Translate4(v)
		case "scale":
			v, err := usdVec3(val.raw)
			if err != nil {
				return m, usdError(r.layer.name, val.line, "invalid %s for %q: %v", opName, prim.path, err)
			}
			opM = types.Scale4(v)
		case "rotateX", "rotateY", "rotateZ":
			deg, err := usdFloat(val.raw)
			if err != nil {
				return m, usdError(r.layer.name, val.line, "invalid %s for %q: %v", opName, prim.path, err)
			}
			axis := types.Vec3{1, 0, 0}
			switch opKind {
			case "rotateY":
				axis = types.Vec3{0, 1, 0}
			case "rotateZ":
				axis = types.Vec3{0, 0, 1}
			}
			opM = types.QuatFromAxisAngle(axis, deg*math.Pi/180.0).Mat4()
		case "rotateXYZ":
			v, err := usdVec3(val.raw)
			if err != nil {
				return m, usdError(r.layer.name, val.line, "invalid %s for %q: %v", opName, prim.path, err)
			}
			// The X rotation applies first.
			qx := types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, v[0]*math.Pi/180.0)
			qy := types.QuatFromAxisAngle(types.Vec3{0, 1, 0}, v[1]*math.Pi/180.0)
			qz := types.QuatFromAxisAngle(types.Vec3{0, 0, 1}, v[2]*math.Pi/180.0)
			opM = qz.Mul(qy.Mul(qx)).Normalize().Mat4()
		case "orient":
			f, err := usdFloats(val.raw)
			if err != nil || len(f) != 4 {
				return m, usdError(r.layer.name, val.line, "invalid %s for %q", opName, prim.path)
			}
			opM = types.Quat{V: types.Vec3{f[1], f[2], f[3]}, W: f[0]}.Normalize().Mat4()
		case "transform":
			f, err := usdFloats(val.raw)
			if err != nil || len(f) != 16 {
				return m, usdError(r.layer.name, val.line, "invalid %s for %q", opName, prim.path)
			}
			opM = types.Mat4FromRows(
				types.Vec4{f[0], f[1], f[2], f[3]},
				types.Vec4{f[4], f[5], f[6], f[7]},
				types.Vec4{f[8], f[9], f[10], f[11]},
				types.Vec4{f[12], f[13], f[14], f[15]},
			)
		default:
			continue
		}
		m = m.Mul4(opM)
	}
	return m, nil
}

// Convert a Mesh prim into a scene mesh. Vertex-interpolated attributes keep
// the authored index topology; faceVarying and uniform attributes force the
// mesh to be de-indexed so each face corner carries its own attribute values.
func (r *usdReader) buildMesh(prim *usdPrim, binding string) (*scene.Mesh, error) {
	pointsVal, exists := prim.attrs["points"]
	if !exists {
		return nil, usdError(r.layer.name, prim.line, `mesh prim "%s" defines no points`, prim.path)
	}
	points, err := usdVec3s(pointsVal.raw)
	if err != nil {
		return nil, usdError(r.layer.name, pointsVal.line, `invalid points for "%s": %v`, prim.path, err)
	}

	countsVal, exists := prim.attrs["faceVertexCounts"]
	if !exists {
		return nil, usdError(r.layer.name, prim.line, `mesh prim "%s" defines no faceVertexCounts`, prim.path)
	}
	counts, err := usdInts(countsVal.raw)
	if err != nil {
		return nil, usdError(r.layer.name, countsVal.line, `invalid faceVertexCounts for "%s": %v`, prim.path, err)
	}

	indicesVal, exists := prim.attrs["faceVertexIndices"]
	if !exists {
		return nil, usdError(r.layer.name, prim.line, `mesh prim "%s" defines no faceVertexIndices`, prim.path)
	}
	indices, err := usdInts(indicesVal.raw)
	if err != nil {
		return nil, usdError(r.layer.name, indicesVal.line, `invalid faceVertexIndices for "%s": %v`, prim.path, err)
	}

	totalCorners := 0
	for _, count := range counts {
		totalCorners += count
	}
	if totalCorners != len(indices) {
		return nil, usdError(r.layer.name, indicesVal.line, `mesh prim "%s" defines %d face vertex indices but its face vertex counts sum to %d`, prim.path, len(indices), totalCorners)
	}
	for _, index := range indices {
		if index < 0 || index >= len(points) {
			return nil, usdError(r.layer.name, indicesVal.line, `face vertex index %d out of range for "%s" (%d points)`, index, prim.path, len(points))
		}
	}

	normals, normalsInterp, err := r.meshVec3Attr(prim, []string{"normals", "primvars:normals"}, len(points), totalCorners, len(counts))
	if err != nil {
		return nil, err
	}
	uvs, uvsInterp, err := r.meshVec2Attr(prim, []string{"primvars:st", "primvars:uv"}, len(points), totalCorners, len(counts))
	if err != nil {
		return nil, err
	}

	mesh := scene.NewMesh(prim.name)
	needSplit := normalsInterp == interpFaceVarying || normalsInterp == interpUniform ||
		uvsInterp == interpFaceVarying || uvsInterp == interpUniform

	if !needSplit {
		mesh.Vertices = points
		if normalsInterp == interpVertex {
			mesh.Normals = normals
		}
		if uvsInterp == interpVertex {
			mesh.UVs = uvs
		}

		offset := 0
		for _, count := range counts {
			face := scene.Face{Indices: make([]uint32, count)}
			for corner := 0; corner < count; corner++ {
				face.Indices[corner] = uint32(indices[offset+corner])
			}
			mesh.Faces = append(mesh.Faces, face)
			offset += count
		}
	} else {
		offset := 0
		for faceIndex, count := range counts {
			face := scene.Face{Indices: make([]uint32, count)}
			for corner := 0; corner < count; corner++ {
				pointIndex := indices[offset+corner]
				face.Indices[corner] = uint32(len(mesh.Vertices))
				mesh.Vertices = append(mesh.Vertices, points[pointIndex])

				switch normalsInterp {
				case interpVertex:
					mesh.Normals = append(mesh.Normals, normals[pointIndex])
				case interpFaceVarying:
					mesh.Normals = append(mesh.Normals, normals[offset+corner])
				case interpUniform:
					mesh.Normals = append(mesh.Normals, normals[faceIndex])
				}
				switch uvsInterp {
				case interpVertex:
					mesh.UVs = append(mesh.UVs, uvs[pointIndex])
				case interpFaceVarying:
					mesh.UVs = append(mesh.UVs, uvs[offset+corner])
				case interpUniform:
					mesh.UVs = append(mesh.UVs, uvs[faceIndex])
				}
			}
			mesh.Faces = append(mesh.Faces, face)
			offset += count
		}
	}

	mesh.MaterialIndex = r.resolveMaterial(binding)
	return mesh, nil
}

// Classify attribute interpolation from its element count.
func classifyInterp(elements, points, corners, faces int) usdInterp {
	switch elements {
	case 0:
		return interpAbsent
	case points:
		return interpVertex
	case corners:
		return interpFaceVarying
	case faces:
		return interpUniform
	}
	return interpInvalid
}

func (r *usdReader) meshVec3Attr(prim *usdPrim, names []string, points, corners, faces int) ([]types.Vec3, usdInterp, error) {
	for _, name := range names {
		val, exists := prim.attrs[name]
		if !exists {
			continue
		}
		vecs, err := usdVec3s(val.raw)
		if err != nil {
			return nil, interpAbsent, usdError(r.layer.name, val.line, `invalid %s for "%s": %v`, name, prim.path, err)
		}
		interp := classifyInterp(len(vecs), points, corners, faces)
		if interp == interpInvalid {
			r.logger.Warningf(`ignoring %s of "%s": %d elements do not match any interpolation`, name, prim.path, len(vecs))
			return nil, interpAbsent, nil
		}
		return vecs, interp, nil
	}
	return nil, interpAbsent, nil
}

func (r *usdReader) meshVec2Attr(prim *usdPrim, names []string, points, corners, faces int) ([]types.Vec2, usdInterp, error) {
	for _, name := range names {
		val, exists := prim.attrs[name]
		if !exists {
			continue
		}
		vecs, err := usdVec2s(val.raw)
		if err != nil {
			return nil, interpAbsent, usdError(r.layer.name, val.line, `invalid %s for "%s": %v`, name, prim.path, err)
		}
		interp := classifyInterp(len(vecs), points, corners, faces)
		if interp == interpInvalid {
			r.logger.Warningf(`ignoring %s of "%s": %d elements do not match any interpolation`, name, prim.path, len(vecs))
			return nil, interpAbsent, nil
		}
		return vecs, interp, nil
	}
	return nil, interpAbsent, nil
}

// Resolve a material binding path into a scene material index, creating the
// material from its UsdPreviewSurface shader on first use.
func (r *usdReader) resolveMaterial(binding string) int32 {
	if binding == "" {
		return -1
	}
	if index, exists := r.matPathToIndex[binding]; exists {
		return index
	}

	matPrim := r.layer.byPath[binding]
	if matPrim == nil || matPrim.typeName != "Material" {
		r.logger.Warningf(`mesh references unknown material "%s"`, binding)
		r.matPathToIndex[binding] = -1
		return -1
	}

	mat := scene.NewMaterial(matPrim.name)
	if shader := r.findSurfaceShader(matPrim); shader != nil {
		r.applyPreviewSurface(shader, mat)
	}

	r.sc.Materials = append(r.sc.Materials, mat)
	index := int32(len(r.sc.Materials) - 1)
	r.matPathToIndex[binding] = index
	return index
}

// Locate the preview surface shader of a material, either through its
// outputs:surface connection or by scanning its children.
func (r *usdReader) findSurfaceShader(matPrim *usdPrim) *usdPrim {
	if target, exists := matPrim.connects["outputs:surface"]; exists {
		if shader := r.layer.byPath[usdPrimPath(target)]; shader != nil {
			return shader
		}
	}
	for _, child := range matPrim.children {
		if child.typeName == "Shader" && child.token("info:id") == "UsdPreviewSurface" {
			return child
		}
	}
	return nil
}

// Map UsdPreviewSurface inputs onto the scene material parameters.
func (r *usdReader) applyPreviewSurface(shader *usdPrim, mat *scene.Material) {
	vec3Inputs := []struct {
		name   string
		target *types.Vec3
	}{
		{"inputs:diffuseColor", &mat.Kd},
		{"inputs:specularColor", &mat.Ks},
		{"inputs:emissiveColor", &mat.Ke},
	}
	for _, input := range vec3Inputs {
		val, exists := shader.attrs[input.name]
		if !exists {
			continue
		}
		v, err := usdVec3(val.raw)
		if err != nil {
			r.logger.Warningf(`ignoring malformed %s on "%s": %v`, input.name, shader.path, err)
			continue
		}
		*input.target = v
	}

	scalarInputs := []struct {
		name   string
		target *float32
	}{
		{"inputs:roughness", &mat.Roughness},
		{"inputs:metallic", &mat.Metallic},
		{"inputs:opacity", &mat.Opacity},
		{"inputs:ior", &mat.Ni},
	}
	for _, input := range scalarInputs {
		val, exists := shader.attrs[input.name]
		if !exists {
			continue
		}
		v, err := usdFloat(val.raw)
		if err != nil {
			r.logger.Warningf(`ignoring malformed %s on "%s": %v`, input.name, shader.path, err)
			continue
		}
		*input.target = v
	}

	texInputs := []struct {
		name   string
		target *int32
	}{
		{"inputs:diffuseColor", &mat.KdTex},
		{"inputs:specularColor", &mat.KsTex},
		{"inputs:emissiveColor", &mat.KeTex},
		{"inputs:normal", &mat.NormalTex},
	}
	for _, input := range texInputs {
		target, exists := shader.connects[input.name]
		if !exists {
			continue
		}
		texPrim := r.layer.byPath[usdPrimPath(target)]
		if texPrim == nil || texPrim.token("info:id") != "UsdUVTexture" {
			continue
		}
		fileVal, exists := texPrim.attrs["inputs:file"]
		if !exists {
			continue
		}
		*input.target = r.loadTexture(usdAsset(fileVal.raw))
	}
}

// Load a texture referenced by a shader. Load failures are logged and
// reported as a missing texture index.
func (r *usdReader) loadTexture(pathToTexture string) int32 {
	if pathToTexture == "" {
		return -1
	}
	if texIndex, exists := r.texPathToIndex[pathToTexture]; exists {
		return texIndex
	}

	texRes, err := r.resolveAsset(pathToTexture)
	if err != nil {
		r.logger.Warningf(`skipping missing texture "%s": %v`, pathToTexture, err)
		r.texPathToIndex[pathToTexture] = -1
		return -1
	}
	tex, err := texture.New(texRes)
	texRes.Close()
	if err != nil {
		r.logger.Warningf(`skipping unreadable texture "%s": %v`, pathToTexture, err)
		r.texPathToIndex[pathToTexture] = -1
		return -1
	}

	r.sc.Textures = append(r.sc.Textures, tex)
	texIndex := int32(len(r.sc.Textures) - 1)
	r.texPathToIndex[pathToTexture] = texIndex
	return texIndex
}

// The usda layer parser. It runs line oriented: prim definitions open scopes,
// attribute values continue across lines until their brackets balance.
type usdParser struct {
	layer   *usdLayer
	scanner *bufio.Scanner
	lineNum int

	// Open prim scopes. Nil entries track blocks the parser skips over
	// (variant sets e.t.c) so closing braces stay balanced.
	stack   []*usdPrim
	pending *usdPrim
	sawPrim bool
}

func usdError(layerName string, line int, msgFormat string, args ...interface{}) error {
	return fmt.Errorf("[%s: %d] error: %s", layerName, line, fmt.Sprintf(msgFormat, args...))
}

// Parse a usda layer into its prim forest.
func parseUsdLayer(name string, data []byte) (*usdLayer, error) {
	p := &usdParser{
		layer: &usdLayer{
			name:          name,
			metersPerUnit: 1,
			byPath:        make(map[string]*usdPrim, 0),
		},
		scanner: bufio.NewScanner(bytes.NewReader(data)),
	}
	// Exporters commonly place an entire mesh attribute on a single line.
	p.scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	for p.scanner.Scan() {
		p.lineNum++
		if err := p.processLine(stripUsdComment(p.scanner.Text())); err != nil {
			return nil, err
		}
	}
	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("usd: could not scan layer %s: %v", name, err)
	}
	if len(p.stack) != 0 || p.pending != nil {
		return nil, usdError(name, p.lineNum, "unexpected end of layer; unbalanced prim blocks")
	}
	return p.layer, nil
}

func (p *usdParser) currentPrim() *usdPrim {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *usdParser) processLine(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if p.pending != nil {
		return p.handlePending(text)
	}

	switch {
	case strings.HasPrefix(text, "def ") || strings.HasPrefix(text, "over ") || strings.HasPrefix(text, "class "):
		return p.parseDef(text)
	case text[0] == '}':
		if len(p.stack) == 0 {
			return usdError(p.layer.name, p.lineNum, "unbalanced closing brace")
		}
		p.stack = p.stack[:len(p.stack)-1]
		return p.processLine(text[1:])
	case text[0] == '(':
		content, remainder, err := p.consumeBalanced(text, '(', ')')
		if err != nil {
			return err
		}
		if len(p.stack) == 0 && !p.sawPrim {
			p.parseLayerMeta(content)
		}
		return p.processLine(remainder)
	case strings.HasSuffix(text, "{"):
		// An unsupported block (variant sets e.t.c); skip its subtree.
		p.stack = append(p.stack, nil)
		return nil
	case indexUnquoted(text, '=') != -1:
		return p.parseAttr(text)
	}
	return nil
}

// Parse a def/over/class statement. Metadata parentheses after the prim name
// are skipped; the prim scope opens when its brace is reached.
func (p *usdParser) parseDef(text string) error {
	space := strings.IndexByte(text, ' ')
	if space == -1 {
		return usdError(p.layer.name, p.lineNum, "malformed prim definition %q", text)
	}
	rest := strings.TrimSpace(text[space+1:])

	quoteStart := strings.IndexByte(rest, '"')
	if quoteStart == -1 {
		return usdError(p.layer.name, p.lineNum, "malformed prim definition %q", text)
	}
	nameLen := strings.IndexByte(rest[quoteStart+1:], '"')
	if nameLen == -1 {
		return usdError(p.layer.name, p.lineNum, "malformed prim definition %q", text)
	}

	p.pending = &usdPrim{
		typeName: strings.TrimSpace(rest[:quoteStart]),
		name:     rest[quoteStart+1 : quoteStart+1+nameLen],
		line:     p.lineNum,
		attrs:    make(map[string]usdValue, 0),
		rels:     make(map[string]string, 0),
		connects: make(map[string]string, 0),
	}
	p.sawPrim = true
	return p.handlePending(strings.TrimSpace(rest[quoteStart+nameLen+2:]))
}

func (p *usdParser) handlePending(text string) error {
	for text != "" {
		switch text[0] {
		case '(':
			_, remainder, err := p.consumeBalanced(text, '(', ')')
			if err != nil {
				return err
			}
			text = strings.TrimSpace(remainder)
		case '{':
			p.openPending()
			return p.processLine(text[1:])
		default:
			return usdError(p.layer.name, p.lineNum, "unexpected token %q after prim definition", text)
		}
	}
	return nil
}

// Attach the pending prim to the tree and open its scope.
func (p *usdParser) openPending() {
	prim := p.pending
	p.pending = nil

	// Prims inside skipped blocks are skipped along with them.
	if len(p.stack) > 0 && p.currentPrim() == nil {
		p.stack = append(p.stack, nil)
		return
	}

	if parent := p.currentPrim(); parent != nil {
		prim.path = parent.path + "/" + prim.name
		parent.children = append(parent.children, prim)
	} else {
		prim.path = "/" + prim.name
		p.layer.roots = append(p.layer.roots, prim)
	}
	p.layer.byPath[prim.path] = prim
	p.stack = append(p.stack, prim)
}

// Parse an attribute or relationship statement.
func (p *usdParser) parseAttr(text string) error {
	eq := indexUnquoted(text, '=')
	lhs := strings.Fields(strings.TrimSpace(text[:eq]))
	rhs := strings.TrimSpace(text[eq+1:])
	line := p.lineNum

	for len(lhs) > 0 {
		switch lhs[0] {
		case "uniform", "custom", "varying", "prepend", "append", "add", "delete":
			lhs = lhs[1:]
			continue
		}
		break
	}
	if len(lhs) == 0 {
		_, err := p.scanValue(rhs)
		return err
	}

	// Dictionary values only appear in metadata we do not consume.
	if strings.HasPrefix(rhs, "{") {
		_, _, err := p.consumeBalanced(rhs, '{', '}')
		return err
	}

	prim := p.currentPrim()
	if lhs[0] == "rel" {
		value, err := p.scanValue(rhs)
		if err != nil {
			return err
		}
		if prim != nil && len(lhs) >= 2 {
			prim.rels[lhs[len(lhs)-1]] = usdPathTarget(value)
		}
		return nil
	}

	value, err := p.scanValue(rhs)
	if err != nil {
		return err
	}
	if prim == nil {
		return nil
	}

	name := lhs[len(lhs)-1]
	if strings.HasSuffix(name, ".connect") {
		prim.connects[strings.TrimSuffix(name, ".connect")] = usdPathTarget(value)
		return nil
	}
	prim.attrs[name] = usdValue{
		valType: strings.Join(lhs[:len(lhs)-1], " "),
		raw:     value,
		line:    line,
	}
	return nil
}

// Scan an attribute value, continuing across lines until its brackets
// balance. Trailing attribute metadata parentheses are consumed and dropped.
func (p *usdParser) scanValue(rhs string) (string, error) {
	text := strings.TrimSpace(rhs)
	if text == "" {
		return "", nil
	}

	switch text[0] {
	case '[', '(':
		closeByte := byte(']')
		if text[0] == '(' {
			closeByte = ')'
		}
		value, remainder, err := p.consumeBalanced(text, text[0], closeByte)
		if err != nil {
			return "", err
		}
		remainder = strings.TrimSpace(remainder)
		if strings.HasPrefix(remainder, "(") {
			if _, _, err = p.consumeBalanced(remainder, '(', ')'); err != nil {
				return "", err
			}
		}
		return value, nil
	default:
		if metaStart := indexUnquoted(text, '('); metaStart != -1 {
			value := strings.TrimSpace(text[:metaStart])
			if _, _, err := p.consumeBalanced(text[metaStart:], '(', ')'); err != nil {
				return "", err
			}
			return value, nil
		}
		return text, nil
	}
}

// Consume text until the opening bracket at its start balances, pulling in
// additional lines as needed. Quoted strings and asset paths are opaque.
func (p *usdParser) consumeBalanced(text string, open, close byte) (string, string, error) {
	var sb strings.Builder
	depth := 0
	inQuote := false
	inAsset := false

	cur := text
	for {
		for i := 0; i < len(cur); i++ {
			ch := cur[i]
			switch {
			case inQuote:
				if ch == '"' {
					inQuote = false
				}
			case inAsset:
				if ch == '@' {
					inAsset = false
				}
			case ch == '"':
				inQuote = true
			case ch == '@':
				inAsset = true
			case ch == open:
				depth++
			case ch == close:
				depth--
				if depth == 0 {
					sb.WriteString(cur[:i+1])
					return sb.String(), cur[i+1:], nil
				}
			}
		}

		sb.WriteString(cur)
		sb.WriteByte('\n')
		if !p.scanner.Scan() {
			return "", "", usdError(p.layer.name, p.lineNum, "unterminated value")
		}
		p.lineNum++
		cur = stripUsdComment(p.scanner.Text())
	}
}

// Parse layer metadata entries such as defaultPrim, upAxis and metersPerUnit.
func (p *usdParser) parseLayerMeta(content string) {
	inner := strings.TrimSuffix(strings.TrimPrefix(content, "("), ")")
	for _, line := range strings.Split(inner, "\n") {
		line = strings.TrimSpace(line)
		eq := strings.IndexByte(line, '=')
		if eq == -1 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		switch key {
		case "defaultPrim":
			p.layer.defaultPrim = usdQuoted(value)
		case "upAxis":
			p.layer.upAxis = usdQuoted(value)
		case "metersPerUnit":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				p.layer.metersPerUnit = v
			}
		}
	}
}

// Cut a trailing comment, ignoring # characters inside strings and asset
// paths.
func stripUsdComment(line string) string {
	inQuote := false
	inAsset := false
	for i := 0; i < len(line); i++ {
		switch ch := line[i]; {
		case inQuote:
			if ch == '"' {
				inQuote = false
			}
		case inAsset:
			if ch == '@' {
				inAsset = false
			}
		case ch == '"':
			inQuote = true
		case ch == '@':
			inAsset = true
		case ch == '#':
			return line[:i]
		}
	}
	return line
}

// Index of the first unquoted occurrence of a byte or -1.
func indexUnquoted(text string, target byte) int {
	inQuote := false
	inAsset := false
	for i := 0; i < len(text); i++ {
		switch ch := text[i]; {
		case inQuote:
			if ch == '"' {
				inQuote = false
			}
		case inAsset:
			if ch == '@' {
				inAsset = false
			}
		case ch == '"':
			inQuote = true
		case ch == '@':
			inAsset = true
		case ch == target:
			return i
		}
	}
	return -1
}

// Extract all float scalars from a value, ignoring tuple and array
// punctuation.
func usdFloats(raw string) ([]float32, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '(' || r == ')' || r == '[' || r == ']' || r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]float32, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed numeric value %q", field)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func usdFloat(raw string) (float32, error) {
	floats, err := usdFloats(raw)
	if err != nil {
		return 0, err
	}
	if len(floats) != 1 {
		return 0, fmt.Errorf("expected a single scalar; got %d values", len(floats))
	}
	return floats[0], nil
}

func usdInts(raw string) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '(' || r == ')' || r == '[' || r == ']' || r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]int, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseInt(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed integer value %q", field)
		}
		out = append(out, int(v))
	}
	return out, nil
}

func usdVec3(raw string) (types.Vec3, error) {
	floats, err := usdFloats(raw)
	if err != nil {
		return types.Vec3{}, err
	}
	if len(floats) != 3 {
		return types.Vec3{}, fmt.Errorf("expected 3 components; got %d", len(floats))
	}
	return types.Vec3{floats[0], floats[1], floats[2]}, nil
}

func usdVec3s(raw string) ([]types.Vec3, error) {
	floats, err := usdFloats(raw)
	if err != nil {
		return nil, err
	}
	if len(floats)%3 != 0 {
		return nil, fmt.Errorf("expected a multiple of 3 components; got %d", len(floats))
	}
	out := make([]types.Vec3, len(floats)/3)
	for i := range out {
		out[i] = types.Vec3{floats[i*3], floats[i*3+1], floats[i*3+2]}
	}
	return out, nil
}

func usdVec2s(raw string) ([]types.Vec2, error) {
	floats, err := usdFloats(raw)
	if err != nil {
		return nil, err
	}
	if len(floats)%2 != 0 {
		return nil, fmt.Errorf("expected a multiple of 2 components; got %d", len(floats))
	}
	out := make([]types.Vec2, len(floats)/2)
	for i := range out {
		out[i] = types.Vec2{floats[i*2], floats[i*2+1]}
	}
	return out, nil
}

// The text between the first pair of double quotes.
func usdQuoted(raw string) string {
	start := strings.IndexByte(raw, '"')
	if start == -1 {
		return strings.TrimSpace(raw)
	}
	length := strings.IndexByte(raw[start+1:], '"')
	if length == -1 {
		return raw[start+1:]
	}
	return raw[start+1 : start+1+length]
}

// All quoted tokens in a list value.
func usdTokens(raw string) []string {
	var out []string
	for {
		start := strings.IndexByte(raw, '"')
		if start == -1 {
			return out
		}
		length := strings.IndexByte(raw[start+1:], '"')
		if length == -1 {
			return out
		}
		out = append(out, raw[start+1:start+1+length])
		raw = raw[start+length+2:]
	}
}

// The asset path between @ markers.
func usdAsset(raw string) string {
	start := strings.IndexByte(raw, '@')
	if start == -1 {
		return strings.TrimSpace(raw)
	}
	length := strings.IndexByte(raw[start+1:], '@')
	if length == -1 {
		return raw[start+1:]
	}
	return raw[start+1 : start+1+length]
}

// The first relationship target between < and > markers.
func usdPathTarget(raw string) string {
	start := strings.IndexByte(raw, '<')
	if start == -1 {
		return ""
	}
	length := strings.IndexByte(raw[start+1:], '>')
	if length == -1 {
		return ""
	}
	return raw[start+1 : start+1+length]
}

// Strip a property suffix from a target path, leaving the prim path.
func usdPrimPath(target string) string {
	if i := strings.LastIndexByte(target, '.'); i != -1 {
		return target[:i]
	}
	return target
}
