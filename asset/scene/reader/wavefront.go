package reader

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Dandelight/sceneport/asset"
	"github.com/Dandelight/sceneport/asset/scene"
	"github.com/Dandelight/sceneport/asset/texture"
	"github.com/Dandelight/sceneport/log"
	"github.com/Dandelight/sceneport/types"
)

// A vertex/uv/normal index combination referenced by a face argument.
// Missing components are set to -1.
type objTriplet struct {
	v, vt, vn int
}

// A mesh reference combined with a node transform.
type objInstance struct {
	meshIndex uint32
	transform types.Mat4
}

type wavefrontReader struct {
	logger log.Logger

	// The scene being assembled.
	sc *scene.Scene

	// A map of material names to scene material indices.
	matNameToIndex map[string]int32

	// A map of texture paths to scene texture indices.
	texPathToIndex map[string]int32

	// Currently selected material.
	curMaterial int32

	// The mesh being assembled together with a map of encountered index
	// triplets to mesh vertex indices.
	curMesh        *scene.Mesh
	curTriplets    map[objTriplet]uint32
	meshHasNormals bool
	meshHasUVs     bool

	// Parsed mesh instances.
	instances []objInstance

	// List of vertices, normals and uv coords shared by all parsed objects.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// An error stack that provides additional error information when
	// scene files include other files (mat libs e.t.c)
	errStack []string
}

// Create a new wavefront obj reader.
func newWavefrontReader() *wavefrontReader {
	return &wavefrontReader{
		logger:         log.New("wavefront reader"),
		sc:             scene.NewScene(),
		matNameToIndex: make(map[string]int32, 0),
		texPathToIndex: make(map[string]int32, 0),
		curMaterial:    -1,
		vertexList:     make([]types.Vec3, 0),
		normalList:     make([]types.Vec3, 0),
		uvList:         make([]types.Vec2, 0),
		errStack:       make([]string, 0),
	}
}

// Read scene definition.
func (r *wavefrontReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	r.logger.Infof(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	err := r.parse(sceneRes)
	if err != nil {
		return nil, err
	}
	r.finishMesh()

	rootName := strings.TrimSuffix(filepath.Base(sceneRes.Path()), filepath.Ext(sceneRes.Path()))
	r.buildGraph(rootName)

	if len(r.sc.Meshes) == 0 {
		r.sc.Flags |= scene.FlagIncomplete
	}

	r.logger.Infof("parsed scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return r.sc, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = strings.Trim(
			fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	} else {
		errMsg = strings.Trim(
			fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	}

	return errors.New(errMsg)
}

// Push a frame to the error stack.
func (r *wavefrontReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Parse wavefront object scene format.
func (r *wavefrontReader) parse(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "mtllib"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [mtllib]", res.Path(), lineNum))

			matRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err)
			}
			defer matRes.Close()

			if err = r.parseMaterials(matRes); err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName := lineTokens[1]
			matIndex, exists := r.matNameToIndex[matName]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, matName)
			}

			// Meshes bind a single material. A material switch after
			// faces have been emitted starts a sibling mesh.
			if r.curMesh != nil && len(r.curMesh.Faces) > 0 && r.curMesh.MaterialIndex != matIndex {
				r.startMesh(r.curMesh.Name)
			}
			r.curMaterial = matIndex
			if r.curMesh != nil {
				r.curMesh.MaterialIndex = matIndex
			}
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err)
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err)
			}
			r.normalList = append(r.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err)
			}
			r.uvList = append(r.uvList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			r.startMesh(lineTokens[1])
		case "f":
			if err = r.parseFace(lineTokens); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err)
			}
		case "instance":
			instance, err := r.parseMeshInstance(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err)
			}
			r.instances = append(r.instances, instance)
		}
	}

	return nil
}

// Start assembling a new named mesh bound to the active material.
func (r *wavefrontReader) startMesh(name string) {
	r.finishMesh()

	mesh := scene.NewMesh(name)
	mesh.MaterialIndex = r.curMaterial
	r.sc.Meshes = append(r.sc.Meshes, mesh)
	r.curMesh = mesh
	r.curTriplets = make(map[objTriplet]uint32, 0)
}

// Finalize the mesh being assembled: drop it if it contains no polygons and
// strip attribute lists that no face argument referenced.
func (r *wavefrontReader) finishMesh() {
	if r.curMesh == nil {
		return
	}

	if len(r.curMesh.Faces) == 0 {
		r.logger.Warningf(`dropping mesh "%s" as it contains no polygons`, r.curMesh.Name)
		r.sc.Meshes = r.sc.Meshes[:len(r.sc.Meshes)-1]
	} else {
		if !r.meshHasNormals {
			r.curMesh.Normals = nil
		}
		if !r.meshHasUVs {
			r.curMesh.UVs = nil
		}
	}

	r.curMesh = nil
	r.curTriplets = nil
	r.meshHasNormals = false
	r.meshHasUVs = false
}

// Attach parsed meshes to a node hierarchy. When the file defines no
// instances each mesh is referenced once by the root node; otherwise each
// instance becomes a child node carrying its transform.
func (r *wavefrontReader) buildGraph(rootName string) {
	root := scene.NewNode(rootName)
	if len(r.instances) == 0 {
		for meshIndex := range r.sc.Meshes {
			root.MeshIndices = append(root.MeshIndices, uint32(meshIndex))
		}
	} else {
		for instIndex, instance := range r.instances {
			node := scene.NewNode(fmt.Sprintf("%s.%d", r.sc.Meshes[instance.meshIndex].Name, instIndex))
			node.Transform = instance.transform
			node.MeshIndices = append(node.MeshIndices, instance.meshIndex)
			root.Children = append(root.Children, node)
		}
	}
	r.sc.Root = root
}

// Create and select a default material for surfaces not using one.
func (r *wavefrontReader) defaultMaterial() int32 {
	matName := "default"

	matIndex, exists := r.matNameToIndex[matName]
	if !exists {
		r.sc.Materials = append(r.sc.Materials, scene.NewMaterial(matName))
		matIndex = int32(len(r.sc.Materials) - 1)
		r.matNameToIndex[matName] = matIndex
	}
	return matIndex
}

// Parse face definition. Each face consists of 3 or more arguments, one per
// vertex. Each one of the vertex arguments is comprised of 1, 2 or 3 indices
// separated by a slash character. The following formats are supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate an offset off the end
// of the vertex/uv/normal list.
func (r *wavefrontReader) parseFace(lineTokens []string) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	if r.curMesh == nil {
		r.startMesh("default")
	}
	if r.curMesh.MaterialIndex == -1 {
		r.curMesh.MaterialIndex = r.defaultMaterial()
		r.curMaterial = r.curMesh.MaterialIndex
	}

	face := scene.Face{Indices: make([]uint32, 0, len(lineTokens)-1)}
	expIndices := 0
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		index, err := r.resolveFaceArg(arg, vTokens)
		if err != nil {
			return err
		}
		face.Indices = append(face.Indices, index)
	}

	r.curMesh.Faces = append(r.curMesh.Faces, face)
	return nil
}

// Resolve a face argument into a mesh vertex index, allocating a new mesh
// vertex for triplets that have not been referenced before.
func (r *wavefrontReader) resolveFaceArg(arg int, vTokens []string) (uint32, error) {
	var err error

	// Faces must at least define a vertex coord
	if vTokens[0] == "" {
		return 0, fmt.Errorf("face argument %d does not include a vertex index", arg)
	}

	trip := objTriplet{v: -1, vt: -1, vn: -1}
	trip.v, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList))
	if err != nil {
		return 0, fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
	}
	if len(vTokens) > 1 && vTokens[1] != "" {
		trip.vt, err = selectFaceCoordIndex(vTokens[1], len(r.uvList))
		if err != nil {
			return 0, fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
		}
	}
	if len(vTokens) > 2 && vTokens[2] != "" {
		trip.vn, err = selectFaceCoordIndex(vTokens[2], len(r.normalList))
		if err != nil {
			return 0, fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
		}
	}

	if index, exists := r.curTriplets[trip]; exists {
		return index, nil
	}

	index := uint32(len(r.curMesh.Vertices))
	r.curMesh.Vertices = append(r.curMesh.Vertices, r.vertexList[trip.v])

	var uv types.Vec2
	if trip.vt != -1 {
		uv = r.uvList[trip.vt]
		r.meshHasUVs = true
	}
	r.curMesh.UVs = append(r.curMesh.UVs, uv)

	var normal types.Vec3
	if trip.vn != -1 {
		normal = r.normalList[trip.vn]
		r.meshHasNormals = true
	}
	r.curMesh.Normals = append(r.curMesh.Normals, normal)

	r.curTriplets[trip] = index
	return index, nil
}

// Parse mesh instance definition. Definitions use the following format:
// instance mesh_name tX tY tZ yaw pitch roll sX sY sZ
// where:
// - tX, tY, tZ       : translation vector
// - yaw, pitch, roll : rotation angles in degrees
// - sX, sY, sZ	      : scale
//
// Instances must appear after the mesh they reference.
func (r *wavefrontReader) parseMeshInstance(lineTokens []string) (objInstance, error) {
	if len(lineTokens) != 11 {
		return objInstance{}, fmt.Errorf(`unsupported syntax for "instance"; expected 10 arguments: mesh_name tX tY tZ yaw pitch roll sX sY sZ; got %d`, len(lineTokens)-1)
	}

	// Find object by name
	meshName := lineTokens[1]
	meshIndex := -1
	for index, mesh := range r.sc.Meshes {
		if mesh.Name == meshName {
			meshIndex = index
			break
		}
	}
	if meshIndex == -1 {
		return objInstance{}, fmt.Errorf(`unknown mesh with name "%s"`, meshName)
	}

	var translation, rotation, scale types.Vec3

	// Parse translation
	for index := 2; index < 5; index++ {
		v, err := strconv.ParseFloat(lineTokens[index], 32)
		if err != nil {
			return objInstance{}, err
		}
		translation[index-2] = float32(v)
	}

	// Parse rotation angles and convert to radians
	for index := 5; index < 8; index++ {
		v, err := strconv.ParseFloat(lineTokens[index], 32)
		if err != nil {
			return objInstance{}, err
		}
		v *= math.Pi / 180.0
		rotation[index-5] = float32(v)
	}

	// Parse scale
	for index := 8; index < 11; index++ {
		v, err := strconv.ParseFloat(lineTokens[index], 32)
		if err != nil {
			return objInstance{}, err
		}
		scale[index-8] = float32(v)
	}

	// Generate final matrix: M = T * R * S
	yawQuat := types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, rotation[0])
	pitchQuat := types.QuatFromAxisAngle(types.Vec3{0, 1, 0}, rotation[1])
	rollQuat := types.QuatFromAxisAngle(types.Vec3{0, 0, 1}, rotation[2])
	rotMat := rollQuat.Mul(pitchQuat.Mul(yawQuat)).Normalize().Mat4()

	return objInstance{
		meshIndex: uint32(meshIndex),
		transform: types.Translate4(translation).Mul4(rotMat).Mul4(types.Scale4(scale)),
	}, nil
}

// Parse a wavefront material library.
func (r *wavefrontReader) parseMaterials(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)

	var curMaterial *scene.Material = nil

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName := lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			curMaterial = scene.NewMaterial(matName)
			r.sc.Materials = append(r.sc.Materials, curMaterial)
			r.matNameToIndex[matName] = int32(len(r.sc.Materials) - 1)
		default:
			if curMaterial == nil {
				return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
			}

			switch lineTokens[0] {
			case "Kd":
				curMaterial.Kd, err = parseVec3(lineTokens)
			case "Ks":
				curMaterial.Ks, err = parseVec3(lineTokens)
			case "Ke":
				curMaterial.Ke, err = parseVec3(lineTokens)
			case "Ni":
				curMaterial.Ni, err = parseFloat32(lineTokens)
			case "Ns":
				// Specular exponents in the [0, 1000] range map
				// inversely onto roughness.
				var exponent float32
				exponent, err = parseFloat32(lineTokens)
				if err == nil {
					curMaterial.Roughness = clamp01(1.0 - exponent/1000.0)
				}
			case "d":
				curMaterial.Opacity, err = parseFloat32(lineTokens)
			case "Tr":
				var transparency float32
				transparency, err = parseFloat32(lineTokens)
				if err == nil {
					curMaterial.Opacity = clamp01(1.0 - transparency)
				}
			case "map_Kd", "map_Ks", "map_Ke", "map_bump", "map_normal":
				if len(lineTokens) < 2 {
					return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
				}

				texIndex := r.loadTexture(lineTokens[len(lineTokens)-1], res)
				switch lineTokens[0] {
				case "map_Kd":
					curMaterial.KdTex = texIndex
				case "map_Ks":
					curMaterial.KsTex = texIndex
				case "map_Ke":
					curMaterial.KeTex = texIndex
				case "map_bump", "map_normal":
					curMaterial.NormalTex = texIndex
				}
			}

			// Report any errors
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err)
			}
		}
	}

	return nil
}

// Load a texture relative to the material library that references it. Load
// failures are logged and reported as a missing texture index so that a bad
// map reference does not abort the scene parse.
func (r *wavefrontReader) loadTexture(pathToTexture string, relTo *asset.Resource) int32 {
	if texIndex, exists := r.texPathToIndex[pathToTexture]; exists {
		return texIndex
	}

	texRes, err := asset.NewResource(pathToTexture, relTo)
	if err != nil {
		r.logger.Warningf(`skipping missing texture "%s": %v`, pathToTexture, err)
		return -1
	}
	defer texRes.Close()

	tex, err := texture.New(texRes)
	if err != nil {
		r.logger.Warningf(`skipping unreadable texture "%s": %v`, pathToTexture, err)
		return -1
	}

	r.sc.Textures = append(r.sc.Textures, tex)
	texIndex := int32(len(r.sc.Textures) - 1)
	r.texPathToIndex[pathToTexture] = texIndex
	return texIndex
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = int(index - 1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
