package scene

import (
	"github.com/Dandelight/sceneport/types"
)

// A material consists of a set of vector and scalar parameters that define
// the surface characteristics. In addition, it may reference a set of
// textures that modulate these parameters.
type Material struct {
	Name string

	// Diffuse/Albedo color.
	Kd types.Vec3

	// Specular color.
	Ks types.Vec3

	// Emissive color.
	Ke types.Vec3

	// Index of refraction.
	Ni float32

	// Surface roughness in the [0, 1] range.
	Roughness float32

	// Metalness in the [0, 1] range.
	Metallic float32

	// Opacity in the [0, 1] range where 1 is fully opaque.
	Opacity float32

	// Indices into the scene texture list or -1 when a parameter is not
	// backed by a texture.
	KdTex     int32
	KsTex     int32
	KeTex     int32
	NormalTex int32
}

// Create a new material with neutral defaults.
func NewMaterial(name string) *Material {
	return &Material{
		Name:      name,
		Kd:        types.Vec3{0.7, 0.7, 0.7},
		Ni:        1.0,
		Roughness: 1.0,
		Opacity:   1.0,
		KdTex:     -1,
		KsTex:     -1,
		KeTex:     -1,
		NormalTex: -1,
	}
}

// Return true if material contains a diffuse component.
func (m *Material) IsDiffuse() bool {
	return m.Kd.Len() > 0 || m.KdTex != -1
}

// Return true if material contains a specular component.
func (m *Material) IsSpecular() bool {
	return m.Ks.Len() > 0 || m.KsTex != -1
}

// Return true if material contains an emissive component.
func (m *Material) IsEmissive() bool {
	return m.Ke.Len() > 0 || m.KeTex != -1
}
