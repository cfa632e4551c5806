package types

// A 4x4 matrix stored in column-major order. Transforms use the column-vector
// convention: transformed = M * v.
type Mat4 [16]float32

// Generate a 4x4 identity matrix.
func Ident4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Generate a translation matrix.
func Translate4(v Vec3) Mat4 {
	m := Ident4()
	m[12] = v[0]
	m[13] = v[1]
	m[14] = v[2]
	return m
}

// Generate a scale matrix.
func Scale4(v Vec3) Mat4 {
	m := Ident4()
	m[0] = v[0]
	m[5] = v[1]
	m[10] = v[2]
	return m
}

// Build a matrix from 4 rows expressed in the row-vector convention
// (transformed = v * M). The rows are transposed into the column-vector
// layout used by this package.
func Mat4FromRows(r0, r1, r2, r3 Vec4) Mat4 {
	return Mat4{
		r0[0], r0[1], r0[2], r0[3],
		r1[0], r1[1], r1[2], r1[3],
		r2[0], r2[1], r2[2], r2[3],
		r3[0], r3[1], r3[2], r3[3],
	}
}

// Multiply two 4x4 matrices.
func (m Mat4) Mul4(m2 Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * m2[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// Multiply a 4x4 matrix with a 4 component vector.
func (m Mat4) Mul4x1(v Vec4) Vec4 {
	return Vec4{
		m[0]*v[0] + m[4]*v[1] + m[8]*v[2] + m[12]*v[3],
		m[1]*v[0] + m[5]*v[1] + m[9]*v[2] + m[13]*v[3],
		m[2]*v[0] + m[6]*v[1] + m[10]*v[2] + m[14]*v[3],
		m[3]*v[0] + m[7]*v[1] + m[11]*v[2] + m[15]*v[3],
	}
}

// Transform a point (w=1) by the matrix.
func (m Mat4) TransformPoint(v Vec3) Vec3 {
	return m.Mul4x1(v.Vec4(1)).Vec3()
}

// Transform a direction (w=0) by the matrix and renormalize. Suitable for
// normals under rigid and uniformly scaled transforms.
func (m Mat4) TransformDir(v Vec3) Vec3 {
	return m.Mul4x1(v.Vec4(0)).Vec3().Normalize()
}

// Report whether the matrix is the identity within the comparison epsilon.
func (m Mat4) IsIdent() bool {
	ident := Ident4()
	for i := 0; i < 16; i++ {
		delta := m[i] - ident[i]
		if delta < -floatCmpEpsilon || delta > floatCmpEpsilon {
			return false
		}
	}
	return true
}
