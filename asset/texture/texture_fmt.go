package texture

type Format uint32

const (
	Luminance8 Format = iota
	Luminance32F
	Rgba8
	Rgba32F
)

// Return the number of bytes used to store a single pixel.
func (f Format) BytesPerPixel() int {
	switch f {
	case Luminance8:
		return 1
	case Luminance32F:
		return 4
	case Rgba8:
		return 4
	case Rgba32F:
		return 16
	}
	return 0
}
