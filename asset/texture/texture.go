package texture

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"

	"github.com/Dandelight/sceneport/asset"
	"github.com/disintegration/imaging"

	// Register the webp decoder in addition to the formats imaging pulls in.
	_ "golang.org/x/image/webp"
)

// A texture image and its metadata.
type Texture struct {
	Format Format

	Width  uint32
	Height uint32

	// The base name of the resource this texture was loaded from.
	Name string

	Data []byte
}

// Create a new texture from a Resource. The pixel payload is normalized to
// one of the supported formats: 8-bit sources map to Luminance8/Rgba8 and
// 16-bit sources map to the float32 formats.
func New(res *asset.Resource) (*Texture, error) {
	img, err := imaging.Decode(res)
	if err != nil {
		return nil, fmt.Errorf("texture: could not decode %s: %v", res.Path(), err)
	}

	bounds := img.Bounds()
	tex := &Texture{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Name:   filepath.Base(res.Path()),
	}

	switch src := img.(type) {
	case *image.Gray:
		tex.Format = Luminance8
		tex.Data = make([]byte, tex.Width*tex.Height)
		for y := 0; y < bounds.Dy(); y++ {
			copy(tex.Data[y*int(tex.Width):(y+1)*int(tex.Width)], src.Pix[y*src.Stride:])
		}
	case *image.Gray16:
		tex.Format = Luminance32F
		samples := make([]float32, tex.Width*tex.Height)
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				v := src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y
				samples[y*bounds.Dx()+x] = float32(v) / 65535.0
			}
		}
		tex.Data = floatsToBytes(samples)
	case *image.RGBA64, *image.NRGBA64:
		tex.Format = Rgba32F
		samples := make([]float32, tex.Width*tex.Height*4)
		offset := 0
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
				samples[offset] = float32(c.R) / 65535.0
				samples[offset+1] = float32(c.G) / 65535.0
				samples[offset+2] = float32(c.B) / 65535.0
				samples[offset+3] = float32(c.A) / 65535.0
				offset += 4
			}
		}
		tex.Data = floatsToBytes(samples)
	default:
		tex.Format = Rgba8
		tex.Data = imaging.Clone(img).Pix
	}

	return tex, nil
}

// Reconstruct an image from the texture payload. Float formats are converted
// down to their 8-bit equivalents.
func (t *Texture) Image() (image.Image, error) {
	rect := image.Rect(0, 0, int(t.Width), int(t.Height))
	expLen := int(t.Width) * int(t.Height) * t.Format.BytesPerPixel()
	if len(t.Data) != expLen {
		return nil, fmt.Errorf("texture: payload size %d does not match %dx%d dims for format %d", len(t.Data), t.Width, t.Height, t.Format)
	}

	switch t.Format {
	case Luminance8:
		img := image.NewGray(rect)
		copy(img.Pix, t.Data)
		return img, nil
	case Luminance32F:
		img := image.NewGray(rect)
		samples := bytesToFloats(t.Data)
		for index, sample := range samples {
			img.Pix[index] = quantize(sample)
		}
		return img, nil
	case Rgba8:
		img := image.NewNRGBA(rect)
		copy(img.Pix, t.Data)
		return img, nil
	case Rgba32F:
		img := image.NewNRGBA(rect)
		samples := bytesToFloats(t.Data)
		for index, sample := range samples {
			img.Pix[index] = quantize(sample)
		}
		return img, nil
	}
	return nil, fmt.Errorf("texture: unsupported format %d", t.Format)
}

// Clamp a normalized sample to the [0, 255] byte range.
func quantize(sample float32) uint8 {
	switch {
	case sample <= 0:
		return 0
	case sample >= 1:
		return 255
	}
	return uint8(sample*255.0 + 0.5)
}

func floatsToBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for index, sample := range samples {
		binary.LittleEndian.PutUint32(data[index*4:], math.Float32bits(sample))
	}
	return data
}

func bytesToFloats(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for index := range samples {
		samples[index] = math.Float32frombits(binary.LittleEndian.Uint32(data[index*4:]))
	}
	return samples
}
