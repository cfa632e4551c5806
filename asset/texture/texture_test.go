package texture

import (
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Dandelight/sceneport/asset"
)

func TestRgba8Texture(t *testing.T) {
	imgRes, err := mockImage(t, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	defer imgRes.Close()

	tex, err := New(imgRes)
	if err != nil {
		t.Fatal(err)
	}

	if tex.Width != 1 || tex.Height != 1 {
		t.Fatalf("expected tex dims to be 1x1; got %dx%d", tex.Width, tex.Height)
	}

	if tex.Format != Rgba8 {
		t.Fatalf("expected tex format to be %d; got %d", Rgba8, tex.Format)
	}

	expLen := 4
	if len(tex.Data) != expLen {
		t.Fatalf("expected tex data len to be %d; got %d", expLen, len(tex.Data))
	}

	expName := "test.png"
	if tex.Name != expName {
		t.Fatalf("expected tex name to be %q; got %q", expName, tex.Name)
	}
}

func TestLuminance8Texture(t *testing.T) {
	imgRes, err := mockImage(t, image.NewGray(image.Rect(0, 0, 2, 2)))
	if err != nil {
		t.Fatal(err)
	}
	defer imgRes.Close()

	tex, err := New(imgRes)
	if err != nil {
		t.Fatal(err)
	}

	if tex.Format != Luminance8 {
		t.Fatalf("expected tex format to be %d; got %d", Luminance8, tex.Format)
	}

	expLen := 4
	if len(tex.Data) != expLen {
		t.Fatalf("expected tex data len to be %d; got %d", expLen, len(tex.Data))
	}
}

func TestRgba32Texture(t *testing.T) {
	imgRes, err := mockImage(t, image.NewRGBA64(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	defer imgRes.Close()

	tex, err := New(imgRes)
	if err != nil {
		t.Fatal(err)
	}

	if tex.Format != Rgba32F {
		t.Fatalf("expected tex format to be %d; got %d", Rgba32F, tex.Format)
	}

	expLen := 4 * 4
	if len(tex.Data) != expLen {
		t.Fatalf("expected tex data len to be %d; got %d", expLen, len(tex.Data))
	}
}

func TestStreamHttpTexture(t *testing.T) {
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/texture.png" {
			png.Encode(w, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
		} else {
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	imgRes, err := asset.NewResource(server.URL+"/texture.png", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer imgRes.Close()

	tex, err := New(imgRes)
	if err != nil {
		t.Fatal(err)
	}

	if tex.Width != 1 || tex.Height != 1 {
		t.Fatalf("expected tex dims to be 1x1; got %dx%d", tex.Width, tex.Height)
	}

	if tex.Format != Rgba8 {
		t.Fatalf("expected tex format to be %d; got %d", Rgba8, tex.Format)
	}
}

func TestTextureImageRoundtrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.Pix[0], src.Pix[1], src.Pix[2], src.Pix[3] = 10, 20, 30, 255

	imgRes, err := mockImage(t, src)
	if err != nil {
		t.Fatal(err)
	}
	defer imgRes.Close()

	tex, err := New(imgRes)
	if err != nil {
		t.Fatal(err)
	}

	img, err := tex.Image()
	if err != nil {
		t.Fatal(err)
	}

	out, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("expected roundtripped image to be *image.NRGBA; got %T", img)
	}
	for index, expVal := range src.Pix {
		if out.Pix[index] != expVal {
			t.Fatalf("expected pix value at %d to be %d; got %d", index, expVal, out.Pix[index])
		}
	}
}

func TestTextureImagePayloadMismatch(t *testing.T) {
	tex := &Texture{Format: Rgba8, Width: 2, Height: 2, Data: []byte{0}}
	if _, err := tex.Image(); err == nil {
		t.Fatal("expected payload size mismatch to trigger an error")
	}
}

func mockImage(t *testing.T, img image.Image) (*asset.Resource, error) {
	t.Helper()

	imgFile := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(imgFile)
	if err != nil {
		return nil, err
	}

	err = png.Encode(f, img)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.Close()

	return asset.NewResource(imgFile, nil)
}
