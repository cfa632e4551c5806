package writer

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestFormatRegistry(t *testing.T) {
	expIDs := []string{"obj", "objnomtl", "stl", "stlb", "gltf2", "glb2", "szb"}

	descs := Formats()
	ids := make([]string, 0, len(descs))
	for _, desc := range descs {
		if desc.ID == "" || desc.Description == "" || desc.Extension == "" {
			t.Fatalf("expected descriptor fields to be populated; got %+v", desc)
		}
		ids = append(ids, desc.ID)
	}
	if !reflect.DeepEqual(ids, expIDs) {
		t.Fatalf("expected format registration order %v; got %v", expIDs, ids)
	}
}

func TestExporterFormatEnumeration(t *testing.T) {
	ex := NewExporter()
	if ex.FormatCount() != len(formats) {
		t.Fatalf("expected format count to be %d; got %d", len(formats), ex.FormatCount())
	}

	for index := 0; index < ex.FormatCount(); index++ {
		desc := ex.FormatDescription(index)
		if desc == nil {
			t.Fatalf("expected a descriptor for index %d", index)
		}
		if desc.ID != formats[index].desc.ID {
			t.Fatalf("expected descriptor %d to be %q; got %q", index, formats[index].desc.ID, desc.ID)
		}
	}

	if ex.FormatDescription(-1) != nil || ex.FormatDescription(ex.FormatCount()) != nil {
		t.Fatal("expected out of range indices to yield no descriptor")
	}
}

func TestExporterErrorLifecycle(t *testing.T) {
	ex := NewExporter()

	if err := ex.Export(mockScene(), "bogus", "out.obj"); err == nil {
		t.Fatal("expected to get an unsupported format error")
	}
	if ex.ErrorString() == "" {
		t.Fatal("expected error string to be set after a failed export")
	}

	if err := ex.Export(mockScene(), "obj", filepath.Join(t.TempDir(), "tri.obj")); err != nil {
		t.Fatal(err)
	}
	if errMsg := ex.ErrorString(); errMsg != "" {
		t.Fatalf("expected error string to be cleared by a successful export; got %q", errMsg)
	}
}

func TestExportNilScene(t *testing.T) {
	if err := Export(nil, "obj", "out.obj"); err == nil {
		t.Fatal("expected to get an error for a nil scene")
	}
}
