package writer

import (
	"github.com/Dandelight/sceneport/asset/scene"
)

// An Exporter exposes the format registry together with per-handle error
// retention. Exporters are not safe for concurrent use; callers needing
// parallelism use one Exporter per goroutine.
type Exporter struct {
	lastErr string
}

// Create a new exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// The number of registered output formats.
func (ex *Exporter) FormatCount() int {
	return len(formats)
}

// The descriptor of the output format at the given registration index or nil
// when the index is out of range.
func (ex *Exporter) FormatDescription(index int) *FormatDesc {
	if index < 0 || index >= len(formats) {
		return nil
	}
	desc := formats[index].desc
	return &desc
}

// Write scene to a file using the format registered under formatID. The
// error state is discarded at the start of each call and captures the write
// error on failure.
func (ex *Exporter) Export(sc *scene.Scene, formatID string, filename string) error {
	ex.lastErr = ""
	if err := Export(sc, formatID, filename); err != nil {
		ex.lastErr = err.Error()
		return err
	}
	return nil
}

// The error reported by the most recent Export call or an empty string when
// it succeeded.
func (ex *Exporter) ErrorString() string {
	return ex.lastErr
}
