// Package conv exposes the fixed usdz to obj conversion pipeline behind a
// small adapter facade. The adapter collapses all failure causes into a
// boolean result; callers inspect LastError for the cause.
package conv

import (
	"github.com/Dandelight/sceneport/asset/scene/reader"
	"github.com/Dandelight/sceneport/asset/scene/writer"
	"github.com/Dandelight/sceneport/log"
)

// The post-process steps every conversion applies. Not configurable.
const convertSteps = reader.Triangulate | reader.FlipUVs | reader.GenSmoothNormals | reader.JoinIdenticalVertices

// A Converter owns one importer and one exporter handle and forwards
// conversion requests to them. Converters are not safe for concurrent use;
// callers needing parallelism use one Converter per goroutine.
type Converter struct {
	importer *reader.Importer
	exporter *writer.Exporter

	logging bool
	logger  log.Logger
}

// A construction option for Converter.
type Option func(*Converter)

// Enable diagnostic logging for each conversion.
func WithLogging(enabled bool) Option {
	return func(c *Converter) {
		c.logging = enabled
	}
}

// Override the logger that diagnostic lines are emitted to. The logger is
// only consulted when logging is enabled.
func WithLogger(logger log.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// Create a new converter. Logging is disabled unless requested; diagnostics
// never affect conversion results.
func New(opts ...Option) *Converter {
	c := &Converter{
		importer: reader.NewImporter(),
		exporter: writer.NewExporter(),
		logger:   log.New("conv"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.logging {
		c.logger = log.Nop()
	}
	c.logger.Notice("conversion logging enabled")
	return c
}

// List the supported output formats as "<id> - <description>" entries in
// registration order. The registry is queried fresh on each call.
func (c *Converter) SupportedFormats() []string {
	count := c.exporter.FormatCount()
	out := make([]string, 0, count)
	for index := 0; index < count; index++ {
		desc := c.exporter.FormatDescription(index)
		out = append(out, desc.ID+" - "+desc.Description)
	}
	return out
}

// Convert a usdz asset to a wavefront obj file. The import always applies
// triangulation, UV flipping, smooth normal generation and vertex merging.
// The returned boolean is the only result; the failure cause is available
// through LastError until the next operation.
func (c *Converter) ConvertUSDZToOBJ(inputPath, outputPath string) bool {
	c.logger.Noticef("converting usdz to obj")
	c.logger.Noticef("input: %s", inputPath)
	c.logger.Noticef("output: %s", outputPath)
	c.logger.Noticef("post-process steps: triangulate, flip UVs, generate smooth normals, join identical vertices")

	sc, err := c.importer.ReadFile(inputPath, convertSteps)
	if err != nil || sc == nil {
		c.logger.Errorf("import failed: %s", errorText(c.importer.ErrorString()))
		return false
	}
	c.logger.Noticef("imported %d meshes, %d materials and %d textures",
		len(sc.Meshes), len(sc.Materials), len(sc.Textures))

	c.logger.Noticef("exporting obj scene to %s", outputPath)
	if err = c.exporter.Export(sc, "obj", outputPath); err != nil {
		c.logger.Errorf("export failed: %s", errorText(c.exporter.ErrorString()))
		return false
	}

	c.logger.Notice("conversion succeeded")
	return true
}

// The error reported by the most recent operation: the import error when one
// is set, the export error otherwise, or an empty string after a fully
// successful operation.
func (c *Converter) LastError() string {
	if errMsg := c.importer.ErrorString(); errMsg != "" {
		return "Import: " + errMsg
	}
	if errMsg := c.exporter.ErrorString(); errMsg != "" {
		return "Export: " + errMsg
	}
	return ""
}

func errorText(errMsg string) string {
	if errMsg == "" {
		return "unknown error"
	}
	return errMsg
}
