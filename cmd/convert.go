package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Dandelight/sceneport/asset/scene/reader"
	"github.com/Dandelight/sceneport/asset/scene/writer"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

// The normalization steps applied to every converted scene.
const convertSteps = reader.Triangulate | reader.FlipUVs | reader.GenSmoothNormals | reader.JoinIdenticalVertices

// Convert one or more scene files to the selected output format. Inputs are
// converted concurrently when more than one job is requested; each worker
// owns its own importer so no handle is shared between goroutines.
func ConvertScenes(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() == 0 {
		return errors.New("convert: no input files specified")
	}

	formatID := ctx.String("format")
	format, err := lookupFormat(formatID)
	if err != nil {
		return err
	}

	jobs := ctx.Int("jobs")
	if jobs < 1 {
		jobs = 1
	}

	group := new(errgroup.Group)
	group.SetLimit(jobs)
	for _, sceneFile := range ctx.Args() {
		sceneFile := sceneFile
		group.Go(func() error {
			logger.Noticef("converting %s to %s", sceneFile, formatID)

			importer := reader.NewImporter()
			sc, err := importer.ReadFile(sceneFile, convertSteps)
			if err != nil {
				return fmt.Errorf("convert: %s: %v", sceneFile, err)
			}

			outFile := outputPath(sceneFile, ctx.String("out-dir"), format.Extension)
			if err = writer.NewExporter().Export(sc, formatID, outFile); err != nil {
				return fmt.Errorf("convert: %s: %v", sceneFile, err)
			}
			logger.Noticef("wrote %s", outFile)
			return nil
		})
	}
	return group.Wait()
}

// Locate a registered format descriptor by its id.
func lookupFormat(formatID string) (*writer.FormatDesc, error) {
	for _, desc := range writer.Formats() {
		if desc.ID == formatID {
			return &desc, nil
		}
	}
	return nil, fmt.Errorf("convert: unsupported format %q; run the formats command for the supported list", formatID)
}

// The output path for a converted scene: the input name with the format
// extension, placed in outDir when one is specified.
func outputPath(sceneFile, outDir, extension string) string {
	base := filepath.Base(sceneFile)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + "." + extension
	if outDir == "" {
		outDir = filepath.Dir(sceneFile)
	}
	return filepath.Join(outDir, base)
}
