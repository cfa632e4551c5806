package cmd

import (
	"errors"

	"github.com/Dandelight/sceneport/asset/scene/reader"
	"github.com/urfave/cli"
)

// Display scene info for an asset file.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("info: missing scene file")
	}

	sc, err := reader.ReadScene(ctx.Args().First())
	if err != nil {
		return err
	}

	logger.Noticef("scene information:\n%s", sc.Stats())
	return nil
}
