package main

import (
	"os"

	"github.com/Dandelight/sceneport/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "sceneport"
	app.Usage = "import, normalize and convert 3d asset files"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "convert",
			Usage: "convert scene files to another format",
			Description: `
Parse one or more scene files, apply the geometry normalization passes and
write each scene out in the selected output format. Inputs are converted
concurrently when more than one job is requested.`,
			ArgsUsage: "scene_file1.usdz scene_file2.obj ...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "format, f",
					Value: "obj",
					Usage: "output format id",
				},
				cli.StringFlag{
					Name:  "out-dir, o",
					Usage: "directory for converted files; defaults to each input's directory",
				},
				cli.IntFlag{
					Name:  "jobs, j",
					Value: 1,
					Usage: "number of concurrent conversions",
				},
			},
			Action: cmd.ConvertScenes,
		},
		{
			Name:        "usdz2obj",
			Usage:       "convert a usdz asset to an obj file",
			Description: `Convert a usdz asset to an obj file using the fixed conversion pipeline.`,
			ArgsUsage:   "scene.usdz scene.obj",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "log",
					Usage: "emit a diagnostic line for each conversion step",
				},
			},
			Action: cmd.ConvertUsdzToObj,
		},
		{
			Name:   "formats",
			Usage:  "list supported output formats",
			Action: cmd.ListFormats,
		},
		{
			Name:      "info",
			Usage:     "display scene statistics for an asset file",
			ArgsUsage: "scene_file",
			Action:    cmd.ShowSceneInfo,
		},
	}

	app.Run(os.Args)
}
