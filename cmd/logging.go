package cmd

import (
	"github.com/Dandelight/sceneport/log"
	"github.com/urfave/cli"
)

var logger = log.New("sceneport")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
