package cmd

import (
	"errors"

	"github.com/Dandelight/sceneport/conv"
	"github.com/urfave/cli"
)

// Convert a usdz asset to an obj file through the fixed conversion pipeline.
func ConvertUsdzToObj(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 2 {
		return errors.New("usdz2obj: expected an input usdz file and an output obj file")
	}

	converter := conv.New(conv.WithLogging(ctx.Bool("log")))
	if !converter.ConvertUSDZToOBJ(ctx.Args().Get(0), ctx.Args().Get(1)) {
		if cause := converter.LastError(); cause != "" {
			return errors.New("usdz2obj: " + cause)
		}
		return errors.New("usdz2obj: conversion failed")
	}
	return nil
}
