package cmd

import (
	"bytes"

	"github.com/Dandelight/sceneport/asset/scene/writer"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Display the registered output formats.
func ListFormats(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"ID", "Description", "Extension"})
	for _, desc := range writer.Formats() {
		table.Append([]string{desc.ID, desc.Description, desc.Extension})
	}

	table.Render()
	logger.Noticef("supported output formats\n%s", buf.String())
	return nil
}
