package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotmesh/internal/cli/output"
	"github.com/yndnr/slotmesh/internal/infra/buildinfo"
)

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			return printResult(c, versionView(buildinfo.Get()))
		},
	}
}

type versionView buildinfo.Info

func (v versionView) Table() *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("version", v.Version)
	t.AddRow("commit", v.Commit)
	t.AddRow("built", v.BuildTime)
	t.AddRow("go", v.GoVersion)
	t.AddRow("platform", v.Platform)
	return t
}
