package command

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotmesh/internal/cli/output"
	"github.com/yndnr/slotmesh/internal/storage/demo"
)

// DemoCommand returns the demo subcommand group.
func DemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Inspect recorded demo files",
		Subcommands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "Summarize frames per slot",
				ArgsUsage: "FILE",
				Action:    demoInspect,
			},
			{
				Name:      "dump",
				Usage:     "List every frame",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Stop after N frames (0 = all)",
					},
				},
				Action: demoDump,
			},
		},
	}
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one FILE argument")
	}
	return c.Args().First(), nil
}

func demoInspect(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}

	sum, err := demo.Summarize(path)
	if err != nil {
		return fmt.Errorf("read demo: %w", err)
	}
	if sum.Truncated {
		PrintError(c, "%s ends with a torn frame; summary covers the intact prefix", path)
	}
	return printResult(c, summaryView(*sum))
}

func demoDump(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}

	r, err := demo.Open(path)
	if err != nil {
		return fmt.Errorf("read demo: %w", err)
	}
	defer r.Close()

	limit := c.Int("limit")
	var frames []frameRow
	for limit <= 0 || len(frames) < limit {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read frame %d: %w", len(frames), err)
		}
		frames = append(frames, frameRow{
			Kind:  f.Kind.String(),
			Slot:  uint32(f.Slot),
			Tick:  int64(f.Tick),
			Bytes: len(f.Payload),
		})
	}
	if r.Truncated() {
		PrintError(c, "%s ends with a torn frame", path)
	}
	return printResult(c, frameRows(frames))
}

type summaryView demo.Summary

func (v summaryView) Table() *output.Table {
	t := output.NewTable("SLOT", "SNAPSHOTS", "INPUTS", "EVENTS", "FIRST_TICK", "LAST_TICK")
	for _, s := range v.Slots {
		t.AddRow(
			strconv.FormatUint(uint64(s.Slot), 10),
			strconv.Itoa(s.Snapshots),
			strconv.Itoa(s.Inputs),
			strconv.Itoa(s.Events),
			tickCell(s.FirstTick),
			tickCell(s.LastTick),
		)
	}
	return t
}

type frameRow struct {
	Kind  string `json:"kind"`
	Slot  uint32 `json:"slot_id"`
	Tick  int64  `json:"tick"`
	Bytes int    `json:"bytes"`
}

type frameRows []frameRow

func (rows frameRows) Table() *output.Table {
	t := output.NewTable("KIND", "SLOT", "TICK", "BYTES")
	for _, r := range rows {
		t.AddRow(r.Kind, strconv.FormatUint(uint64(r.Slot), 10), strconv.FormatInt(r.Tick, 10), strconv.Itoa(r.Bytes))
	}
	return t
}
