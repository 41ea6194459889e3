package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotmesh/internal/cli/connection"
	"github.com/yndnr/slotmesh/internal/cli/output"
	"github.com/yndnr/slotmesh/internal/client/config"
	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/core/service"
	"github.com/yndnr/slotmesh/internal/infra/tlsroots"
	"github.com/yndnr/slotmesh/internal/server/httpserver/handler"
)

// ControlCommand returns the control subcommand group.
func ControlCommand() *cli.Command {
	return &cli.Command{
		Name:    "control",
		Aliases: []string{"ctl"},
		Usage:   "Drive a running session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Control API address (host:port or URL)",
				EnvVars: []string{"SLOTMESH_CONTROL_ADDR"},
				Value:   config.DefaultControlAddr,
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token for the control API",
				EnvVars: []string{"SLOTMESH_CONTROL_TOKEN"},
			},
			&cli.StringFlag{
				Name:  "ca",
				Usage: "CA certificate for an https control address",
			},
			&cli.BoolFlag{
				Name:  "insecure",
				Usage: "Skip TLS certificate verification",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "List live slots",
				Action: controlStatus,
			},
			{
				Name:      "activate",
				Usage:     "Make a slot receive local input from the next tick",
				ArgsUsage: "SLOT_ID",
				Action:    controlActivate,
			},
			{
				Name:   "cycle",
				Usage:  "Switch control to the next live slot",
				Action: controlCycle,
			},
			{
				Name:      "dummies",
				Usage:     "Set the requested dummy count",
				ArgsUsage: "COUNT",
				Action:    controlDummies,
			},
			{
				Name:   "add-dummy",
				Usage:  "Register one more dummy",
				Action: controlAddDummy,
			},
			{
				Name:      "remove",
				Usage:     "Disconnect a slot",
				ArgsUsage: "SLOT_ID",
				Action:    controlRemove,
			},
		},
	}
}

// controlClient builds the HTTP client from the group flags.
func controlClient(c *cli.Context) (*connection.HTTPClient, error) {
	opts := []connection.Option{connection.WithToken(c.String("token"))}

	addr := c.String("addr")
	if strings.HasPrefix(addr, "https://") || c.String("ca") != "" || c.Bool("insecure") {
		tlsCfg, err := tlsroots.ClientConfig(c.String("ca"), c.Bool("insecure"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, connection.WithTLSConfig(tlsCfg))
	}
	return connection.NewHTTPClient(addr, opts...), nil
}

func slotArg(c *cli.Context) (domain.SlotID, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one SLOT_ID argument")
	}
	n, err := strconv.ParseUint(c.Args().First(), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid slot id %q", c.Args().First())
	}
	return domain.SlotID(n), nil
}

func controlStatus(c *cli.Context) error {
	client, err := controlClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Get(ctx(c), "/v1/slots")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var st service.Status
	if err := connection.ParseResponse(resp, &st); err != nil {
		return err
	}
	return printResult(c, statusView(st))
}

func controlActivate(c *cli.Context) error {
	id, err := slotArg(c)
	if err != nil {
		return err
	}
	client, err := controlClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Post(ctx(c), "/v1/slots/active", handler.SetActiveRequest{SlotID: &id})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var got handler.ActiveResponse
	if err := connection.ParseResponse(resp, &got); err != nil {
		return err
	}
	return printResult(c, activeView(got))
}

func controlCycle(c *cli.Context) error {
	client, err := controlClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Post(ctx(c), "/v1/slots/cycle", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var got handler.ActiveResponse
	if err := connection.ParseResponse(resp, &got); err != nil {
		return err
	}
	return printResult(c, activeView(got))
}

func controlDummies(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one COUNT argument")
	}
	n, err := strconv.Atoi(c.Args().First())
	if err != nil || n < 0 {
		return fmt.Errorf("invalid dummy count %q", c.Args().First())
	}
	client, err := controlClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Put(ctx(c), "/v1/dummies", handler.SetDummiesRequest{Count: &n})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var got handler.DummiesResponse
	if err := connection.ParseResponse(resp, &got); err != nil {
		return err
	}
	return printResult(c, dummiesView(got))
}

func controlAddDummy(c *cli.Context) error {
	client, err := controlClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Post(ctx(c), "/v1/dummies", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var got handler.DummiesResponse
	if err := connection.ParseResponse(resp, &got); err != nil {
		return err
	}
	return printResult(c, dummiesView(got))
}

func controlRemove(c *cli.Context) error {
	id, err := slotArg(c)
	if err != nil {
		return err
	}
	client, err := controlClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Delete(ctx(c), "/v1/slots/"+strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var got handler.RemoveSlotResponse
	if err := connection.ParseResponse(resp, &got); err != nil {
		return err
	}
	return printResult(c, map[string]string{
		"slot_id": id.String(),
		"removed": output.Cell(got.Removed),
	})
}

// ctx returns the command context, falling back to Background for
// contexts built outside App.Run.
func ctx(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

// ============================================================================
// Table views
// ============================================================================

type statusView service.Status

func (v statusView) Table() *output.Table {
	t := output.NewTable("SLOT", "ROLE", "STATE", "ACTIVE", "ACKED", "APPLIED", "SNAPSHOTS", "QUEUED")
	for _, s := range v.Slots {
		role := "dummy"
		if s.Main {
			role = "main"
		}
		t.AddRow(
			strconv.FormatUint(uint64(s.ID), 10),
			role,
			s.State,
			activeMark(s.ID, v.ActiveSlot, v.PendingSlot),
			tickCell(s.AckedTick),
			tickCell(s.AppliedTick),
			strconv.Itoa(s.StoredSnapshots),
			strconv.Itoa(s.QueuedFrames),
		)
	}
	return t
}

func activeMark(id domain.SlotID, active, pending *domain.SlotID) string {
	switch {
	case active != nil && *active == id:
		return "*"
	case pending != nil && *pending == id:
		return "pending"
	default:
		return ""
	}
}

func tickCell(t domain.Tick) string {
	if t == domain.NoTick {
		return "-"
	}
	return strconv.FormatInt(int64(t), 10)
}

type activeView handler.ActiveResponse

func (v activeView) Table() *output.Table {
	t := output.NewTable("ACTIVE", "PENDING", "SWITCHED")
	t.AddRow(slotCell(v.ActiveSlot), slotCell(v.PendingSlot), output.Cell(v.Switched))
	return t
}

func slotCell(id *domain.SlotID) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*id), 10)
}

type dummiesView handler.DummiesResponse

func (v dummiesView) Table() *output.Table {
	t := output.NewTable("REQUESTED", "LIVE", "LIMIT", "ADDED")
	t.AddRow(strconv.Itoa(v.RequestedDummies), strconv.Itoa(v.LiveDummies), strconv.Itoa(v.DummyLimit), slotCell(v.SlotID))
	return t
}
