package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/abiosoft/ishell/v2"

	"github.com/cjeanneret/LensGo/internal/hw/stepper"
	"github.com/cjeanneret/LensGo/internal/logic/axis"
	"github.com/cjeanneret/LensGo/internal/logic/motion"
)

var errUsage = errors.New("usage")

// bench implements the shell commands on top of the controller.
type bench struct {
	ctx  context.Context
	ctrl *motion.Controller
}

func (b *bench) axes(w io.Writer, _ []string) error {
	printStatus(w, b.ctrl)
	if active := b.ctrl.Active(); active != "" {
		fmt.Fprintf(w, "moving: %s\n", active)
	}
	return nil
}

func (b *bench) status(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: status <axis>", errUsage)
	}
	s, err := b.ctrl.Status(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: calibrated=%t max=%d position=%d last=%s\n",
		s.Axis, s.Calibrated, s.MaxSteps, s.Position, s.LastStatus)
	return nil
}

func (b *bench) calibrate(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: calibrate <axis>", errUsage)
	}
	r, err := b.ctrl.Calibrate(b.ctx, args[0]).Wait(b.ctx)
	printReport(w, r, err)
	return err
}

func (b *bench) move(w io.Writer, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: move <axis> <steps> <cw|ccw>", errUsage)
	}
	steps, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: steps must be an integer", errUsage)
	}
	dir, err := parseDirection(args[2])
	if err != nil {
		return err
	}
	r, err := b.ctrl.Move(b.ctx, args[0], steps, dir).Wait(b.ctx)
	printReport(w, r, err)
	return err
}

func parseDirection(s string) (stepper.Direction, error) {
	switch s {
	case "cw", "1":
		return stepper.CW, nil
	case "ccw", "0":
		return stepper.CCW, nil
	default:
		return stepper.CCW, fmt.Errorf("%w: direction must be cw or ccw, got %q", errUsage, s)
	}
}

func printReport(w io.Writer, r axis.Report, err error) {
	if errors.Is(err, motion.ErrUnknownAxis) {
		return
	}
	fmt.Fprintf(w, "%s: %s steps=%d position=%d max=%d calibrated=%t\n",
		r.Axis, axis.StatusOf(err), r.Steps, r.Position, r.MaxSteps, r.Calibrated)
}

// runShell starts the interactive bench shell and blocks until it exits.
func runShell(ctx context.Context, ctrl *motion.Controller) {
	b := &bench{ctx: ctx, ctrl: ctrl}
	axisNames := func([]string) []string {
		return []string{motion.FocusAxis, motion.ApertureAxis}
	}

	shell := ishell.New()
	shell.Println("LensGo bench shell")

	add := func(name, help string, complete func([]string) []string, fn func(io.Writer, []string) error) {
		shell.AddCmd(&ishell.Cmd{
			Name:      name,
			Help:      help,
			Completer: complete,
			Func: func(c *ishell.Context) {
				var out bytes.Buffer
				err := fn(&out, c.Args)
				c.Print(out.String())
				if err != nil {
					c.Println("error:", err)
				}
			},
		})
	}
	add("axes", "list both axes", nil, b.axes)
	add("status", "status <axis>", axisNames, b.status)
	add("calibrate", "calibrate <axis>", axisNames, b.calibrate)
	add("move", "move <axis> <steps> <cw|ccw>", axisNames, b.move)

	go func() {
		<-ctx.Done()
		shell.Stop()
	}()
	shell.Run()
}
