// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package schedprint renders schedules as tables for the command line.
package schedprint

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/npucompiler/pkg/scheduler"
	"github.com/muesli/termenv"
)

const tableBorderColor = "#705090"

// Printer renders schedules with the styles supported by its output.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer

	headerStyle, npuStyle, chainedStyle, softwareStyle, borderStyle, titleStyle lipgloss.Style
}

// New creates a Printer writing to w, with colors if w is a terminal that supports them.
func New(w io.Writer) *Printer {
	return newPrinter(w, termenv.NewOutput(w).EnvColorProfile())
}

// NewPlain creates a Printer writing to w without colors or text attributes.
func NewPlain(w io.Writer) *Printer {
	return newPrinter(w, termenv.Ascii)
}

func newPrinter(w io.Writer, profile termenv.Profile) *Printer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)
	return &Printer{
		w:            w,
		renderer:     r,
		headerStyle:  r.NewStyle().Reverse(true).Padding(0, 1).Align(lipgloss.Center),
		npuStyle:     r.NewStyle().Padding(0, 1),
		chainedStyle: r.NewStyle().Faint(true).Padding(0, 1),
		softwareStyle: r.NewStyle().Padding(0, 1).Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}),
		borderStyle: r.NewStyle().Foreground(lipgloss.Color(tableBorderColor)),
		titleStyle:  r.NewStyle().Bold(true).Padding(1, 2, 0, 2),
	}
}

func connDesc(conn *scheduler.Connection) string {
	if conn == nil {
		return "-"
	}
	desc := fmt.Sprintf("%s %s%s", conn.Tensor.Name(), conn.Tensor.Type, conn.SliceShape())
	if step := conn.StepXY; step.X > 1 || step.Y > 1 {
		desc += fmt.Sprintf(" step %dx%d", step.X, step.Y)
	}
	return desc
}

func kernelDesc(op *scheduler.Operation) string {
	k := op.Kernel
	if k == nil {
		return "-"
	}
	desc := fmt.Sprintf("%dx%d", k.Size.X, k.Size.Y)
	if k.Stride.X > 1 || k.Stride.Y > 1 {
		desc += fmt.Sprintf(" /%dx%d", k.Stride.X, k.Stride.Y)
	}
	if k.Dilation.X > 1 || k.Dilation.Y > 1 {
		desc += fmt.Sprintf(" d%dx%d", k.Dilation.X, k.Dilation.Y)
	}
	return desc
}

// Table returns the schedule rendered as a table, one row per operation, with the operations chained into a
// hardware group listed under their primary operation.
func (p *Printer) Table(s *scheduler.Schedule) string {
	const (
		rowNPU = iota
		rowChained
		rowSoftware
	)
	var rowKinds []int
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.borderStyle).
		Headers("#", "unit", "operation", "kernel", "input", "output")
	addRow := func(kind int, row ...string) {
		rowKinds = append(rowKinds, kind)
		table.Row(row...)
	}
	for _, op := range s.Ops {
		if !op.IsNPU {
			addRow(rowSoftware, fmt.Sprint(op.Index), "SW", op.Kind.String(), kernelDesc(op),
				connDesc(op.PrimaryInput()), connDesc(op.OFM()))
			continue
		}
		addRow(rowNPU, fmt.Sprint(op.Index), "NPU", op.Kind.String(), kernelDesc(op),
			connDesc(op.PrimaryInput()), connDesc(op.OFM()))
		for _, sub := range op.SubOps {
			addRow(rowChained, "", fmt.Sprintf("+%d", sub.OpGroupKey), sub.Kind.String(), kernelDesc(sub),
				connDesc(sub.PrimaryInput()), connDesc(sub.OFM()))
		}
	}
	table.StyleFunc(func(row, col int) lipgloss.Style {
		if row < 0 || row >= len(rowKinds) {
			return p.headerStyle
		}
		var style lipgloss.Style
		switch rowKinds[row] {
		case rowSoftware:
			style = p.softwareStyle
		case rowChained:
			style = p.chainedStyle
		default:
			style = p.npuStyle
		}
		if col == 0 {
			style = style.Align(lipgloss.Right)
		}
		return style
	})
	return table.String()
}

// Summary returns the statistics of the schedule rendered as a table.
func (p *Printer) Summary(s *scheduler.Schedule) string {
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return p.npuStyle.Align(lipgloss.Right)
			}
			return p.npuStyle
		})
	table.Row("scheduled operations", humanize.Comma(int64(len(s.Ops))))
	table.Row("hardware groups", humanize.Comma(int64(s.NumGroups())))
	table.Row("chained operations", humanize.Comma(int64(s.NumChained())))
	table.Row("software operations", humanize.Comma(int64(s.NumSoftware())))
	table.Row("hardware/software transitions", humanize.Comma(int64(s.Transitions())))
	table.Row("tensors", humanize.Comma(int64(s.NumTensors())))
	table.Row("constants", humanize.Bytes(uint64(s.ConstantBytes())))
	return table.String()
}

// Print writes the title, the table and the summary of the schedule.
func (p *Printer) Print(title string, s *scheduler.Schedule) error {
	var sb strings.Builder
	sb.WriteString(p.titleStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(p.Table(s))
	sb.WriteString("\n")
	sb.WriteString(p.Summary(s))
	sb.WriteString("\n")
	_, err := io.WriteString(p.w, sb.String())
	return err
}
