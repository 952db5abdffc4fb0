// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// npuc_demo compiles a small convolutional network for an accelerator architecture and prints its schedule.
//
// Example:
//
//	npuc_demo -arch="generic:max_chain=2" -options="skip_reorder" -dump=~/schedule.txt
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/npucompiler/internal/schedprint"
	"github.com/gomlx/npucompiler/internal/workerspool"
	"github.com/gomlx/npucompiler/pkg/arch"
	_ "github.com/gomlx/npucompiler/pkg/arch/generic"
	"github.com/gomlx/npucompiler/pkg/compiler"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/gomlx/npucompiler/pkg/support/fsutil"
	"github.com/gomlx/npucompiler/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagArch = flag.String("arch", "", fmt.Sprintf("Architecture configuration, formatted as "+
		"\"<arch_name>:<arch_configuration>\". If empty, $%s or the first registered architecture is used.",
		arch.NPUC_ARCH))
	flagOptions = flag.String("options", "", fmt.Sprintf("Comma-separated compiler options. If empty, $%s is used.",
		compiler.OptionsEnv))
	flagDisableRules = xslices.Flag("disable_rule", nil,
		"Comma-separated list of rewrite rules to disable, in addition to those in -options.",
		func(name string) (string, error) { return name, nil })
	flagDump     = flag.String("dump", "", "File where to write the dump of the rewritten graph and of the schedule.")
	flagChannels = flag.Int("channels", 8, "Number of channels of the network.")
	flagSize     = flag.Int("size", 16, "Height and width of the network input.")
	flagBench    = flag.Int("bench", 0, "If > 0, compiles that many copies of the network in parallel and reports "+
		"the time taken.")
	flagParallelism = flag.Int("parallelism", 0, "Maximum number of graphs compiled in parallel with -bench. "+
		"0 uses the number of cores, negative values are unlimited.")
	flagPlain = flag.Bool("plain", false, "Print the schedule without colors.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	a := must.M1(newArch())
	opts := must.M1(newOptions())
	klog.V(1).Infof("compiling for %q with options %q", a.Name(), opts)

	g := buildNetwork("demo", *flagChannels, *flagSize)
	s, err := compiler.Compile(g, a, opts)
	if err != nil {
		klog.Fatalf("Failed to compile: %+v", err)
	}

	printer := schedprint.New(os.Stdout)
	if *flagPlain {
		printer = schedprint.NewPlain(os.Stdout)
	}
	must.M(printer.Print(fmt.Sprintf("%s (%s)", g.Name(), a.Name()), s))

	if *flagDump != "" {
		must.M(dump(*flagDump, g.Dump(), s.Dump()))
	}
	if *flagBench > 0 {
		bench(a, opts, *flagBench)
	}
}

func newArch() (arch.Architecture, error) {
	if *flagArch != "" {
		return arch.NewWithConfig(*flagArch)
	}
	return arch.New()
}

func newOptions() (compiler.Options, error) {
	var opts compiler.Options
	var err error
	if *flagOptions != "" {
		opts, err = compiler.ParseOptions(*flagOptions)
	} else {
		opts, err = compiler.DefaultOptions()
	}
	if err != nil {
		return opts, err
	}
	if len(*flagDisableRules) > 0 {
		parts := []string{opts.String()}
		for _, rule := range *flagDisableRules {
			parts = append(parts, "disable_rule="+rule)
		}
		opts, err = compiler.ParseOptions(strings.Join(parts, ","))
		if err != nil {
			return opts, errors.WithMessage(err, "while parsing -disable_rule")
		}
	}
	return opts, nil
}

// buildNetwork builds a network with one branch of dilated convolution, activation, pooling and bias, and a
// second branch of pooling, concatenated along the channels and copied to the output.
func buildNetwork(name string, channels, size int) *ir.Graph {
	g := ir.NewGraph(name, ir.NotationTFLite)
	shape := ir.MakeShape(1, size, size, channels)
	pooledShape := ir.MakeShape(1, size/2, size/2, channels)
	in := g.NewTensor("input", ir.Int8, shape)
	g.AddInput(in)
	out := g.NewTensor("output", ir.Int8, ir.MakeShape(1, size/2, size/2, 2*channels))
	g.AddOutput(out)

	weightsShape := ir.MakeShape(channels, 3, 3, channels)
	weights := make([]int8, weightsShape.Elements())
	for i := range weights {
		weights[i] = int8(i%15 - 7)
	}
	conv := g.NewOperation(ir.OpTypeConv2DBias)
	conv.SetKernel(ir.NewKernel(3, 3).
		WithDilation(ir.Point2{X: 2, Y: 2}).
		WithPadding(ir.Margin{Top: 2, Left: 2, Bottom: 2, Right: 2}))
	conv.ConnectInput(ir.UsageIFM, in)
	conv.ConnectInput(ir.UsageWeights, g.NewConstTensor("weights", ir.Int8, weightsShape,
		ir.MakeBuffer(ir.Int8, weights...)))
	features := g.NewTensor("features", ir.Int8, shape)
	conv.ConnectOutput(ir.UsageOFM, features)

	relu := g.NewOperation(ir.OpTypeRelu)
	relu.ConnectInput(ir.UsageIFM, features)
	activated := g.NewTensor("activated", ir.Int8, shape)
	relu.ConnectOutput(ir.UsageOFM, activated)

	pool := g.NewOperation(ir.OpTypeMaxPool)
	pool.SetKernel(ir.NewKernel(2, 2).WithStride(ir.Point2{X: 2, Y: 2}))
	pool.ConnectInput(ir.UsageIFM, activated)
	pooled := g.NewTensor("pooled", ir.Int8, pooledShape)
	pool.ConnectOutput(ir.UsageOFM, pooled)

	biasValues := make([]int8, pooledShape.Elements())
	for i := range biasValues {
		biasValues[i] = int8(i % channels)
	}
	add := g.NewOperation(ir.OpTypeAdd)
	add.ConnectInput(ir.UsageIFM, pooled)
	add.ConnectInput(ir.UsageIFM1, g.NewConstTensor("bias", ir.Int8, pooledShape,
		ir.MakeBuffer(ir.Int8, biasValues...)))
	biased := g.NewTensor("biased", ir.Int8, pooledShape)
	add.ConnectOutput(ir.UsageOFM, biased)

	avg := g.NewOperation(ir.OpTypeAvgPool)
	avg.SetKernel(ir.NewKernel(2, 2).WithStride(ir.Point2{X: 2, Y: 2}))
	avg.ConnectInput(ir.UsageIFM, in)
	averaged := g.NewTensor("averaged", ir.Int8, pooledShape)
	avg.ConnectOutput(ir.UsageOFM, averaged)

	concat := g.NewOperation(ir.OpTypeConcat)
	concat.SetAttr(&ir.ConcatAttr{Axis: -1})
	concat.ConnectInput(ir.UsageIFM, biased)
	concat.ConnectInput(ir.UsageIFM1, averaged)
	joined := g.NewTensor("joined", out.Type(), out.StorageShape())
	concat.ConnectOutput(ir.UsageOFM, joined)

	identity := g.NewOperation(ir.OpTypeIdentity)
	identity.ConnectInput(ir.UsageIFM, joined)
	identity.ConnectOutput(ir.UsageOFM, out)
	return g
}

func dump(path string, graphLines, scheduleLines []string) error {
	path, err := fsutil.WriteReport(path,
		fsutil.Section{Title: "Graph", Lines: graphLines},
		fsutil.Section{Title: "Schedule", Lines: scheduleLines})
	if err != nil {
		return err
	}
	fmt.Printf("Dump written to %q\n", path)
	return nil
}

// bench compiles n copies of the network in parallel, reporting progress.
func bench(a arch.Architecture, opts compiler.Options, n int) {
	graphs := make([]*ir.Graph, n)
	for i := range graphs {
		graphs[i] = buildNetwork(fmt.Sprintf("demo_%d", i), *flagChannels, *flagSize)
	}
	bar := progressbar.NewOptions(n,
		progressbar.OptionSetDescription("compiling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("graphs"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
	pool := workerspool.New()
	pool.SetMaxParallelism(*flagParallelism)
	errs := make([]error, n)
	start := time.Now()
	pool.ForEach(n, func(i int) {
		_, errs[i] = compiler.Compile(graphs[i], a, opts)
		_ = bar.Add(1)
	})
	elapsed := time.Since(start)
	_ = bar.Finish()
	fmt.Println()
	var failed int
	for i, err := range errs {
		if err != nil {
			failed++
			klog.Errorf("graph %d: %v", i, err)
		}
	}
	fmt.Printf("Compiled %s graphs (%d failed) in %s, %s per graph, with parallelism %d\n",
		humanize.Comma(int64(n)), failed, elapsed, elapsed/time.Duration(n), pool.MaxParallelism())
}
