package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/delaneyj/propertyparty/property"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

const (
	itersKey   = "iters"
	profileKey = "profile"
)

var (
	fanouts = []int{1, 10, 100}
	depths  = []int{1, 10, 100}
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure property set latency across listener fan-out and binding depth",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Iterations per configuration",
				Value: 10_000,
			},
			&cli.StringFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to this file",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	iters := int(cmd.Uint(itersKey))

	if path := cmd.String(profileKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	log.Printf("running %s iterations per configuration, please wait...", humanize.Comma(int64(iters)))

	benchmarkConfined(iters)
	benchmarkConcurrent(iters)
	benchmarkContended(iters)
	return nil
}

func benchmarkConfined(iters int) {
	tbl := table.NewWriter()
	tbl.SetTitle("Confined Properties")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "notified", "avg", "min", "p75", "p99", "max"})

	for _, depth := range depths {
		for _, fanout := range fanouts {
			src := property.Confined(0)
			tail := property.Property[int](src)
			for i := 0; i < depth; i++ {
				next := property.Confined(0)
				next.BindTo(tail)
				tail = next
			}
			notified := 0
			for i := 0; i < fanout; i++ {
				tail.AddChangeListener(property.ListenFunc(func(old, new int) {
					notified++
				}))
			}

			tach := tachymeter.New(&tachymeter.Config{Size: iters})
			for i := 0; i < iters; i++ {
				start := time.Now()
				src.SetValue(i + 1)
				tach.AddTime(time.Since(start))
			}

			appendRow(tbl, depth, fanout, notified, tach)
		}
	}
	tbl.Render()
}

func benchmarkConcurrent(iters int) {
	tbl := table.NewWriter()
	tbl.SetTitle("Concurrent Properties (single writer)")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "notified", "avg", "min", "p75", "p99", "max"})

	for _, depth := range depths {
		for _, fanout := range fanouts {
			src := property.Concurrent(0)
			tail := property.Property[int](src)
			for i := 0; i < depth; i++ {
				next := property.Concurrent(0)
				next.BindTo(tail)
				tail = next
			}
			notified := 0
			for i := 0; i < fanout; i++ {
				tail.AddChangeListener(property.ListenFunc(func(old, new int) {
					notified++
				}))
			}

			tach := tachymeter.New(&tachymeter.Config{Size: iters})
			for i := 0; i < iters; i++ {
				start := time.Now()
				src.SetValue(i + 1)
				tach.AddTime(time.Since(start))
			}

			appendRow(tbl, depth, fanout, notified, tach)
		}
	}
	tbl.Render()
}

func benchmarkContended(iters int) {
	const writers = 4

	tbl := table.NewWriter()
	tbl.SetTitle(fmt.Sprintf("Concurrent Properties (%d writers)", writers))
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "notified", "avg", "min", "p75", "p99", "max"})

	for _, fanout := range fanouts {
		p := property.Concurrent(0)
		// delivery passes are serialized, so a plain counter is fine here
		notified := 0
		for i := 0; i < fanout; i++ {
			p.AddChangeListener(property.ListenFunc(func(old, new int) {
				notified++
			}))
		}

		perWriter := iters / writers
		tach := tachymeter.New(&tachymeter.Config{Size: iters})
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			w := w
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					start := time.Now()
					p.SetValue(w*perWriter + i + 1)
					tach.AddTime(time.Since(start))
				}
			}()
		}
		wg.Wait()

		appendRow(tbl, 0, fanout, notified, tach)
	}
	tbl.Render()
}

func appendRow(tbl table.Writer, depth, fanout, notified int, tach *tachymeter.Tachymeter) {
	calc := tach.Calc()
	tbl.AppendRows([]table.Row{{
		fmt.Sprintf("set: depth %d * fanout %d", depth, fanout),
		humanize.Comma(int64(notified)),
		calc.Time.Avg,
		calc.Time.Min,
		calc.Time.P75,
		calc.Time.P99,
		calc.Time.Max,
	}})
}
