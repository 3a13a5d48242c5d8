package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/propertyparty/property"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

const (
	writersKey   = "writers"
	setsKey      = "sets"
	listenersKey = "listeners"
)

func main() {
	cmd := &cli.Command{
		Name:  "stress",
		Usage: "Hammer one concurrent property and verify every listener saw the same transition chain",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  writersKey,
				Usage: "Writer goroutines",
				Value: 8,
			},
			&cli.UintFlag{
				Name:  setsKey,
				Usage: "Sets per writer",
				Value: 100_000,
			},
			&cli.UintFlag{
				Name:  listenersKey,
				Usage: "Listeners on the property",
				Value: 4,
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// chainChecker folds every observed transition into an xxhash digest and
// verifies chaining as it goes. It holds no lock: delivery passes are owned
// by one goroutine at a time and handed over through the property's CAS, so
// invocations never overlap.
type chainChecker struct {
	digest *xxhash.Digest
	count  int64
	last   int
	primed bool
	broken int64
}

func (c *chainChecker) OnChange(old, new int) {
	if c.primed && c.last != old {
		c.broken++
	}
	c.primed = true
	c.last = new

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(old))
	binary.LittleEndian.PutUint64(buf[8:], uint64(new))
	c.digest.Write(buf[:])
	c.count++
}

func run(ctx context.Context, cmd *cli.Command) error {
	writers := int(cmd.Uint(writersKey))
	sets := int(cmd.Uint(setsKey))
	nListeners := int(cmd.Uint(listenersKey))

	log.Printf("stressing: %s writers * %s sets, %s listeners",
		humanize.Comma(int64(writers)), humanize.Comma(int64(sets)), humanize.Comma(int64(nListeners)))

	p := property.Concurrent(0)
	checkers := make([]*chainChecker, nListeners)
	for i := range checkers {
		checkers[i] = &chainChecker{digest: xxhash.New()}
		p.AddChangeListener(checkers[i])
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < sets; i++ {
				p.SetValue(w*sets + i + 1)
			}
		}()
	}
	wg.Wait()

	wantCount := int64(writers * sets)
	wantSum := checkers[0].digest.Sum64()

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"listener", "events", "digest", "chain"})
	ok := true
	for i, c := range checkers {
		sum := c.digest.Sum64()
		if c.count != wantCount || sum != wantSum || c.broken != 0 {
			ok = false
		}
		chain := "ok"
		if c.broken != 0 {
			chain = fmt.Sprintf("broken x%d", c.broken)
		}
		tbl.Append([]string{
			fmt.Sprint(i),
			humanize.Comma(c.count),
			fmt.Sprintf("%016x", sum),
			chain,
		})
	}
	tbl.Render()

	if !ok {
		return fmt.Errorf("listeners disagree: want %s events each with digest %016x",
			humanize.Comma(wantCount), wantSum)
	}
	log.Printf("all %d listeners agree on %s transitions", nListeners, humanize.Comma(wantCount))
	return nil
}
