// rocbench exercises a DMA channel as hard as the host allows and reports
// the throughput.  Against the simulated card it also verifies every
// superpage payload, so it doubles as a data path integrity check.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dustin/go-humanize"
	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"

	"github.com/daqline/readoutcard/bar"
	"github.com/daqline/readoutcard/cru"
	"github.com/daqline/readoutcard/dmabuf"
	"github.com/daqline/readoutcard/generator"
	"github.com/daqline/readoutcard/roc"
	"github.com/daqline/readoutcard/sim"
)

func main() {
	fCard := flag.String("card", "sim", "channel flavor, sim or cru (emulated registers)")
	fPages := flag.Int("pages", 4, "DMA pages per superpage")
	fBufferPages := flag.Int("buffer", 256, "DMA buffer size in pages")
	fCount := flag.Uint64("n", 10000, "superpages to read before stopping")
	fRate := flag.Float64("poll", 1000, "reconciliation polls per second")
	fPattern := flag.String("pattern", "incremental", "generator pattern")
	fSeed := flag.Uint("seed", 0, "generator seed")
	fVerify := flag.Bool("verify", false, "verify superpage payloads (sim only)")
	flag.Parse()

	params := roc.Parameters{
		GeneratorPattern: *fPattern,
		GeneratorSeed:    uint32(*fSeed),
	}
	pageSize := params.PageSize()
	bufferSize := *fBufferPages * pageSize
	spSize := *fPages * pageSize

	var (
		ch    roc.DmaChannel
		simCh *sim.Channel
		err   error
	)
	switch *fCard {
	case "sim":
		simCh, err = sim.New(bufferSize, params)
		ch = simCh
	case "cru":
		m := bar.NewMock()
		m.AutoComplete = true
		var region *dmabuf.Region
		region, err = dmabuf.NewRegion(0, bufferSize, pageSize)
		if err == nil {
			ch, err = cru.New(m, region, params)
		}
	default:
		log.Fatalf("card must be sim or cru, got %q", *fCard)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer ch.Close()
	if *fVerify && simCh == nil {
		log.Fatal("-verify requires the sim card; the emulated cru moves no data")
	}

	cfg := yacspin.Config{
		Frequency: 100 * time.Millisecond,
		CharSet:   yacspin.CharSets[14],
		Suffix:    " readout",
		Message:   "starting DMA",
	}
	spinner, err := yacspin.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()

	if err := ch.StartDma(); err != nil {
		spinner.Stop()
		log.Fatal(err)
	}

	// keep the transfer queue primed with superpages cycling the buffer
	nextOffset := 0
	push := func() {
		for ch.TransferQueueAvailable() > 0 {
			sp := roc.Superpage{Offset: nextOffset, Size: spSize}
			if err := ch.PushSuperpage(sp); err != nil {
				return
			}
			nextOffset += spSize
			if nextOffset+spSize > bufferSize {
				nextOffset = 0
			}
		}
	}
	push()

	// the card may take a moment to produce the first superpage
	spinner.Message("waiting for first superpage")
	op := func() error {
		if err := ch.FillSuperpages(); err != nil {
			return backoff.Permanent(err)
		}
		if ch.ReadyQueueSize() == 0 {
			return fmt.Errorf("no superpage yet")
		}
		return nil
	}
	err = backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      10 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		spinner.Stop()
		log.Fatalf("first superpage never arrived: %v", err)
	}

	var (
		read     uint64
		bytes    uint64
		badPages uint64
	)
	limiter := rate.NewLimiter(rate.Limit(*fRate), 1)
	ctx := context.Background()
	start := time.Now()
	for read < *fCount {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := ch.FillSuperpages(); err != nil {
			spinner.Stop()
			log.Fatalf("reconciliation failed: %v", err)
		}
		for {
			sp, err := ch.PopSuperpage()
			if err != nil {
				break
			}
			read++
			bytes += uint64(sp.Received)
			if *fVerify {
				if err := generator.Verify(simCh.Bytes(sp)); err != nil {
					badPages++
				}
			}
			if read == *fCount {
				break
			}
		}
		push()
		if read%1000 == 0 {
			spinner.Message(fmt.Sprintf("%d superpages, %s", read, humanize.Bytes(bytes)))
		}
	}
	elapsed := time.Since(start)

	if err := ch.StopDma(); err != nil {
		spinner.Stop()
		log.Fatalf("stop failed: %v", err)
	}
	spinner.Stop()

	perSec := float64(bytes) / elapsed.Seconds()
	fmt.Printf("read %d superpages (%s) in %s\n", read, humanize.Bytes(bytes), elapsed.Round(time.Millisecond))
	fmt.Printf("throughput %s/s\n", humanize.Bytes(uint64(perSec)))
	if *fVerify {
		fmt.Printf("verified payloads, %d bad\n", badPages)
		if badPages > 0 {
			os.Exit(1)
		}
	}
}
