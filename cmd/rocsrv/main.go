package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"goji.io"
	"goji.io/pat"

	yml "gopkg.in/yaml.v2"

	"github.com/daqline/readoutcard/bar"
	"github.com/daqline/readoutcard/cru"
	"github.com/daqline/readoutcard/dmabuf"
	"github.com/daqline/readoutcard/monitor"
	"github.com/daqline/readoutcard/roc"
	"github.com/daqline/readoutcard/rochttp"
	"github.com/daqline/readoutcard/sim"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "rocsrv.yml"
	k              = koanf.New(".")
)

// Config describes one rocsrv process: which card flavor to drive, how much
// buffer to carve superpages from, and where to listen.
type Config struct {
	// Addr is the address to listen at, e.g. :8000
	Addr string `koanf:"addr"`

	// Card selects the channel flavor, a member of {sim, cru}.  cru runs
	// against emulated registers; the PCI register mapping attaches here
	// when running on a host with a card.
	Card string `koanf:"card"`

	// BufferPages is the size of the DMA buffer in DMA pages
	BufferPages int `koanf:"bufferpages"`

	// MonitorSeconds is the health sampling cadence; zero disables the
	// monitor
	MonitorSeconds int `koanf:"monitorseconds"`

	// MonitorDepth is how many health samples are retained
	MonitorDepth int `koanf:"monitordepth"`

	// Params is the channel configuration
	Params roc.Parameters `koanf:"params"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:           ":8000",
		Card:           "sim",
		BufferPages:    256,
		MonitorSeconds: 5,
		MonitorDepth:   720}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `rocsrv drives a readout card DMA channel and exposes an HTTP interface to it
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	rocsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `rocsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

The "card" field selects the channel flavor:
- sim  fills superpages on the host, no hardware involved
- cru  the multi-link card, against emulated registers

The "params" block holds the channel configuration; see the roc package
documentation for the field list.  An example:

addr: :8000
card: sim
bufferpages: 256
params:
  GeneratorPattern: incremental
  LinkMask: [0, 1]

Routes are rooted at /: GET /status, POST /start, POST /superpage, and so
on, plus GET /monitor/ for health history when the monitor is enabled.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("rocsrv version %v\n", Version)
}

// buildChannel creates the channel described by the config.  The emulated
// flavors auto-complete pushed superpages so the full client surface can be
// exercised without hardware.
func buildChannel(c Config) (roc.DmaChannel, error) {
	bufferSize := c.BufferPages * c.Params.PageSize()
	switch strings.ToLower(c.Card) {
	case "sim":
		return sim.New(bufferSize, c.Params)
	case "cru":
		m := bar.NewMock()
		m.AutoComplete = true
		region, err := dmabuf.NewRegion(0, bufferSize, c.Params.PageSize())
		if err != nil {
			return nil, err
		}
		return cru.New(m, region, c.Params)
	default:
		return nil, fmt.Errorf("card must be a member of {sim, cru}, got %q", c.Card)
	}
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	ch, err := buildChannel(c)
	if err != nil {
		log.Fatal(err)
	}
	defer ch.Close()

	mux := goji.NewMux()
	httper := rochttp.NewHTTPWrapper("/", ch)
	httper.BindRoutes(mux)

	if c.MonitorSeconds > 0 {
		mon := monitor.New(ch, time.Duration(c.MonitorSeconds)*time.Second, c.MonitorDepth)
		mon.Start()
		defer mon.Stop()
		mux.Handle(pat.New("/monitor/*"), http.StripPrefix("/monitor", mon.Router()))
	}

	log.Printf("rocsrv serving a %s channel at %s", ch.CardType(), c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
