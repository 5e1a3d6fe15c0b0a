package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/linescan/generichttp/linescan"
	"github.jpl.nasa.gov/bdube/linescan/mightex"
	"github.jpl.nasa.gov/bdube/linescan/mqttpub"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "linescan-http.yml"
	k              = koanf.New(".")
)

func root() {
	str := `linescan-http exposes control of Mightex TCE-1304-U line cameras over HTTP

Usage:
	linescan-http <command>

Commands:
	run
	acquire <N>
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `linescan-http is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

Mock: true replaces the camera with a simulation of a gaussian spot, which is
useful for developing clients without hardware.

Exposure is in milliseconds.  Mode is normal (free running) or triggered.
Filter is default (dark subtraction), none, or threshold:<level>.
Estimator is default (centroid above 3x the dark level), peak, mean, or
weighted-mean:<factor>.

Poll.Timeout is how long read-frame and acquire wait for the camera to
buffer a frame.  Poll.Rate is the rate of the acquire command, Hz.

When Recorder.Enabled is true and Recorder.Root is set, every acquisition is
written to a FITS file.  When MQTT.Broker is set, e.g. tcp://localhost:1883,
every acquisition is published as JSON on MQTT.Topic.

acquire <N> runs N acquisitions from the command line and prints one
measurement per line, without starting the server.`
	fmt.Println(str)
}

func mustConfig() config {
	c, err := loadConfig(k, ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func mkconf() {
	c := mustConfig()
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
	c := mustConfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("linescan-http version %v, %s\n", Version, mightex.Version())
}

func publisher(c config) (*mqttpub.Publisher, error) {
	if c.MQTT.Broker == "" {
		return nil, nil
	}
	p, err := mqttpub.Dial(c.MQTT)
	if err != nil {
		return nil, err
	}
	log.Printf("publishing measurements to %s on %s", c.MQTT.Broker, c.MQTT.Topic)
	return p, nil
}

func run() {
	cfg := mustConfig()
	s, err := openSession(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	pub, err := publisher(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pub.Close()
	var sink mqttpub.Sink
	if pub != nil {
		sink = pub
	}
	r, err := buildRouter(cfg, s, sink)
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Println(err)
		}
		close(done)
	}()
	log.Println("now listening for requests at ", cfg.Addr+cfg.Root)
	if err = srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Println(err)
		return
	}
	<-done
}

func acquire(n int) {
	cfg := mustConfig()
	wait, err := cfg.pollTimeout()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Poll.Rate <= 0 {
		log.Fatalf("Poll.Rate must be positive, not %v", cfg.Poll.Rate)
	}
	s, err := openSession(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	pub, err := publisher(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pub.Close()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[14],
		Suffix:        " acquiring",
		StopCharacter: "done",
		StopColors:    []string{"fgGreen"}})
	if err != nil {
		log.Fatal(err)
	}
	lim := rate.NewLimiter(rate.Limit(cfg.Poll.Rate), 1)
	ctx := context.Background()
	spinner.Start()
	defer spinner.Stop()
	for i := 0; i < n; i++ {
		if err = lim.Wait(ctx); err != nil {
			spinner.StopFail()
			log.Fatal(err)
		}
		spinner.Message(fmt.Sprintf("%d/%d", i+1, n))
		var m mightex.Measurement
		err = linescan.Poll(func() error {
			var err error
			m, err = s.Acquire(nil)
			return err
		}, wait)
		if err != nil {
			spinner.StopFail()
			log.Fatal(err)
		}
		if err = pub.Publish(m); err != nil {
			log.Printf("publishing measurement failed: %v", err)
		}
		spinner.Pause()
		fmt.Printf("%s\t%d\t%d\t%.3f\t%04X\n", m.Time.Format(time.RFC3339Nano), m.Timestamp, m.DarkMean, m.Estimate, m.Checksum)
		spinner.Unpause()
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
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
	case "acquire":
		n := 1
		if len(args) > 2 {
			var err error
			n, err = strconv.Atoi(args[2])
			if err != nil || n < 1 {
				log.Fatalf("acquire takes a positive number of frames, not %q", args[2])
			}
		}
		acquire(n)
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
