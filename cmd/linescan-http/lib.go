package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.jpl.nasa.gov/bdube/linescan/generichttp"
	"github.jpl.nasa.gov/bdube/linescan/generichttp/linescan"
	"github.jpl.nasa.gov/bdube/linescan/imgrec"
	"github.jpl.nasa.gov/bdube/linescan/mightex"
	"github.jpl.nasa.gov/bdube/linescan/mightexusb"
	"github.jpl.nasa.gov/bdube/linescan/mqttpub"
	"github.jpl.nasa.gov/bdube/linescan/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/linescan/util"
)

type usbConfig struct {
	// VID is the USB vendor ID
	VID uint16 `yaml:"VID" koanf:"VID"`

	// PID is the USB product ID
	PID uint16 `yaml:"PID" koanf:"PID"`

	// Serial selects one camera by serial number.  Empty takes the first.
	Serial string `yaml:"Serial" koanf:"Serial"`
}

type pollConfig struct {
	// Timeout is how long to wait for a frame, e.g. 500ms
	Timeout string `yaml:"Timeout" koanf:"Timeout"`

	// Rate is the acquisition rate of the acquire command, Hz
	Rate float64 `yaml:"Rate" koanf:"Rate"`
}

type recorderConfig struct {
	// Root is the root folder to write to
	Root string `yaml:"Root" koanf:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix" koanf:"Prefix"`

	// Enabled turns on recording of every acquisition
	Enabled bool `yaml:"Enabled" koanf:"Enabled"`
}

type config struct {
	Addr      string         `yaml:"Addr" koanf:"Addr"`
	Root      string         `yaml:"Root" koanf:"Root"`
	Mock      bool           `yaml:"Mock" koanf:"Mock"`
	USB       usbConfig      `yaml:"USB" koanf:"USB"`
	Exposure  float64        `yaml:"Exposure" koanf:"Exposure"`
	Mode      string         `yaml:"Mode" koanf:"Mode"`
	Filter    string         `yaml:"Filter" koanf:"Filter"`
	Estimator string         `yaml:"Estimator" koanf:"Estimator"`
	Poll      pollConfig     `yaml:"Poll" koanf:"Poll"`
	Recorder  recorderConfig `yaml:"Recorder" koanf:"Recorder"`
	MQTT      mqttpub.Config `yaml:"MQTT" koanf:"MQTT"`
}

func defaults() config {
	return config{
		Addr: ":8000",
		Root: "/linescan",
		USB: usbConfig{
			VID: mightexusb.VID,
			PID: mightexusb.PID},
		Exposure:  mightex.DefaultExposureTime,
		Mode:      mightex.Normal.String(),
		Filter:    "default",
		Estimator: "default",
		Poll: pollConfig{
			Timeout: "500ms",
			Rate:    10},
		Recorder: recorderConfig{Prefix: "line"},
		MQTT: mqttpub.Config{
			Topic:    "linescan/measurement",
			ClientID: "linescan-http"},
	}
}

// loadConfig layers the config file, if present, over the defaults
func loadConfig(k *koanf.Koanf, fn string) (config, error) {
	c := config{}
	k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err := k.Load(file.Provider(fn), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			return c, fmt.Errorf("error loading config: %w", err)
		}
	}
	err := k.Unmarshal("", &c)
	return c, err
}

// pollTimeout is the configured frame wait
func (c config) pollTimeout() (time.Duration, error) {
	return util.ParseDuration(c.Poll.Timeout, "ms")
}

// openSession opens the camera, or a simulated one, and applies the
// configured acquisition settings
func openSession(c config) (*mightex.Session, error) {
	var t mightex.Transport
	if c.Mock {
		m := mightex.NewMock()
		m.Gen = mightex.GaussianLine(1500, 25, 300)
		t = m
		log.Println("using a simulated camera")
	} else {
		d, err := mightexusb.Open(c.USB.VID, c.USB.PID, c.USB.Serial)
		if err != nil {
			return nil, err
		}
		t = d
	}
	mode, err := mightex.ParseMode(c.Mode)
	if err != nil {
		t.Close()
		return nil, err
	}
	s, err := mightex.Open(t, mightex.WithMode(mode), mightex.WithExposure(c.Exposure))
	if err != nil {
		return nil, err
	}
	if err = s.ConfigureFilter(c.Filter); err != nil {
		s.Close()
		return nil, err
	}
	if err = s.ConfigureEstimator(c.Estimator); err != nil {
		s.Close()
		return nil, err
	}
	log.Printf("connected to camera %s with firmware %s", s.Serial(), s.Firmware())
	return s, nil
}

// buildRouter mounts the HTTP interface of s at c.Root.  Requests are
// serialized, since a session is not concurrent safe.
func buildRouter(c config, s *mightex.Session, pub mqttpub.Sink) (chi.Router, error) {
	wait, err := c.pollTimeout()
	if err != nil {
		return nil, err
	}
	rec := &imgrec.Recorder{Root: c.Recorder.Root, Prefix: c.Recorder.Prefix, Enabled: c.Recorder.Enabled}
	w := linescan.NewHTTPLinescan(s, rec, pub, wait)
	imgrec.NewHTTPWrapper(rec).Inject(w)
	lock := locker.New()
	locker.Inject(w, lock)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	mux := chi.NewRouter()
	serial := &locker.Serial{}
	mux.Use(serial.Handler, lock.Check)
	w.RT().Bind(mux)
	root.Mount(generichttp.SubMuxSanitize(c.Root), mux)
	return root, nil
}
