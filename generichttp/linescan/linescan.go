// Package linescan provides an HTTP interface to a line scan camera session
package linescan

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/types"
	"image"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/cenkalti/backoff"

	"github.jpl.nasa.gov/bdube/linescan/generichttp"
	"github.jpl.nasa.gov/bdube/linescan/imgrec"
	"github.jpl.nasa.gov/bdube/linescan/mightex"
	"github.jpl.nasa.gov/bdube/linescan/mqttpub"
	"github.jpl.nasa.gov/bdube/linescan/util"
)

// StatusOf maps an error from a session to an HTTP status code
func StatusOf(err error) int {
	switch {
	case errors.Is(err, mightex.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, mightex.ErrNoFrameAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, mightex.ErrClosed):
		return http.StatusGone
	case errors.Is(err, mightex.ErrFilterApplied), errors.Is(err, mightex.ErrNoFrame):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusOf(err))
}

// Poll calls read until it returns something other than
// mightex.ErrNoFrameAvailable, backing off exponentially, for at most wait.
// With wait <= 0 read is called once.
func Poll(read func() error, wait time.Duration) error {
	if wait <= 0 {
		return read()
	}
	op := func() error {
		err := read()
		if err == nil || errors.Is(err, mightex.ErrNoFrameAvailable) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         50 * time.Millisecond,
		MaxElapsedTime:      wait,
		Clock:               backoff.SystemClock})
}

// HTTPLinescan wraps a session in an HTTP interface
type HTTPLinescan struct {
	s   *mightex.Session
	rec *imgrec.Recorder
	pub mqttpub.Sink

	// Wait is how long POST /read-frame and /acquire poll for a frame when
	// the request has no wait parameter
	Wait time.Duration

	// RouteTable maps method-path pairs to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPLinescan returns a new HTTP wrapper around s.  rec and pub may be
// nil, disabling recording and publishing of acquisitions.
func NewHTTPLinescan(s *mightex.Session, rec *imgrec.Recorder, pub mqttpub.Sink, wait time.Duration) *HTTPLinescan {
	h := &HTTPLinescan{s: s, rec: rec, pub: pub, Wait: wait}
	getS := func(fcn func() string) http.HandlerFunc {
		return generichttp.GetString(func() (string, error) { return fcn(), nil })
	}
	getI := func(fcn func() int) http.HandlerFunc {
		return generichttp.GetInt(func() (int, error) { return fcn(), nil })
	}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/serial"}:           getS(s.Serial),
		{Method: http.MethodGet, Path: "/firmware"}:         getS(s.Firmware),
		{Method: http.MethodGet, Path: "/version"}:          getS(mightex.Version),
		{Method: http.MethodGet, Path: "/id"}:               getS(s.ID),
		{Method: http.MethodGet, Path: "/pixel-count"}:      getI(s.PixelCount),
		{Method: http.MethodGet, Path: "/dark-pixel-count"}: getI(s.DarkPixelCount),

		{Method: http.MethodGet, Path: "/exposure-time"}:  generichttp.GetFloat(func() (float64, error) { return s.ExposureTime(), nil }),
		{Method: http.MethodPost, Path: "/exposure-time"}: generichttp.SetFloat(s.SetExposureTime, StatusOf),
		{Method: http.MethodGet, Path: "/mode"}:           getS(func() string { return s.Mode().String() }),
		{Method: http.MethodPost, Path: "/mode"}:          generichttp.SetString(h.setMode, StatusOf),
		{Method: http.MethodGet, Path: "/buffer-count"}:   h.BufferCount,

		{Method: http.MethodPost, Path: "/read-frame"}: h.ReadFrame,
		{Method: http.MethodGet, Path: "/frame"}:       h.Frame,
		{Method: http.MethodGet, Path: "/timestamp"}:   getI(func() int { return int(s.Timestamp()) }),
		{Method: http.MethodGet, Path: "/dark-mean"}:   getI(func() int { return int(s.DarkMean()) }),
		{Method: http.MethodGet, Path: "/checksum"}:    getI(func() int { return int(s.Checksum()) }),

		{Method: http.MethodGet, Path: "/filter"}:        getS(s.FilterName),
		{Method: http.MethodPost, Path: "/filter"}:       generichttp.SetString(s.ConfigureFilter, StatusOf),
		{Method: http.MethodPost, Path: "/filter/apply"}: h.ApplyFilter,

		{Method: http.MethodGet, Path: "/estimator"}:        getS(s.EstimatorName),
		{Method: http.MethodPost, Path: "/estimator"}:       generichttp.SetString(s.ConfigureEstimator, StatusOf),
		{Method: http.MethodPost, Path: "/estimator/apply"}: h.ApplyEstimator,

		{Method: http.MethodGet, Path: "/gpio"}:  h.ReadGPIO,
		{Method: http.MethodPost, Path: "/gpio"}: h.WriteGPIO,

		{Method: http.MethodPost, Path: "/acquire"}: h.Acquire,
	}
	h.RouteTable = rt
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPLinescan) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h *HTTPLinescan) setMode(str string) error {
	m, err := mightex.ParseMode(str)
	if err != nil {
		return err
	}
	return h.s.SetMode(m)
}

// wait returns the poll duration of a request
func (h *HTTPLinescan) wait(r *http.Request) (time.Duration, error) {
	q := r.URL.Query().Get("wait")
	if q == "" {
		return h.Wait, nil
	}
	return util.ParseDuration(q, "ms")
}

// BufferCount returns the number of frames queued on the camera
func (h *HTTPLinescan) BufferCount(w http.ResponseWriter, r *http.Request) {
	n := h.s.QueuedFrameCount()
	if n < 0 {
		if h.s.Closed() {
			fail(w, mightex.ErrClosed)
			return
		}
		fail(w, mightex.ErrTransport)
		return
	}
	hp := generichttp.HumanPayload{T: types.Int, Int: n}
	hp.EncodeAndRespond(w, r)
}

// ReadFrame pulls one frame from the camera into the session.  The optional
// wait query parameter ("500ms", or a bare number of ms) sets how long to
// poll an empty camera buffer.
func (h *HTTPLinescan) ReadFrame(w http.ResponseWriter, r *http.Request) {
	wait, err := h.wait(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err = Poll(h.s.ReadFrame, wait); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ApplyFilter runs the filter on the current frame
func (h *HTTPLinescan) ApplyFilter(w http.ResponseWriter, r *http.Request) {
	if err := h.s.ApplyFilter(nil); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ApplyEstimator runs the estimator on the current frame and returns its output as {"f64": x}
func (h *HTTPLinescan) ApplyEstimator(w http.ResponseWriter, r *http.Request) {
	x, err := h.s.ApplyEstimator(nil)
	if err != nil {
		fail(w, err)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: x}
	hp.EncodeAndRespond(w, r)
}

// GPIORequest is the body of POST /gpio
type GPIORequest struct {
	Register int `json:"register"`
	Value    int `json:"value"`
}

// WriteGPIO sets a GPIO register from a {"register": n, "value": v} body
func (h *HTTPLinescan) WriteGPIO(w http.ResponseWriter, r *http.Request) {
	req := GPIORequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Register < 0 || req.Register > 255 || req.Value < 0 || req.Value > 255 {
		fail(w, fmt.Errorf("%w: gpio register %d value %d", mightex.ErrInvalidConfiguration, req.Register, req.Value))
		return
	}
	if err = h.s.WriteGPIO(byte(req.Register), byte(req.Value)); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ReadGPIO returns the level of the register given by the register query parameter as {"int": v}
func (h *HTTPLinescan) ReadGPIO(w http.ResponseWriter, r *http.Request) {
	reg, err := strconv.ParseUint(r.URL.Query().Get("register"), 10, 8)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := h.s.ReadGPIO(byte(reg))
	if err != nil {
		fail(w, err)
		return
	}
	hp := generichttp.HumanPayload{T: types.Int, Int: int(v)}
	hp.EncodeAndRespond(w, r)
}

// FrameJSON is the JSON form of GET /frame
type FrameJSON struct {
	Buffer    string   `json:"buffer"`
	Timestamp uint16   `json:"timestamp"`
	DarkMean  uint16   `json:"darkMean"`
	Samples   []uint16 `json:"samples"`
}

// Frame returns the raw or working buffer of the current frame.
//
// The buffer query parameter is raw or working, default working.  The fmt
// query parameter is json, fits or png, default json.  The png is one row
// of 16 bit gray.
func (h *HTTPLinescan) Frame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buffer := q.Get("buffer")
	if buffer == "" {
		buffer = "working"
	}
	var line []uint16
	switch buffer {
	case "raw":
		line = h.s.Raw()
	case "working":
		line = h.s.Working()
	default:
		http.Error(w, fmt.Sprintf("buffer must be raw or working, not %q", buffer), http.StatusBadRequest)
		return
	}
	if !h.s.Captured() {
		fail(w, mightex.ErrNoFrame)
		return
	}
	format := q.Get("fmt")
	if format == "" {
		format = "json"
	}
	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(FrameJSON{
			Buffer:    buffer,
			Timestamp: h.s.Timestamp(),
			DarkMean:  h.s.DarkMean(),
			Samples:   line})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	case "png":
		im := image.NewGray16(image.Rect(0, 0, len(line), 1))
		for i, v := range line {
			im.SetGray16(i, 0, color.Gray16{Y: v})
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		png.Encode(w, im)
	case "fits":
		cards := frameCards(h.s, buffer)
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=line.fits")
		err := imgrec.WriteFits(w, cards, line)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, fmt.Sprintf("fmt must be json, fits or png, not %q", format), http.StatusBadRequest)
	}
}

// frameCards is the header of a frame that has not been through the estimator
func frameCards(s *mightex.Session, buffer string) []fitsio.Card {
	m := mightex.Measurement{
		SessionID: s.ID(),
		Serial:    s.Serial(),
		Timestamp: s.Timestamp(),
		DarkMean:  s.DarkMean(),
		Checksum:  s.Checksum(),
		Time:      time.Now()}
	all := imgrec.Cards(s, m)
	cards := make([]fitsio.Card, 0, len(all)+1)
	for _, c := range all {
		if c.Name == "ESTIMATE" {
			continue
		}
		cards = append(cards, c)
	}
	return append(cards, fitsio.Card{Name: "BUFFER", Value: buffer, Comment: "raw or working"})
}

// Acquire reads, filters and estimates one frame and returns the Measurement
// as JSON.  The frame is recorded if the recorder is enabled and the
// measurement published if there is a publisher; failures of either are
// logged and do not fail the request.
func (h *HTTPLinescan) Acquire(w http.ResponseWriter, r *http.Request) {
	wait, err := h.wait(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var m mightex.Measurement
	err = Poll(func() error {
		var err error
		m, err = h.s.Acquire(nil)
		return err
	}, wait)
	if err != nil {
		fail(w, err)
		return
	}
	if h.rec != nil && h.rec.IsEnabled() {
		fn, err := h.rec.Record(imgrec.Cards(h.s, m), h.s.Raw())
		if err != nil {
			log.Printf("linescan: recording frame failed: %v", err)
		} else {
			log.Printf("linescan: recorded %s", fn)
		}
	}
	if h.pub != nil {
		if err := h.pub.Publish(m); err != nil {
			log.Printf("linescan: publishing measurement failed: %v", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(m)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
