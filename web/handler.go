package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/exp/slices"
	"lautenbacher.net/adxld/adxl"
	c "lautenbacher.net/adxld/config"
	u "lautenbacher.net/adxld/util"
)

// DeviceInfo is one entry of the device listing.
type DeviceInfo struct {
	Name  string `json:"name"`
	Minor int    `json:"minor"`
	Key   string `json:"key"`
}

// SampleInfo is the JSON rendering of one raw sample.
type SampleInfo struct {
	Raw []byte `json:"raw"`
	X   int16  `json:"x"`
	Y   int16  `json:"y"`
	Z   int16  `json:"z"`
}

func newSampleInfo(s adxl.Sample) SampleInfo {
	x, y, z := s.Axes()
	return SampleInfo{Raw: append([]byte(nil), s[:]...), X: x, Y: y, Z: z}
}

// NewHandler exposes the devices of ns over HTTP. Every sample and register
// request runs one Open, Read or Write, Close cycle on the device. samples
// may be nil when no sampler runs.
func NewHandler(ns *adxl.Namespace, samples *u.AtomicMapEvent[adxl.Sample], cfile string) http.Handler {
	h := &handler{ns: ns, samples: samples}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/devices", h.listDevices)
	mux.HandleFunc("GET /api/devices/{name}/sample", h.readSample)
	mux.HandleFunc("POST /api/devices/{name}/register", h.writeRegister)
	mux.HandleFunc("GET /api/samples", h.latestSamples)
	mux.Handle("/api/config", c.ConfigHandler(cfile))
	return mux
}

type handler struct {
	ns      *adxl.Namespace
	samples *u.AtomicMapEvent[adxl.Sample]
}

func (h *handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devs := h.ns.Devices()
	infos := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		infos = append(infos, DeviceInfo{Name: dev.Name(), Minor: dev.Minor(), Key: dev.Key()})
	}
	slices.SortFunc(infos, func(a, b DeviceInfo) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	writeJSON(w, http.StatusOK, infos)
}

func (h *handler) readSample(w http.ResponseWriter, r *http.Request) {
	session, ok := h.open(w, r)
	if !ok {
		return
	}
	defer session.Close()

	if r.URL.Query().Get("format") == "json" {
		sample, err := session.ReadSample()
		if err != nil {
			writeError(w, session.Device().Name(), err)
			return
		}
		writeJSON(w, http.StatusOK, newSampleInfo(sample))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := session.ReadTo(w); err != nil {
		// A failed copy means the client is gone, nothing left to answer.
		if adxl.CodeOf(err) == adxl.ErrCopyFailed {
			slog.Warn("Sample could not be delivered", "device", session.Device().Name(), "error", err)
			return
		}
		writeError(w, session.Device().Name(), err)
	}
}

func (h *handler) writeRegister(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	session, ok := h.open(w, r)
	if !ok {
		return
	}
	defer session.Close()

	n, err := session.WriteFrom(r.Body)
	if err != nil {
		writeError(w, session.Device().Name(), err)
		return
	}
	slog.Info("Register written over http", "device", session.Device().Name(), "session", session.ID())
	writeJSON(w, http.StatusOK, map[string]int{"written": n})
}

func (h *handler) latestSamples(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]SampleInfo)
	if h.samples != nil {
		for name, sample := range h.samples.Value() {
			out[name] = newSampleInfo(sample)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) open(w http.ResponseWriter, r *http.Request) (*adxl.Session, bool) {
	name := r.PathValue("name")
	dev, found := h.ns.Lookup(name)
	if !found {
		http.Error(w, "unknown device "+name, http.StatusNotFound)
		return nil, false
	}
	session, err := dev.Open()
	if err != nil {
		writeError(w, name, err)
		return nil, false
	}
	return session, true
}

// StatusFor maps a gateway error to the HTTP status reported to clients.
func StatusFor(err error) int {
	switch adxl.CodeOf(err) {
	case adxl.OK:
		return http.StatusOK
	case adxl.ErrInvalidArgument, adxl.ErrUnknownRegister:
		return http.StatusBadRequest
	case adxl.ErrNotAttached, adxl.ErrSessionClosed:
		return http.StatusGone
	case adxl.ErrDeviceBusy, adxl.ErrAlreadyAttached:
		return http.StatusConflict
	case adxl.ErrDeviceUnavailable, adxl.ErrNotInitialised:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, device string, err error) {
	status := StatusFor(err)
	slog.Error("Device request failed", "device", device, "code", adxl.CodeOf(err), "status", status, "error", err)
	writeJSON(w, status, map[string]string{
		"code":  string(adxl.CodeOf(err)),
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
