package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/BertoldVdb/max517/dac"
	"periph.io/x/conn/v3/physic"
)

type API struct {
	mux  *http.ServeMux
	dac  *dac.Controller
	lock sync.Locker
}

type Info struct {
	Path    string
	Address uint16
}

type Result struct {
	Ack bool
}

const ctJSON string = "application/json"

// New exposes one DAC over HTTP. Controllers sharing a bus must share lock.
func New(d *dac.Controller, path string, lock sync.Locker) (*API, error) {
	mux := &http.ServeMux{}

	s := &API{
		mux:  mux,
		dac:  d,
		lock: lock,
	}

	infoJson, err := json.MarshalIndent(&Info{
		Path:    path,
		Address: uint16(d.Address()),
	}, "", "  ")
	if err != nil {
		return nil, err
	}

	mux.HandleFunc("/info", sendStatic(ctJSON, infoJson))
	mux.HandleFunc("/set", s.setHandler)
	mux.HandleFunc("/voltage", s.voltageHandler)
	mux.HandleFunc("/reset", s.opHandler(func(pd bool) bool { return s.dac.ResetOutput(pd) }))
	mux.HandleFunc("/powerdown", s.plainHandler(s.dac.PowerDown))
	mux.HandleFunc("/powerup", s.plainHandler(s.dac.PowerUp))

	return s, nil
}

func sendStatic(contentType string, data []byte) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

func powerDownParam(r *http.Request) (bool, error) {
	pd := r.URL.Query().Get("powerdown")
	if pd == "" {
		return false, nil
	}
	return strconv.ParseBool(pd)
}

// run performs op under the bus lock. An error means op never reached the
// bus and is reported as a bad request.
func (s *API) run(w http.ResponseWriter, op func() (bool, error)) {
	s.lock.Lock()
	ack, err := op()
	s.lock.Unlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := json.Marshal(&Result{Ack: ack})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctJSON)
	w.Write(result)
}

func (s *API) opHandler(op func(powerDownAfter bool) bool) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
			return
		}

		pd, err := powerDownParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.run(w, func() (bool, error) { return op(pd), nil })
	}
}

func (s *API) plainHandler(op func() bool) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
			return
		}

		s.run(w, func() (bool, error) { return op(), nil })
	}
}

func (s *API) setHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	pd, err := powerDownParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, err := strconv.ParseUint(r.URL.Query().Get("value"), 0, 8)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.run(w, func() (bool, error) { return s.dac.SetOutput(uint8(value), pd), nil })
}

func (s *API) voltageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	pd, err := powerDownParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	mv, err := strconv.ParseInt(q.Get("mv"), 10, 32)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vref, err := strconv.ParseInt(q.Get("vref"), 10, 32)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.run(w, func() (bool, error) {
		return s.dac.SetPotential(physic.ElectricPotential(mv)*physic.MilliVolt, physic.ElectricPotential(vref)*physic.MilliVolt, pd)
	})
}

func (s *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
