/*Package rochttp exposes a DMA channel over HTTP.

It adapts any roc.DmaChannel to a set of JSON routes so site tooling can
monitor queue occupancy and drive the channel lifecycle without linking
against the driver.  The adapter holds no state of its own; every request
maps to exactly one channel call.
*/
package rochttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"goji.io"
	"goji.io/pat"

	"github.com/daqline/readoutcard/roc"
)

// Status is the one-shot queue and card summary served by HTTPStatus.
type Status struct {
	CardType               string `json:"cardType"`
	TransferQueueAvailable int    `json:"transferQueueAvailable"`
	TransferQueueEmpty     bool   `json:"transferQueueEmpty"`
	ReadyQueueSize         int    `json:"readyQueueSize"`
	ReadyQueueFull         bool   `json:"readyQueueFull"`
	DroppedPackets         int32  `json:"droppedPackets"`
}

// HTTPWrapper provides HTTP bindings on top of the underlying Go interface.
// BindRoutes must be called on it.
type HTTPWrapper struct {
	// Channel is the underlying DMA channel that is wrapped
	Channel roc.DmaChannel

	// RouteTable maps goji patterns to http handlers
	RouteTable map[goji.Pattern]http.HandlerFunc
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(urlStem string, ch roc.DmaChannel) HTTPWrapper {
	w := HTTPWrapper{Channel: ch}
	rt := map[goji.Pattern]http.HandlerFunc{
		pat.Get(urlStem + "status"):        w.HTTPStatus,
		pat.Get(urlStem + "superpage"):     w.HTTPGetSuperpage,
		pat.Post(urlStem + "superpage"):    w.HTTPPushSuperpage,
		pat.Delete(urlStem + "superpage"):  w.HTTPPopSuperpage,
		pat.Post(urlStem + "fill"):         w.HTTPFill,
		pat.Post(urlStem + "start"):        w.HTTPStart,
		pat.Post(urlStem + "stop"):         w.HTTPStop,
		pat.Post(urlStem + "reset"):        w.HTTPReset,
		pat.Post(urlStem + "inject-error"): w.HTTPInjectError,
		pat.Get(urlStem + "serial"):        w.HTTPSerial,
		pat.Get(urlStem + "temperature"):   w.HTTPTemperature,
		pat.Get(urlStem + "firmware"):      w.HTTPFirmwareInfo,
		pat.Get(urlStem + "card-id"):       w.HTTPCardID,
	}
	w.RouteTable = rt
	return w
}

// BindRoutes binds the route table onto a goji mux
func (h HTTPWrapper) BindRoutes(mux *goji.Mux) {
	for ptrn, handler := range h.RouteTable {
		mux.HandleFunc(ptrn, handler)
	}
}

func encodeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// errCode maps channel errors onto HTTP status codes.  Empty and full
// queues are expected steady-state conditions, not server faults.
func errCode(err error) int {
	switch {
	case errors.Is(err, roc.ErrQueueEmpty):
		return http.StatusNotFound
	case errors.Is(err, roc.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, roc.ErrInvalidSuperpage), errors.Is(err, roc.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, roc.ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the queue and card summary as JSON
func (h HTTPWrapper) HTTPStatus(w http.ResponseWriter, r *http.Request) {
	s := Status{
		CardType:               h.Channel.CardType().String(),
		TransferQueueAvailable: h.Channel.TransferQueueAvailable(),
		TransferQueueEmpty:     h.Channel.IsTransferQueueEmpty(),
		ReadyQueueSize:         h.Channel.ReadyQueueSize(),
		ReadyQueueFull:         h.Channel.IsReadyQueueFull(),
		DroppedPackets:         h.Channel.DroppedPackets(),
	}
	encodeJSON(w, s)
}

// HTTPGetSuperpage peeks the front of the ready queue and returns it as JSON
func (h HTTPWrapper) HTTPGetSuperpage(w http.ResponseWriter, r *http.Request) {
	sp, err := h.Channel.GetSuperpage()
	if err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	encodeJSON(w, sp)
}

// HTTPPushSuperpage decodes a superpage from the request body and pushes it
func (h HTTPWrapper) HTTPPushSuperpage(w http.ResponseWriter, r *http.Request) {
	var sp roc.Superpage
	if err := json.NewDecoder(r.Body).Decode(&sp); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Channel.PushSuperpage(sp); err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPPopSuperpage pops the front of the ready queue and returns it as JSON
func (h HTTPWrapper) HTTPPopSuperpage(w http.ResponseWriter, r *http.Request) {
	sp, err := h.Channel.PopSuperpage()
	if err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	encodeJSON(w, sp)
}

// HTTPFill polls the hardware counters once
func (h HTTPWrapper) HTTPFill(w http.ResponseWriter, r *http.Request) {
	if err := h.Channel.FillSuperpages(); err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPStart starts DMA
func (h HTTPWrapper) HTTPStart(w http.ResponseWriter, r *http.Request) {
	if err := h.Channel.StartDma(); err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPStop stops DMA
func (h HTTPWrapper) HTTPStop(w http.ResponseWriter, r *http.Request) {
	if err := h.Channel.StopDma(); err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPReset resets the channel at the level given by the "level" query
// parameter, defaulting to nothing
func (h HTTPWrapper) HTTPReset(w http.ResponseWriter, r *http.Request) {
	level, err := roc.ValidateResetLevel(r.URL.Query().Get("level"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Channel.ResetChannel(level); err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPInjectError asks the data generator to corrupt one word; the JSON
// response is true if an error will be injected
func (h HTTPWrapper) HTTPInjectError(w http.ResponseWriter, r *http.Request) {
	encodeJSON(w, h.Channel.InjectError())
}

// HTTPSerial returns the card serial number as JSON
func (h HTTPWrapper) HTTPSerial(w http.ResponseWriter, r *http.Request) {
	v, err := h.Channel.Serial()
	if err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	encodeJSON(w, v)
}

// HTTPTemperature returns the card temperature in Celsius as JSON
func (h HTTPWrapper) HTTPTemperature(w http.ResponseWriter, r *http.Request) {
	v, err := h.Channel.Temperature()
	if err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	encodeJSON(w, v)
}

// HTTPFirmwareInfo returns the firmware description as JSON
func (h HTTPWrapper) HTTPFirmwareInfo(w http.ResponseWriter, r *http.Request) {
	v, err := h.Channel.FirmwareInfo()
	if err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	encodeJSON(w, v)
}

// HTTPCardID returns the card identifier as JSON
func (h HTTPWrapper) HTTPCardID(w http.ResponseWriter, r *http.Request) {
	v, err := h.Channel.CardID()
	if err != nil {
		http.Error(w, err.Error(), errCode(err))
		return
	}
	encodeJSON(w, v)
}
