// Package testutil provides a fake SmartCast device for tests: an HTTPS
// server speaking enough of the vendor protocol to exercise the direct
// client, the capability detector, and entity flows end to end.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// KeyPress records one simulated remote key received by the fake device.
type KeyPress struct {
	Codeset int
	Code    int
	Action  string
}

// ModifyRequest records one settings/input write received by the fake device.
type ModifyRequest struct {
	Endpoint string
	Value    any
	HashVal  int64
}

// FakeInput is one input the fake device advertises.
type FakeInput struct {
	Name    string // display name, e.g. "HDMI-1"
	CName   string // protocol identifier, e.g. "hdmi1"
	Type    string // item TYPE; defaults to T_VALUE_V1
	HashVal int64  // 0 means "omit HASHVAL" (older models)
}

// FakeTV simulates a SmartCast device over HTTPS with a self-signed
// certificate, mirroring real hardware. All exported mutators are safe for
// concurrent use with in-flight requests.
type FakeTV struct {
	server *httptest.Server

	mu              sync.Mutex
	powerOn         bool
	powerValueNull  bool
	inputs          []FakeInput
	currentInput    string
	changeInputHash int64 // 0 means the endpoint omits the freshness token
	audio           map[string]string
	audioOptions    map[string][]string
	info            map[string]string
	failAll         bool
	rejectCommands  bool
	keyAffectsPower bool

	keyPresses []KeyPress
	modifies   []ModifyRequest
}

// NewFakeTV starts a fake device with a small default personality:
// powered off, two HDMI inputs plus the app input, volume 25, unmuted.
func NewFakeTV() *FakeTV {
	f := &FakeTV{
		inputs: []FakeInput{
			{Name: "HDMI-1", CName: "hdmi1", HashVal: 1001},
			{Name: "HDMI-2", CName: "hdmi2", HashVal: 1002},
			{Name: "SMARTCAST", CName: "cast", HashVal: 1003},
		},
		currentInput:    "HDMI-2",
		changeInputHash: 5501,
		audio: map[string]string{
			"volume": "25",
			"mute":   "Off",
			"eq":     "Movie",
		},
		audioOptions: map[string][]string{
			"eq": {"Movie", "Music", "Game", "Direct"},
		},
		info: map[string]string{
			"model_name": "M55Q7-J01",
			"firmware":   "3.510.6.2",
		},
		keyAffectsPower: true,
	}
	f.server = httptest.NewTLSServer(http.HandlerFunc(f.handle))
	return f
}

// Close shuts the fake device down.
func (f *FakeTV) Close() {
	f.server.Close()
}

// HostPort returns "127.0.0.1:port" suitable for the direct client's host
// parameter.
func (f *FakeTV) HostPort() string {
	return strings.TrimPrefix(f.server.URL, "https://")
}

// HTTPClient returns a client that trusts the fake device's certificate.
func (f *FakeTV) HTTPClient() *http.Client {
	return f.server.Client()
}

// SetPower sets the reported power state.
func (f *FakeTV) SetPower(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerOn = on
}

// Power reports the current power state.
func (f *FakeTV) Power() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powerOn
}

// SetPowerValueNull makes the power_mode item report an explicit null VALUE.
func (f *FakeTV) SetPowerValueNull(null bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerValueNull = null
}

// SetInputs replaces the advertised input list.
func (f *FakeTV) SetInputs(inputs []FakeInput, current string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = inputs
	f.currentInput = current
}

// CurrentInput reports the active input name.
func (f *FakeTV) CurrentInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentInput
}

// SetChangeInputHash sets the freshness token; zero omits it entirely,
// simulating firmware without programmatic input switching.
func (f *FakeTV) SetChangeInputHash(h int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changeInputHash = h
}

// SetAudio sets one audio setting value.
func (f *FakeTV) SetAudio(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio[name] = value
}

// Audio returns one audio setting value.
func (f *FakeTV) Audio(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audio[name]
}

// SetFailAll makes every endpoint return HTTP 500, simulating an
// unreachable or confused device.
func (f *FakeTV) SetFailAll(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

// SetRejectCommands makes writes answer with RESULT=FAILURE.
func (f *FakeTV) SetRejectCommands(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectCommands = reject
}

// SetKeyAffectsPower controls whether power key presses actually flip the
// reported power state (disable to simulate a set that ignores the command).
func (f *FakeTV) SetKeyAffectsPower(affects bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyAffectsPower = affects
}

// KeyPresses returns every key command received so far.
func (f *FakeTV) KeyPresses() []KeyPress {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]KeyPress, len(f.keyPresses))
	copy(out, f.keyPresses)
	return out
}

// Modifies returns every MODIFY write received so far.
func (f *FakeTV) Modifies() []ModifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ModifyRequest, len(f.modifies))
	copy(out, f.modifies)
	return out
}

type wireItem struct {
	CName   string          `json:"CNAME,omitempty"`
	Type    string          `json:"TYPE,omitempty"`
	Name    string          `json:"NAME,omitempty"`
	Value   json.RawMessage `json:"VALUE,omitempty"`
	HashVal *int64          `json:"HASHVAL,omitempty"`
	Options []string        `json:"ELEMENTS,omitempty"`
}

type wireResponse struct {
	Status map[string]string `json:"STATUS"`
	Items  []wireItem        `json:"ITEMS,omitempty"`
	URI    string            `json:"URI,omitempty"`
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func rawInt(v int64) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func (f *FakeTV) writeJSON(w http.ResponseWriter, resp wireResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeTV) result(uri string) wireResponse {
	result := "SUCCESS"
	detail := "Success"
	if f.rejectCommands {
		result = "FAILURE"
		detail = "ERROR"
	}
	return wireResponse{Status: map[string]string{"RESULT": result, "DETAIL": detail}, URI: uri}
}

func (f *FakeTV) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll {
		http.Error(w, "device error", http.StatusInternalServerError)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/state/device/power_mode":
		f.handlePowerMode(w)
	case path == "/key_command/":
		f.handleKeyCommand(w, r)
	case path == "/state/device/current_input":
		f.handleCurrentInput(w)
	case path == "/menu_native/dynamic/tv_settings/devices/name_input":
		f.handleInputList(w)
	case path == "/menu_native/dynamic/tv_settings/devices/current_input":
		f.handleChangeInput(w, r)
	case path == "/menu_native/dynamic/tv_settings/audio":
		f.handleAudioSettings(w)
	case strings.HasPrefix(path, "/menu_native/dynamic/tv_settings/audio/"):
		f.handleOneSetting(w, r, strings.TrimPrefix(path, "/menu_native/dynamic/tv_settings/audio/"))
	case path == "/menu_native/dynamic/tv_settings/system/tv_information/tv":
		f.handleInformation(w)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeTV) handlePowerMode(w http.ResponseWriter) {
	it := wireItem{CName: "power_mode", Type: "T_VALUE_V1"}
	switch {
	case f.powerValueNull:
		it.Value = json.RawMessage("null")
	case f.powerOn:
		it.Value = rawInt(1)
	default:
		it.Value = rawInt(0)
	}
	resp := f.result("/state/device/power_mode")
	resp.Items = []wireItem{it}
	f.writeJSON(w, resp)
}

func (f *FakeTV) handleKeyCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		KeyList []struct {
			Codeset int    `json:"CODESET"`
			Code    int    `json:"CODE"`
			Action  string `json:"ACTION"`
		} `json:"KEYLIST"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	for _, k := range body.KeyList {
		f.keyPresses = append(f.keyPresses, KeyPress{Codeset: k.Codeset, Code: k.Code, Action: k.Action})
		if !f.rejectCommands && f.keyAffectsPower && k.Codeset == 11 {
			f.powerOn = k.Code == 1
		}
	}
	f.writeJSON(w, f.result("/key_command/"))
}

func (f *FakeTV) handleCurrentInput(w http.ResponseWriter) {
	h := int64(777)
	resp := f.result("/state/device/current_input")
	resp.Items = []wireItem{{
		CName:   "current_input",
		Type:    "T_STRING_V1",
		Value:   rawString(f.currentInput),
		HashVal: &h,
	}}
	f.writeJSON(w, resp)
}

func (f *FakeTV) handleInputList(w http.ResponseWriter) {
	resp := f.result("/menu_native/dynamic/tv_settings/devices/name_input")
	for _, in := range f.inputs {
		typ := in.Type
		if typ == "" {
			typ = "T_VALUE_V1"
		}
		it := wireItem{CName: in.CName, Type: typ, Name: in.CName, Value: rawString(in.Name)}
		if in.HashVal != 0 {
			h := in.HashVal
			it.HashVal = &h
		}
		resp.Items = append(resp.Items, it)
	}
	f.writeJSON(w, resp)
}

func (f *FakeTV) handleChangeInput(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		resp := f.result("/menu_native/dynamic/tv_settings/devices/current_input")
		it := wireItem{CName: "current_input", Type: "T_STRING_V1", Value: rawString(f.currentInput)}
		if f.changeInputHash != 0 {
			h := f.changeInputHash
			it.HashVal = &h
		}
		resp.Items = []wireItem{it}
		f.writeJSON(w, resp)
		return
	}

	var body struct {
		Request string `json:"REQUEST"`
		Value   any    `json:"VALUE"`
		HashVal int64  `json:"HASHVAL"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.modifies = append(f.modifies, ModifyRequest{Endpoint: r.URL.Path, Value: body.Value, HashVal: body.HashVal})

	if !f.rejectCommands {
		if want, ok := body.Value.(string); ok {
			for _, in := range f.inputs {
				if strings.EqualFold(in.CName, want) || strings.EqualFold(in.Name, want) {
					f.currentInput = in.Name
					break
				}
			}
		}
	}
	f.writeJSON(w, f.result(r.URL.Path))
}

func (f *FakeTV) handleAudioSettings(w http.ResponseWriter) {
	resp := f.result("/menu_native/dynamic/tv_settings/audio")
	h := int64(9000)
	for name, value := range f.audio {
		it := wireItem{CName: name, Type: "T_VALUE_V1", HashVal: &h, Options: f.audioOptions[name]}
		if name == "volume" {
			// Volume is numeric on the wire; everything else is a string.
			var v int64
			_ = json.Unmarshal([]byte(value), &v)
			it.Value = rawInt(v)
		} else {
			it.Value = rawString(value)
		}
		resp.Items = append(resp.Items, it)
	}
	f.writeJSON(w, resp)
}

func (f *FakeTV) handleOneSetting(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method == http.MethodGet {
		value, ok := f.audio[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h := int64(9000)
		resp := f.result(r.URL.Path)
		resp.Items = []wireItem{{CName: name, Type: "T_VALUE_V1", Value: rawString(value), HashVal: &h}}
		f.writeJSON(w, resp)
		return
	}

	var body struct {
		Request string `json:"REQUEST"`
		Value   any    `json:"VALUE"`
		HashVal int64  `json:"HASHVAL"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.modifies = append(f.modifies, ModifyRequest{Endpoint: r.URL.Path, Value: body.Value, HashVal: body.HashVal})

	if !f.rejectCommands {
		switch v := body.Value.(type) {
		case string:
			f.audio[name] = v
		case float64:
			f.audio[name] = json.Number(jsonFloat(v)).String()
		}
	}
	f.writeJSON(w, f.result(r.URL.Path))
}

func jsonFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (f *FakeTV) handleInformation(w http.ResponseWriter) {
	resp := f.result("/menu_native/dynamic/tv_settings/system/tv_information/tv")
	for name, value := range f.info {
		resp.Items = append(resp.Items, wireItem{CName: name, Type: "T_VALUE_V1", Value: rawString(value)})
	}
	f.writeJSON(w, resp)
}
