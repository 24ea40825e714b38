package smartcast

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Input describes one selectable device input.
type Input struct {
	// Name is the display name ("HDMI-2", "SMARTCAST").
	Name string
	// ID is the stable protocol identifier: the item HASHVAL when the
	// firmware provides one, otherwise the CNAME fallback.
	ID string
	// CName is the normalized protocol identifier ("hdmi2"), which the
	// change-input endpoint prefers over the display name.
	CName string
}

// status is the STATUS object present on every command response.
type status struct {
	Result string `json:"RESULT"`
	Detail string `json:"DETAIL"`
}

// item is one entry of the ITEMS array. VALUE is kept raw because the
// device returns numbers, strings, or null depending on the setting.
type item struct {
	CName   string          `json:"CNAME"`
	Type    string          `json:"TYPE"`
	Name    string          `json:"NAME"`
	Value   json.RawMessage `json:"VALUE"`
	HashVal *int64          `json:"HASHVAL"`
	Options []string        `json:"ELEMENTS"`
}

// response is the common envelope of every SmartCast API reply.
type response struct {
	Status status `json:"STATUS"`
	Items  []item `json:"ITEMS"`
	URI    string `json:"URI"`
}

// keyCommandRequest is the body of a PUT /key_command/.
type keyCommandRequest struct {
	KeyList []keyPress `json:"KEYLIST"`
}

type keyPress struct {
	Codeset int    `json:"CODESET"`
	Code    int    `json:"CODE"`
	Action  string `json:"ACTION"`
}

// modifyRequest is the body of a settings/input write. HashVal is the
// freshness token read from the preceding GET of the same endpoint.
type modifyRequest struct {
	Request string `json:"REQUEST"`
	Value   any    `json:"VALUE"`
	HashVal int64  `json:"HASHVAL"`
}

// valueString renders the raw VALUE as a plain string: quoted strings are
// unquoted, numbers are formatted, null and absent become "".
func (it item) valueString() string {
	raw := strings.TrimSpace(string(it.Value))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(it.Value, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(it.Value, &f); err == nil {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return raw
}

// valueInt parses the raw VALUE as an integer; ok is false for null,
// absent, or non-numeric values.
func (it item) valueInt() (int64, bool) {
	var f float64
	if err := json.Unmarshal(it.Value, &f); err != nil {
		return 0, false
	}
	return int64(f), true
}

// findItem returns the first item whose CNAME matches, or nil.
func (r *response) findItem(cname string) *item {
	for i := range r.Items {
		if r.Items[i].CName == cname {
			return &r.Items[i]
		}
	}
	return nil
}
