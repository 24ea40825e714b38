// Package smartcast implements the vendor control protocol directly:
// HTTPS+JSON against the device on port 7345, bypassing any vendor SDK.
// The device presents a self-signed certificate, so callers must supply an
// HTTP client that skips verification (see platform.SessionClient).
//
// Every network, protocol, or semantic failure is returned as an error;
// an error result means "unknown", which callers must never conflate with
// a false/zero reading.
package smartcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client speaks the SmartCast protocol to a single device.
type Client struct {
	host      string
	port      int
	baseURL   string
	authToken string
	timeout   time.Duration
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a direct protocol client. host may carry an explicit
// port ("192.168.1.226:7345"); otherwise DefaultPort is used. httpClient is
// the shared pooled client borrowed from the platform session provider.
func NewClient(host, authToken string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *Client {
	port := DefaultPort
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasPrefix(host, "[") {
		if p, err := strconv.Atoi(host[i+1:]); err == nil {
			host, port = host[:i], p
		}
	}

	return &Client{
		host:      host,
		port:      port,
		baseURL:   fmt.Sprintf("https://%s:%d", host, port),
		authToken: authToken,
		timeout:   timeout,
		http:      httpClient,
		logger:    logger.Named("smartcast"),
	}
}

// Host returns the device host without port.
func (c *Client) Host() string {
	return c.host
}

// request performs one API call and decodes the envelope. A non-200 status,
// timeout, or unparseable body yields an error; the caller decides whether
// the STATUS.RESULT matters for its operation.
func (c *Client) request(ctx context.Context, method, endpoint string, body any) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("AUTH", c.authToken)
	}

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Bool("auth", c.authToken != ""))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("API request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("API request returned non-200 status",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, endpoint, resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(data, &parsed); err != nil {
		c.logger.Warn("API response is not valid JSON",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: decode response: %w", method, endpoint, err)
	}

	return &parsed, nil
}

// checkResult converts a rejected command into a CommandError.
func checkResult(resp *response) error {
	if strings.EqualFold(resp.Status.Result, resultSuccess) {
		return nil
	}
	return &CommandError{Result: resp.Status.Result, Detail: resp.Status.Detail}
}

// PowerState reads the device power mode. VALUE 1 means on; any other
// numeric value, or an explicit null with the item present, means off.
func (c *Client) PowerState(ctx context.Context) (bool, error) {
	resp, err := c.request(ctx, http.MethodGet, endpointPowerMode, nil)
	if err != nil {
		return false, err
	}

	it := resp.findItem("power_mode")
	if it == nil {
		c.logger.Warn("power state response missing power_mode item")
		return false, ErrNoData
	}

	if v, ok := it.valueInt(); ok {
		return v == 1, nil
	}
	// VALUE null with the item present: device reports itself off.
	return false, nil
}

// PowerOn simulates a remote power-on key press.
func (c *Client) PowerOn(ctx context.Context) error {
	return c.sendKey(ctx, codesetPower, codePowerOn)
}

// PowerOff simulates a remote power-off key press.
func (c *Client) PowerOff(ctx context.Context) error {
	return c.sendKey(ctx, codesetPower, codePowerOff)
}

// VolumeUp presses volume-up the given number of times.
func (c *Client) VolumeUp(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		if err := c.sendKey(ctx, codesetVolume, codeVolumeUp); err != nil {
			return err
		}
	}
	return nil
}

// VolumeDown presses volume-down the given number of times.
func (c *Client) VolumeDown(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		if err := c.sendKey(ctx, codesetVolume, codeVolumeDown); err != nil {
			return err
		}
	}
	return nil
}

// ToggleMute presses the mute key. The key press toggles; use SetMute for
// an absolute value.
func (c *Client) ToggleMute(ctx context.Context) error {
	return c.sendKey(ctx, codesetVolume, codeMuteToggle)
}

// SetMute writes the mute setting to an absolute value.
func (c *Client) SetMute(ctx context.Context, on bool) error {
	value := "Off"
	if on {
		value = "On"
	}
	return c.SetSetting(ctx, "audio", "mute", value)
}

// sendKey is the shared primitive behind power and volume/mute commands.
func (c *Client) sendKey(ctx context.Context, codeset, code int) error {
	body := keyCommandRequest{
		KeyList: []keyPress{{Codeset: codeset, Code: code, Action: "KEYPRESS"}},
	}
	resp, err := c.request(ctx, http.MethodPut, endpointKeyCommand, body)
	if err != nil {
		return err
	}
	if err := checkResult(resp); err != nil {
		c.logger.Warn("key command rejected",
			zap.Int("codeset", codeset),
			zap.Int("code", code),
			zap.Error(err))
		return err
	}
	return nil
}

// CurrentInput reads the active input.
func (c *Client) CurrentInput(ctx context.Context) (*Input, error) {
	resp, err := c.request(ctx, http.MethodGet, endpointCurrentInput, nil)
	if err != nil {
		return nil, err
	}

	it := resp.findItem("current_input")
	if it == nil {
		return nil, ErrNoData
	}

	in := &Input{Name: it.valueString()}
	if it.HashVal != nil {
		in.ID = strconv.FormatInt(*it.HashVal, 10)
	}
	return in, nil
}

// InputList enumerates selectable inputs. Different device models return
// differently-typed items (T_VALUE_V1 vs T_DEVICE_V1) and some omit the
// HASHVAL; items lacking both a name and any identifier are dropped.
func (c *Client) InputList(ctx context.Context) ([]Input, error) {
	resp, err := c.request(ctx, http.MethodGet, endpointInputList, nil)
	if err != nil {
		return nil, err
	}

	var inputs []Input
	for _, it := range resp.Items {
		if it.Type != "T_VALUE_V1" && it.Type != "T_DEVICE_V1" {
			continue
		}
		name := it.valueString()
		if name == "" {
			name = it.Name
		}
		id := ""
		if it.HashVal != nil {
			id = strconv.FormatInt(*it.HashVal, 10)
		} else if it.CName != "" {
			id = it.CName
		}
		if name == "" || id == "" {
			continue
		}
		inputs = append(inputs, Input{Name: name, ID: id, CName: it.CName})
	}
	return inputs, nil
}

// SetInput switches the active input by name. The change-input endpoint
// requires a freshness token read from ITEMS[0].HASHVAL of its own GET;
// firmware that omits the token cannot switch inputs programmatically.
func (c *Client) SetInput(ctx context.Context, name string) error {
	resp, err := c.request(ctx, http.MethodGet, endpointChangeInput, nil)
	if err != nil {
		return err
	}
	if len(resp.Items) == 0 || resp.Items[0].HashVal == nil {
		c.logger.Warn("change-input endpoint returned no freshness token",
			zap.String("input", name))
		return ErrInputSelectionUnsupported
	}
	hashval := *resp.Items[0].HashVal

	inputs, err := c.InputList(ctx)
	if err != nil {
		return fmt.Errorf("read input list: %w", err)
	}

	target := matchInput(inputs, name)
	if target == nil {
		c.logger.Warn("requested input not in device input list", zap.String("input", name))
		return ErrInputNotFound
	}

	// The endpoint prefers the lowercase protocol identifier; the display
	// name is the fallback for models that omit CNAME.
	value := strings.ToLower(target.CName)
	if value == "" {
		value = target.Name
	}

	body := modifyRequest{Request: "MODIFY", Value: value, HashVal: hashval}
	resp, err = c.request(ctx, http.MethodPut, endpointChangeInput, body)
	if err != nil {
		return err
	}
	if err := checkResult(resp); err != nil {
		c.logger.Warn("input change rejected",
			zap.String("input", name),
			zap.Error(err))
		return err
	}
	return nil
}

// matchInput resolves a requested name case-insensitively against the list,
// by display name or by protocol identifier with separators stripped.
func matchInput(inputs []Input, name string) *Input {
	want := strings.ToUpper(name)
	stripped := strings.NewReplacer("-", "", "_", "").Replace(want)
	for i := range inputs {
		if strings.ToUpper(inputs[i].Name) == want {
			return &inputs[i]
		}
		if cname := strings.ToUpper(inputs[i].CName); cname != "" && cname == stripped {
			return &inputs[i]
		}
	}
	return nil
}

// AudioSettings reads the audio settings block (volume, mute, eq, ...)
// flattened into a name-to-value map.
func (c *Client) AudioSettings(ctx context.Context) (map[string]string, error) {
	resp, err := c.request(ctx, http.MethodGet, endpointAudioSettings, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, ErrNoData
	}

	settings := make(map[string]string, len(resp.Items))
	for _, it := range resp.Items {
		if it.CName == "" {
			continue
		}
		settings[it.CName] = it.valueString()
	}
	return settings, nil
}

// SettingOptions returns the allowed values of one setting, if the device
// enumerates them.
func (c *Client) SettingOptions(ctx context.Context, settingType, name string) ([]string, error) {
	resp, err := c.request(ctx, http.MethodGet, endpointSettingsBase+"/"+settingType, nil)
	if err != nil {
		return nil, err
	}
	it := resp.findItem(name)
	if it == nil || len(it.Options) == 0 {
		return nil, ErrNoData
	}
	return it.Options, nil
}

// SetSetting writes one setting value. Settings writes are
// optimistic-concurrency checked: a GET of the setting endpoint yields the
// item HASHVAL that must accompany the MODIFY.
func (c *Client) SetSetting(ctx context.Context, settingType, name string, value any) error {
	endpoint := endpointSettingsBase + "/" + settingType + "/" + name
	resp, err := c.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if len(resp.Items) == 0 || resp.Items[0].HashVal == nil {
		return ErrNoData
	}
	hashval := *resp.Items[0].HashVal

	body := modifyRequest{Request: "MODIFY", Value: value, HashVal: hashval}
	resp, err = c.request(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	if err := checkResult(resp); err != nil {
		c.logger.Warn("setting change rejected",
			zap.String("type", settingType),
			zap.String("name", name),
			zap.Error(err))
		return err
	}
	return nil
}

// ModelName reads the device model from the information endpoint.
func (c *Client) ModelName(ctx context.Context) (string, error) {
	return c.infoField(ctx, "model_name")
}

// Version reads the firmware version from the information endpoint.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.infoField(ctx, "firmware")
}

func (c *Client) infoField(ctx context.Context, cname string) (string, error) {
	resp, err := c.request(ctx, http.MethodGet, endpointInformation, nil)
	if err != nil {
		return "", err
	}
	it := resp.findItem(cname)
	if it == nil {
		return "", ErrNoData
	}
	v := it.valueString()
	if v == "" {
		return "", ErrNoData
	}
	return v, nil
}

// DeviceInfo reads every named field from the information endpoint.
func (c *Client) DeviceInfo(ctx context.Context) (map[string]string, error) {
	resp, err := c.request(ctx, http.MethodGet, endpointInformation, nil)
	if err != nil {
		return nil, err
	}

	info := make(map[string]string)
	for _, it := range resp.Items {
		if it.CName == "" {
			continue
		}
		if v := it.valueString(); v != "" {
			info[it.CName] = v
		}
	}
	if len(info) == 0 {
		return nil, ErrNoData
	}
	return info, nil
}
