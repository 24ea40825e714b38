package smartcast

// SmartCast API endpoints. All are served over HTTPS on the device itself.
const (
	endpointKeyCommand    = "/key_command/"
	endpointPowerMode     = "/state/device/power_mode"
	endpointCurrentInput  = "/state/device/current_input"
	endpointInputList     = "/menu_native/dynamic/tv_settings/devices/name_input"
	endpointChangeInput   = "/menu_native/dynamic/tv_settings/devices/current_input"
	endpointAudioSettings = "/menu_native/dynamic/tv_settings/audio"
	endpointSettingsBase  = "/menu_native/dynamic/tv_settings"
	endpointInformation   = "/menu_native/dynamic/tv_settings/system/tv_information/tv"
)

// Key command (CODESET, CODE) pairs. These are protocol constants from the
// vendor remote-control key map, not discovered at runtime.
const (
	codesetPower = 11
	codePowerOn  = 1
	codePowerOff = 0

	codesetVolume  = 5
	codeVolumeUp   = 2
	codeVolumeDown = 3
	codeMuteToggle = 4
)

// DefaultPort is the SmartCast control port on the device.
const DefaultPort = 7345

// resultSuccess is the STATUS.RESULT value the device returns for an
// accepted command. Compared case-insensitively; some firmware revisions
// report "success".
const resultSuccess = "SUCCESS"
