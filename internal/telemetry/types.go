// Package telemetry keeps a periodically refreshed snapshot of host vitals.
package telemetry

import "time"

// Memory is host memory usage in bytes.
type Memory struct {
	Total uint64 `json:"total" doc:"Total memory in bytes"`
	Used  uint64 `json:"used" doc:"Used memory in bytes"`
	Free  uint64 `json:"free" doc:"Available memory in bytes"`
}

// Info is the summary shown on the dashboard.
type Info struct {
	Temperature float64 `json:"temperature" example:"48.3" doc:"SoC temperature in degrees Celsius"`
	Voltage     float64 `json:"voltage" example:"0.86" doc:"Core voltage in volts"`
	Memory      Memory  `json:"memory" doc:"Memory usage"`
	CPUUsage    float64 `json:"cpu_usage" example:"12.5" doc:"CPU usage percent since the previous refresh"`
	Uptime      float64 `json:"uptime" doc:"Host uptime in seconds"`
	IsPi        bool    `json:"is_pi" doc:"Whether the host is a Raspberry Pi"`
	Model       string  `json:"model,omitempty" example:"Raspberry Pi 4 Model B Rev 1.4" doc:"Board model"`
}

// Throttling decodes the firmware throttled bitmask.
type Throttling struct {
	Raw                   string `json:"raw" example:"0x50005" doc:"Raw get_throttled value"`
	UnderVoltage          bool   `json:"under_voltage" doc:"Under-voltage detected now"`
	FrequencyCapped       bool   `json:"frequency_capped" doc:"ARM frequency capped now"`
	Throttled             bool   `json:"throttled" doc:"Currently throttled"`
	SoftTempLimit         bool   `json:"soft_temp_limit" doc:"Soft temperature limit active"`
	UnderVoltageOccurred  bool   `json:"under_voltage_occurred" doc:"Under-voltage has occurred since boot"`
	FrequencyCapOccurred  bool   `json:"frequency_cap_occurred" doc:"Frequency capping has occurred since boot"`
	ThrottlingOccurred    bool   `json:"throttling_occurred" doc:"Throttling has occurred since boot"`
	SoftTempLimitOccurred bool   `json:"soft_temp_limit_occurred" doc:"Soft temperature limit has occurred since boot"`
}

// Throttled bits reported by vcgencmd get_throttled.
const (
	bitUnderVoltage          = 1 << 0
	bitFrequencyCapped       = 1 << 1
	bitThrottled             = 1 << 2
	bitSoftTempLimit         = 1 << 3
	bitUnderVoltageOccurred  = 1 << 16
	bitFrequencyCapOccurred  = 1 << 17
	bitThrottlingOccurred    = 1 << 18
	bitSoftTempLimitOccurred = 1 << 19
)

// DecodeThrottled expands a get_throttled bitmask.
func DecodeThrottled(raw string, v uint64) Throttling {
	return Throttling{
		Raw:                   raw,
		UnderVoltage:          v&bitUnderVoltage != 0,
		FrequencyCapped:       v&bitFrequencyCapped != 0,
		Throttled:             v&bitThrottled != 0,
		SoftTempLimit:         v&bitSoftTempLimit != 0,
		UnderVoltageOccurred:  v&bitUnderVoltageOccurred != 0,
		FrequencyCapOccurred:  v&bitFrequencyCapOccurred != 0,
		ThrottlingOccurred:    v&bitThrottlingOccurred != 0,
		SoftTempLimitOccurred: v&bitSoftTempLimitOccurred != 0,
	}
}

// Power is the extended voltage, clock and throttling view.
type Power struct {
	Voltages   map[string]float64 `json:"voltages" doc:"Rail voltages in volts"`
	Clocks     map[string]int64   `json:"clocks" doc:"Clock frequencies in Hz"`
	Memory     map[string]int64   `json:"memory" doc:"Firmware memory split in bytes"`
	Throttling Throttling         `json:"throttling" doc:"Throttling state"`
}

// BootConfig is the firmware configuration view.
type BootConfig struct {
	BootConfig     map[string]string `json:"boot_config" doc:"Settings from config.txt"`
	ActiveOverlays []string          `json:"active_overlays" doc:"Device tree overlays from config.txt"`
	CPUGovernor    string            `json:"cpu_governor" example:"ondemand" doc:"cpufreq scaling governor"`
}

// Snapshot is one complete refresh. It is replaced wholesale.
type Snapshot struct {
	Info        Info       `json:"info"`
	Power       Power      `json:"power"`
	Config      BootConfig `json:"config"`
	RefreshedAt time.Time  `json:"refreshed_at" doc:"Time of the last successful refresh"`
	Stale       bool       `json:"stale" doc:"True when the last refresh failed or none has succeeded yet"`
}
