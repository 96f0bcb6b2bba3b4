package telemetry

// SystemSnapshot is the host section of the status report. Sizes are in
// decimal gigabytes rounded to two places.
type SystemSnapshot struct {
	Hostname          string             `json:"hostname"`
	Platform          string             `json:"platform"`
	Arch              string             `json:"arch"`
	OSDistro          string             `json:"os_distro"`
	Release           string             `json:"release"`
	UptimeOSSeconds   uint64             `json:"uptime_os_seconds"`
	CPUModel          string             `json:"cpu_model"`
	Cores             int                `json:"cores"`
	CPUSpeedGHz       float64            `json:"cpu_speed_ghz"`
	CPUTemperatureC   *float64           `json:"cpu_temperature_celsius"`
	CPULoadPercent    *float64           `json:"cpu_load_percent"`
	RAMTotalGB        float64            `json:"ram_total_gb"`
	RAMUsedGB         float64            `json:"ram_used_gb"`
	RAMFreeGB         float64            `json:"ram_free_gb"`
	DiskTotalGB       float64            `json:"disk_total_gb"`
	DiskUsedGB        float64            `json:"disk_used_gb"`
	DiskFreeGB        float64            `json:"disk_free_gb"`
	RunningProcesses  uint64             `json:"running_processes"`
	NetworkInterfaces []NetworkInterface `json:"network_interfaces"`
}

// NetworkInterface describes one host interface. Speed is in Mbit/s when known.
type NetworkInterface struct {
	Iface string `json:"iface"`
	IP4   string `json:"ip4"`
	MAC   string `json:"mac"`
	Speed *int   `json:"speed"`
}
