package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type RegisterMessage struct {
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	ValueTemplate     string         `json:"value_template"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	StateClass        string         `json:"state_class,omitempty"`
	Device            RegisterDevice `json:"device"`
}

// Device identifies a publishable unit: the Solar-Log itself or one of its inverters.
type Device struct {
	ID     string
	Name   string
	Parent string
}

type DeviceStatus struct {
	Name  string      `json:"name"`
	Slug  string      `json:"slug"`
	Value *string     `json:"value"`
	Unit  NumericUnit `json:"unit"`
}
