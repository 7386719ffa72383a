package registration

import "time"

// Attribute describes one reading or control the device exposes.
type Attribute struct {
	Key         string
	DisplayName string
	Unit        string

	// Type defaults to "INFO".
	Type string

	// Extras is opaque metadata passed to the backend unchanged.
	Extras map[string]any
}

// Record is the registration state.
type Record struct {
	RetryCount  uint32
	LastAttempt time.Time
	Registered  bool
}

// Broker is a messaging endpoint.
type Broker struct {
	Host string
	Port int
}

// registerRequest is the body of the register call.
type registerRequest struct {
	Name           string             `json:"name"`
	DeviceID       string             `json:"deviceId"`
	Type           string             `json:"type"`
	Category       string             `json:"category"`
	UpdateInterval int64              `json:"updateInterval"`
	Status         string             `json:"status"`
	Host           string             `json:"host"`
	MacAddr        string             `json:"macAddr"`
	Reboot         bool               `json:"reboot"`
	Sleep          bool               `json:"sleep"`
	AccessURL      string             `json:"accessUrl"`
	Attributes     []attributePayload `json:"attributes"`
}

type attributePayload struct {
	Value         string         `json:"value"`
	DisplayName   string         `json:"displayName"`
	Key           string         `json:"key"`
	Units         string         `json:"units"`
	Type          string         `json:"type"`
	Extras        map[string]any `json:"extras"`
	Visible       bool           `json:"visible"`
	ValueDataType string         `json:"valueDataType"`
}

type registerResponse struct {
	ID string `json:"id"`
}

type credentialsRequest struct {
	MQTT     bool   `json:"mqtt"`
	DeviceID string `json:"deviceId"`
}

type credentialsResponse struct {
	Host string `json:"MQTT_HOST"`
	Port int    `json:"MQTT_PORT"`
}

type networkListRequest struct {
	WiFi string `json:"wifi"`
}
