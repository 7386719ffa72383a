package mqtt

import "strings"

// Topic suffixes under the deployment's base prefix.
const (
	suffixLiveData = "sendLiveData"
	suffixData     = "sendData"
	suffixAction   = "action"
	suffixUpdate   = "update"
	suffixAck      = "ackAction"
)

// Topics builds the device topic set under a base prefix.
//
//	topics := mqtt.Topics{Base: "automata"}
//	topics.Update("dev-123") // "automata/update/dev-123"
type Topics struct {
	Base string
}

func (t Topics) join(parts ...string) string {
	return strings.Join(append([]string{strings.TrimSuffix(t.Base, "/")}, parts...), "/")
}

// LiveData is where on-demand live readings are published.
func (t Topics) LiveData() string { return t.join(suffixLiveData) }

// Data is where periodic snapshots are published.
func (t Topics) Data() string { return t.join(suffixData) }

// Action is where device-originated actions are published.
func (t Topics) Action() string { return t.join(suffixAction) }

// AckAction is where action acknowledgements are published.
func (t Topics) AckAction() string { return t.join(suffixAck) }

// Update is the per-device configuration topic the device subscribes to.
func (t Topics) Update(deviceID string) string { return t.join(suffixUpdate, deviceID) }

// ActionFor is the per-device command topic the device subscribes to.
func (t Topics) ActionFor(deviceID string) string { return t.join(suffixAction, deviceID) }
