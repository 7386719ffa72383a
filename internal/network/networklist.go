package network

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// maxListedNetworks is the number of wnN/wpN slots in a backend network list.
const maxListedNetworks = 5

// ParseNetworkList reads the backend network list document
// {"wn1":"ssid","wp1":"secret",...,"wn5":...,"wp5":...}.
// Empty or missing slots are skipped; invalid JSON yields nil.
func ParseNetworkList(doc []byte) []Credential {
	if !gjson.ValidBytes(doc) {
		return nil
	}
	parsed := gjson.ParseBytes(doc)

	var creds []Credential
	for i := 1; i <= maxListedNetworks; i++ {
		n := strconv.Itoa(i)
		ssid := parsed.Get("wn" + n).String()
		if ssid == "" {
			continue
		}
		creds = append(creds, Credential{SSID: ssid, Password: parsed.Get("wp" + n).String()})
	}
	return creds
}
