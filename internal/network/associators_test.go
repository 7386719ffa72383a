package network

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/automata-agent/internal/process"
)

type fakeRunner struct {
	calls  [][]string
	result process.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, argv ...string) (process.Result, error) {
	f.calls = append(f.calls, argv)
	return f.result, f.err
}

func TestNmcli_Associate(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want []string
	}{
		{
			name: "with password",
			cred: Credential{SSID: "LAN-D", Password: "secret"},
			want: []string{"nmcli", "device", "wifi", "connect", "LAN-D", "password", "secret", "ifname", "wlan0"},
		},
		{
			name: "open network",
			cred: Credential{SSID: "Guest"},
			want: []string{"nmcli", "device", "wifi", "connect", "Guest", "ifname", "wlan0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			n := NewNmcli(runner, "wlan0")
			if err := n.Associate(context.Background(), tt.cred); err != nil {
				t.Fatalf("Associate() error = %v", err)
			}
			if !reflect.DeepEqual(runner.calls[0], tt.want) {
				t.Errorf("argv = %v, want %v", runner.calls[0], tt.want)
			}
		})
	}
}

func TestNmcli_AssociateFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 10"), result: process.Result{Stderr: "No network with SSID"}}
	n := NewNmcli(runner, "wlan0")

	err := n.Associate(context.Background(), Credential{SSID: "missing"})
	if !errors.Is(err, ErrAssociationFailed) {
		t.Errorf("Associate() error = %v, want ErrAssociationFailed", err)
	}
}

func TestNmcli_ConnectedIsCached(t *testing.T) {
	runner := &fakeRunner{result: process.Result{Stdout: "GENERAL.STATE:100 (connected)"}}
	n := NewNmcli(runner, "wlan0")
	now := t0
	n.now = func() time.Time { return now }

	if !n.Connected(context.Background()) {
		t.Fatal("Connected() = false, want true")
	}
	now = now.Add(500 * time.Millisecond)
	n.Connected(context.Background())
	if len(runner.calls) != 1 {
		t.Errorf("nmcli calls within cache window = %d, want 1", len(runner.calls))
	}

	now = now.Add(time.Second)
	runner.result.Stdout = "GENERAL.STATE:30 (disconnected)"
	if n.Connected(context.Background()) {
		t.Error("Connected() = true after state changed, want false")
	}
}

func TestParseDeviceState(t *testing.T) {
	tests := []struct {
		out  string
		want bool
	}{
		{"GENERAL.STATE:100 (connected)", true},
		{"GENERAL.STATE:70 (connecting (getting IP configuration))", false},
		{"GENERAL.STATE:30 (disconnected)", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := parseDeviceState(tt.out); got != tt.want {
			t.Errorf("parseDeviceState(%q) = %v, want %v", tt.out, got, tt.want)
		}
	}
}

func TestParseNetworkList(t *testing.T) {
	doc := []byte(`{"wn1":"LAN-D","wp1":"a","wn2":"","wp2":"b","wn3":"Net2.4","wp3":"c","wn6":"ignored"}`)
	want := []Credential{{SSID: "LAN-D", Password: "a"}, {SSID: "Net2.4", Password: "c"}}

	if got := ParseNetworkList(doc); !reflect.DeepEqual(got, want) {
		t.Errorf("ParseNetworkList() = %v, want %v", got, want)
	}
	if got := ParseNetworkList([]byte(`{not json`)); got != nil {
		t.Errorf("ParseNetworkList(invalid) = %v, want nil", got)
	}
}
