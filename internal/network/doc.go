// Package network owns wireless association for the device.
//
// The Controller holds the ordered credential set and the current link
// state. The lifecycle loop calls Poll once per tick; while the link is down
// the controller tries every candidate in configured order, gated by a fixed
// retry delay. Each transition into Associated runs the registered setup
// hooks (time sync, mDNS announcement, network-list refresh) exactly once.
//
// Two associators are provided: Nmcli drives NetworkManager for real
// wireless interfaces, Static reports a permanently associated link for
// wired hosts and development machines.
package network
