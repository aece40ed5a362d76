// Package discovery finds Lutron bridges on the LAN over mDNS.
//
// Bridges advertise _lutron._tcp with a host name of the form
// lutron-<serial in hex>.local; the hex serial is the gateway's bridge ID.
// The Discoverer browses continuously and reports each bridge the first
// time it is seen (isUpdate false) and again whenever its address changes
// (isUpdate true). The gateway feeds updates to Engine.UpdateAddress so a
// bridge that moved to a new DHCP lease is reconnected without restarting.
package discovery
