// Package discovery finds NVUE-capable switches on the management network
// with multicast DNS.
//
// Cumulus Linux advertises its HTTPS endpoint through avahi. The scanner
// browses a DNS-SD service type, keeps entries whose hostname or instance name
// matches an optional filter, and returns them as Devices that can be added to
// the inventory.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	_ = scanner.SetFilter(`^leaf`)
//	devices, err := scanner.Scan(ctx)
//	for _, d := range devices {
//	    fmt.Println(d.Name(), d.Address())
//	}
//
// # Network Requirements
//
// Switches must be on the same L2 segment as the caller and mDNS (UDP 5353)
// must be allowed.
package discovery
