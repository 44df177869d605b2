// Package device defines the capabilities devices expose to commands and the
// ordered inventory (Collection) commands resolve their targets from.
//
// Commands never hold a concrete driver type. They ask the collection for a
// device by id, or for the first device implementing a capability interface,
// and talk to it through that interface.
package device
