package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine.
// The ID is app-specific so it's safe to publish.
func MachineID() string {
	id, err := machineid.ProtectedID("oilink")
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		return "unknown"
	}
	return id
}
