package port

import (
	"fmt"
	"net"
	"strconv"
)

// defaultHost is the interface the backend sidecar binds to. The dev
// scripts and the sidecar itself only ever listen on loopback.
const defaultHost = "127.0.0.1"

// Probe checks whether ports are free on the local machine.
//
// It asks the operating system directly by binding a listener and closing it
// again, instead of parsing /proc/net/* or shelling out to lsof/ss. The probe
// is what free-port uses to hand a dev script a port for
// PAGENODE_BACKEND_PORT, mirroring how the backend picks its own port before
// announcing it.
type Probe struct {
	// host is the address probes bind to.
	host string
}

// NewProbe creates a Probe that binds to loopback.
func NewProbe() *Probe {
	return &Probe{host: defaultHost}
}

// NewProbeOnHost creates a Probe that binds to the given host address.
// An empty host binds all interfaces.
func NewProbeOnHost(host string) *Probe {
	return &Probe{host: host}
}

// IsPortAvailable reports whether a TCP port is free on the probe host.
// It binds a listener and closes it again immediately.
func (p *Probe) IsPortAvailable(port uint16) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(p.host, strconv.Itoa(int(port))))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// FindAvailablePort scans [startPort, endPort] (inclusive) and returns the
// first TCP port that is free. The search is sequential from startPort
// upward, so repeated calls on an idle machine pick the same port.
func (p *Probe) FindAvailablePort(startPort, endPort uint16) (uint16, error) {
	if startPort == 0 || startPort > endPort {
		return 0, fmt.Errorf("invalid port range %d-%d", startPort, endPort)
	}
	// Inclusive of endPort, which may be 65535.
	for port := int(startPort); port <= int(endPort); port++ {
		if p.IsPortAvailable(uint16(port)) {
			return uint16(port), nil
		}
	}
	return 0, fmt.Errorf("no available tcp port found in range %d-%d", startPort, endPort)
}

// FreePort asks the OS for an ephemeral TCP port by binding port 0, the same
// way the backend chooses the port it announces. The listener is closed
// before returning, so another process may grab the port in between; that
// race is acceptable for dev tooling.
func (p *Probe) FreePort() (uint16, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(p.host, "0"))
	if err != nil {
		return 0, fmt.Errorf("failed to bind an ephemeral port on %q: %w", p.host, err)
	}
	defer func() { _ = listener.Close() }()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", listener.Addr())
	}
	return uint16(tcpAddr.Port), nil
}
