// Package wpacli implements wifi.Driver on top of wpa_supplicant.
//
// Every operation is a short wpa_cli (or ip) invocation with a timeout, so a
// wedged supplicant cannot block the supervisor for longer than
// commandTimeout.
package wpacli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nerrad567/sensorlink/internal/wifi"
)

const (
	// commandTimeout bounds every external command.
	commandTimeout = 5 * time.Second

	defaultBinary = "wpa_cli"
	ipBinary      = "ip"
)

// wpa_state values reported by "wpa_cli status".
const (
	stateCompleted         = "COMPLETED"
	stateInterfaceDisabled = "INTERFACE_DISABLED"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs commands with os/exec.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // binary comes from validated config
}

// Driver controls one wireless interface through wpa_cli.
type Driver struct {
	binary string
	iface  string
	run    Runner
}

// New creates a Driver for iface. An empty binary means "wpa_cli" on PATH.
func New(binary, iface string) *Driver {
	if binary == "" {
		binary = defaultBinary
	}
	return &Driver{binary: binary, iface: iface, run: execRunner}
}

// NewWithRunner creates a Driver using a custom command runner.
func NewWithRunner(binary, iface string, run Runner) *Driver {
	d := New(binary, iface)
	d.run = run
	return d
}

// Activate brings the interface link up or down.
func (d *Driver) Activate(on bool) error {
	state := "down"
	if on {
		state = "up"
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if out, err := d.run(ctx, ipBinary, "link", "set", d.iface, state); err != nil {
		return fmt.Errorf("%w: ip link set %s %s: %w (%s)", wifi.ErrDriver, d.iface, state, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Associate replaces any configured networks with one for ssid and selects it.
// An empty password configures an open network.
func (d *Driver) Associate(ssid, password string) error {
	if _, err := d.cli("remove_network", "all"); err != nil {
		return err
	}

	out, err := d.cli("add_network")
	if err != nil {
		return err
	}
	id := lastLine(out)
	if id == "" || id == "FAIL" {
		return fmt.Errorf("%w: add_network returned %q", wifi.ErrDriver, id)
	}

	settings := [][]string{{"ssid", quote(ssid)}}
	if password == "" {
		settings = append(settings, []string{"key_mgmt", "NONE"})
	} else {
		settings = append(settings, []string{"psk", quote(password)})
	}
	for _, kv := range settings {
		if err := d.cliOK("set_network", id, kv[0], kv[1]); err != nil {
			return err
		}
	}

	return d.cliOK("select_network", id)
}

// Disassociate drops the current association.
func (d *Driver) Disassociate() error {
	return d.cliOK("disconnect")
}

// Status maps wpa_state and the presence of an address to a wifi.Status.
//
// wpa_cli does not report why an association attempt failed, so the
// no-AP and wrong-password codes are never produced; a failing attempt
// stays non-terminal until the poll budget runs out.
func (d *Driver) Status() (wifi.Status, error) {
	fields, err := d.status()
	if err != nil {
		return wifi.StatusIdle, err
	}

	switch fields["wpa_state"] {
	case stateCompleted:
		if fields["ip_address"] != "" {
			return wifi.StatusGotIP, nil
		}
		return wifi.StatusNoIP, nil
	case stateInterfaceDisabled:
		return wifi.StatusConnectFail, nil
	case "":
		return wifi.StatusIdle, nil
	default:
		return wifi.StatusConnecting, nil
	}
}

// IPConfig reports the address wpa_supplicant knows for the interface.
func (d *Driver) IPConfig() (wifi.IPConfig, error) {
	fields, err := d.status()
	if err != nil {
		return wifi.IPConfig{}, err
	}
	if fields["ip_address"] == "" {
		return wifi.IPConfig{}, fmt.Errorf("%w: no address assigned", wifi.ErrDriver)
	}
	return wifi.IPConfig{IP: fields["ip_address"]}, nil
}

// IsAssociated reports whether wpa_supplicant has a completed association.
func (d *Driver) IsAssociated() bool {
	fields, err := d.status()
	if err != nil {
		return false
	}
	return fields["wpa_state"] == stateCompleted
}

func (d *Driver) status() (map[string]string, error) {
	out, err := d.cli("status")
	if err != nil {
		return nil, err
	}
	return parseStatus(out), nil
}

// cli runs one wpa_cli command against the interface.
func (d *Driver) cli(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	full := append([]string{"-i", d.iface}, args...)
	out, err := d.run(ctx, d.binary, full...)
	if err != nil {
		return nil, fmt.Errorf("%w: wpa_cli %s: %w", wifi.ErrDriver, args[0], err)
	}
	return out, nil
}

// cliOK runs a command whose only expected reply is "OK".
func (d *Driver) cliOK(args ...string) error {
	out, err := d.cli(args...)
	if err != nil {
		return err
	}
	if reply := lastLine(out); reply != "OK" {
		return fmt.Errorf("%w: wpa_cli %s replied %q", wifi.ErrDriver, args[0], reply)
	}
	return nil
}

// parseStatus turns "key=value" lines into a map.
func parseStatus(out []byte) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// quote wraps a value the way wpa_cli expects string network variables.
func quote(s string) string {
	return `"` + s + `"`
}
