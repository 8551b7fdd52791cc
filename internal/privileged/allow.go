// Package privileged performs the few mutations zman needs root for:
// writing allow-listed files and driving allow-listed systemd units.
//
// The allow-lists are compiled in. Both the in-process writer and the
// zman-helper binary check every request against them, so a helper invoked
// directly through pkexec cannot be talked into touching anything else.
package privileged

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sigreer/zman/internal/fault"
)

// allowedPaths are the only files either writer will replace.
var allowedPaths = map[string]bool{
	"/etc/systemd/zram-generator.conf": true,
	"/etc/sysctl.d/99-zman.conf":       true,
	"/etc/default/grub.d/99-zman.cfg":  true,
}

// ServicePrefix is the only unit family that may be started, stopped or
// restarted.
const ServicePrefix = "systemd-zram-setup@zram"

var serviceSuffix = regexp.MustCompile(`^\d+\.service$`)

// UnitAction is a systemctl verb.
type UnitAction string

const (
	Restart UnitAction = "restart"
	Stop    UnitAction = "stop"
	Start   UnitAction = "start"
)

// ParseUnitAction accepts restart, stop and start.
func ParseUnitAction(s string) (UnitAction, error) {
	switch a := UnitAction(s); a {
	case Restart, Stop, Start:
		return a, nil
	}
	return "", fault.Validation("unsupported unit action %q", s)
}

// UnitName returns the generator's setup unit for a device.
func UnitName(device string) string {
	return "systemd-zram-setup@" + device + ".service"
}

// CheckPath fails unless path is exactly an allow-listed absolute path.
func CheckPath(path string) error {
	if !filepath.IsAbs(path) || filepath.Clean(path) != path {
		return fault.Validation("refusing non-canonical path %q", path)
	}
	if !allowedPaths[path] {
		return fault.Validation("path %q is not in the write allow-list", path)
	}
	return nil
}

// CheckService fails unless service is systemd-zram-setup@zram<N>.service.
func CheckService(service string) error {
	rest, ok := strings.CutPrefix(service, ServicePrefix)
	if !ok || !serviceSuffix.MatchString(rest) {
		return fault.Validation("service %q is not in the unit allow-list", service)
	}
	return nil
}

// AllowedPaths lists the write allow-list, sorted.
func AllowedPaths() []string {
	out := make([]string, 0, len(allowedPaths))
	for p := range allowedPaths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type opKey struct{}

// WithOperation tags ctx with an operation ID that ends up in the journal.
func WithOperation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, opKey{}, id)
}

// OperationFrom returns the operation ID stored by WithOperation.
func OperationFrom(ctx context.Context) string {
	id, _ := ctx.Value(opKey{}).(string)
	return id
}
