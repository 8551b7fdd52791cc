package privileged

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// MaxDocumentSize caps what the helper accepts on stdin.
const MaxDocumentSize = 1 << 20

// Helper implements the zman-helper verbs on top of a Local writer. It
// re-checks every target itself; it never relies on the caller having done so.
type Helper struct {
	Local *Local
}

// Write reads the document from in, replaces path and prints the result as
// JSON to out.
func (h *Helper) Write(ctx context.Context, path string, in io.Reader, out io.Writer) error {
	if err := CheckPath(path); err != nil {
		return err
	}
	content, err := io.ReadAll(io.LimitReader(in, MaxDocumentSize+1))
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if len(content) > MaxDocumentSize {
		return fmt.Errorf("document exceeds %d bytes", MaxDocumentSize)
	}
	res, err := h.Local.WriteFile(ctx, path, content)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	return enc.Encode(res)
}

// DaemonReload runs systemctl daemon-reload.
func (h *Helper) DaemonReload(ctx context.Context) error {
	return h.Local.DaemonReload(ctx)
}

// Unit runs a restart/stop/start on an allow-listed service.
func (h *Helper) Unit(ctx context.Context, verb, service string) error {
	action, err := ParseUnitAction(verb)
	if err != nil {
		return err
	}
	if err := CheckService(service); err != nil {
		return err
	}
	return h.Local.Unit(ctx, action, service)
}
