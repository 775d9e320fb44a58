package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"s5-keeper/internal/errs"
)

// Usage is printed after the info block when no known verb is given.
const Usage = `Usage: s5 {start|stop|restart|status|info|update}
  start    start the proxy service
  stop     stop the proxy service
  restart  restart the proxy service
  status   show the supervisor status of the proxy service
  info     show the proxy connection info
  update   upgrade the proxy binary to the latest release
`

/**
 * Dispatcher maps management verbs to keeper actions and prints the outcome
 */
type Dispatcher struct {
	k       *Keeper
	out     io.Writer
	actions map[string]func(ctx context.Context) error
}

func NewDispatcher(k *Keeper, out io.Writer) *Dispatcher {
	d := &Dispatcher{k: k, out: out}
	d.actions = map[string]func(ctx context.Context) error{
		"start":   d.start,
		"stop":    d.stop,
		"restart": d.restart,
		"status":  d.status,
		"info":    d.info,
		"update":  d.update,
	}
	return d
}

/**
 * Run one management verb
 * @param {context.Context} ctx - Context
 * @param {string} verb - start|stop|restart|status|info|update, anything else falls back
 * @returns {error} Action failure; the fallback never fails
 * @description
 * - The fallback prints the persisted info block followed by Usage
 * - Without an info block the installed unit, if any, is described instead
 */
func (d *Dispatcher) Dispatch(ctx context.Context, verb string) error {
	if action, ok := d.actions[strings.ToLower(strings.TrimSpace(verb))]; ok {
		return action(ctx)
	}
	return d.fallback()
}

func (d *Dispatcher) fallback() error {
	info, err := d.k.Info()
	switch {
	case err == nil:
		fmt.Fprint(d.out, info)
	case errors.Is(err, errs.ErrNotProvisioned):
		d.describeUnit("proxy is not provisioned yet, run 's5 install' first")
	default:
		fmt.Fprintf(d.out, "read info: %v\n", err)
		d.describeUnit("")
	}
	fmt.Fprintln(d.out)
	fmt.Fprint(d.out, Usage)
	return nil
}

// describeUnit prints where the unit file is and its restart policy, or missing when absent.
func (d *Dispatcher) describeUnit(missing string) {
	unit, err := d.k.Registrar.ReadUnit(d.k.ServiceName())
	if err != nil {
		if missing != "" {
			fmt.Fprintln(d.out, missing)
		}
		return
	}
	// ExecStart 含密码, 不输出
	fmt.Fprintf(d.out, "info file is missing but unit %s exists (Restart=%s, RestartSec=%d)\n",
		unit.Path, unit.Restart, unit.RestartSec)
	fmt.Fprintf(d.out, "check it with 's5 status', or run 's5 install' again to rewrite it\n")
}

func (d *Dispatcher) start(ctx context.Context) error {
	if err := d.k.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "service %s started\n", d.k.ServiceName())
	return nil
}

func (d *Dispatcher) stop(ctx context.Context) error {
	if err := d.k.Stop(ctx); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "service %s stopped\n", d.k.ServiceName())
	return nil
}

func (d *Dispatcher) restart(ctx context.Context) error {
	if err := d.k.Restart(ctx); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "service %s restarted\n", d.k.ServiceName())
	return nil
}

func (d *Dispatcher) status(ctx context.Context) error {
	_, text, err := d.k.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(d.out, text)
	return nil
}

func (d *Dispatcher) info(ctx context.Context) error {
	info, err := d.k.Info()
	if err != nil {
		return err
	}
	fmt.Fprint(d.out, info)
	return nil
}

func (d *Dispatcher) update(ctx context.Context) error {
	result, err := d.k.Update(ctx)
	if err != nil {
		return err
	}
	if !result.Upgraded {
		fmt.Fprintf(d.out, "proxy binary %s is already the latest version\n", result.From)
		return nil
	}
	fmt.Fprintf(d.out, "proxy binary upgraded from %s to %s\n", result.From, result.To)
	return nil
}
