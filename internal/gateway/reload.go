package gateway

import (
	"context"
	"fmt"

	"gwprov/internal/browser"
	"gwprov/internal/portdata"
)

var (
	saveHardware  = browser.CSS(`input[name="btn_goip_port_hwattr"]`)
	saveBasic     = browser.CSS(`input[name="btn_goip_basic_settings"]`)
	refreshButton = browser.Role("button", "Refresh")
	listFootCell  = browser.CSS(".listFoot > tbody > tr > td:nth-child(3)")
	listFootBox   = browser.CSS(".listFoot > tbody > tr > td:nth-child(3) > input")
	enableBox     = browser.Role("checkbox", "Enable")
	enableCell    = browser.Role("cell", "Enable")
)

type reloadOp int

const (
	opSend reloadOp = iota
	opClick
	opCheck
	opUncheck
	opSave
)

type reloadStep struct {
	op     reloadOp
	target browser.Locator
	cmd    portdata.Command
}

func send(cmd portdata.Command) reloadStep { return reloadStep{op: opSend, cmd: cmd} }
func click(l browser.Locator) reloadStep   { return reloadStep{op: opClick, target: l} }
func check(l browser.Locator) reloadStep   { return reloadStep{op: opCheck, target: l} }
func uncheck(l browser.Locator) reloadStep { return reloadStep{op: opUncheck, target: l} }
func save(l browser.Locator) reloadStep    { return reloadStep{op: opSave, target: l} }

// reloadSequence re-reads SIM and modem state on every port by querying the
// modules while toggling the port hardware and basic enable settings.
var reloadSequence = []reloadStep{
	send(portdata.CommandICCID),
	check(listFootBox), save(saveHardware),

	click(refreshButton), check(allPorts),
	check(listFootBox), uncheck(listFootBox), save(saveHardware),

	check(enableBox), save(saveBasic),
	click(enableCell), uncheck(enableBox), save(saveBasic),

	send(portdata.CommandIMEI),
	check(enableBox), save(saveBasic),

	send(portdata.CommandIMEI),
	check(listFootBox), save(saveHardware),

	uncheck(enableBox), save(saveBasic),

	check(listFootBox), uncheck(listFootBox), save(saveHardware),

	click(enableCell), check(enableBox), save(saveBasic),

	save(saveHardware),

	send(portdata.CommandMDN),

	click(listFootCell), save(saveHardware),
	click(listFootCell), uncheck(listFootBox), save(saveHardware),

	uncheck(enableBox), save(saveBasic),
	click(enableCell), check(enableBox), save(saveBasic),
	uncheck(enableBox),
}

// ReloadPorts runs the port reload sequence on the Port Settings screen.
// OpenPortSettings must have been called.
func (c *Console) ReloadPorts(ctx context.Context) error {
	c.log.Info("starting port reload sequence (%d steps)", len(reloadSequence))
	for i, step := range reloadSequence {
		if err := c.reloadStep(ctx, step); err != nil {
			return fmt.Errorf("reload step %d: %w", i+1, err)
		}
	}
	c.log.Info("port reload sequence complete")
	return nil
}

func (c *Console) reloadStep(ctx context.Context, step reloadStep) error {
	if step.op == opSend {
		return c.SendCommand(ctx, step.cmd)
	}
	right, err := c.frame(ctx, frameRight)
	if err != nil {
		return err
	}
	el, err := browser.WaitFor(ctx, right, step.target, c.timeouts.Action)
	if err != nil {
		return fmt.Errorf("%s: %w", step.target, err)
	}
	switch step.op {
	case opCheck:
		return el.Check(ctx)
	case opUncheck:
		return el.Uncheck(ctx)
	case opSave:
		if err := el.Click(ctx); err != nil {
			return err
		}
		return c.sleep(ctx, c.timeouts.SaveSettle)
	default:
		return el.Click(ctx)
	}
}
