package gateway

import (
	"context"
	"fmt"
	"regexp"

	"gwprov/internal/browser"
	"gwprov/internal/portdata"
)

// statusPortRe matches the port label in a Port Status row ("12A").
var statusPortRe = regexp.MustCompile(`(\d{1,2})A`)

// PortStatusCells opens the Port Status screen and returns the markup of the
// first cell of each port row, keyed by port. Rows without a recognizable port
// label are skipped; a port that cannot be read is simply absent.
func (c *Console) PortStatusCells(ctx context.Context) (map[portdata.Key]string, error) {
	left, err := c.frame(ctx, frameLeft)
	if err != nil {
		return nil, err
	}
	if err := c.click(ctx, left, portStatusLink); err != nil {
		return nil, fmt.Errorf("port status link: %w", err)
	}
	if err := c.sleep(ctx, c.timeouts.StatusSettle); err != nil {
		return nil, err
	}

	right, err := c.frame(ctx, frameRight)
	if err != nil {
		return nil, err
	}
	if _, err := browser.WaitFor(ctx, right, statusTable, c.timeouts.StatusTable); err != nil {
		return nil, fmt.Errorf("status table: %w", err)
	}

	rows, err := right.LocateAll(ctx, tableRows)
	if err != nil {
		return nil, err
	}
	cells := make(map[portdata.Key]string)
	for _, row := range rows {
		txt, err := row.InnerText(ctx)
		if err != nil {
			if browser.IsFatal(err) {
				return nil, err
			}
			continue
		}
		m := statusPortRe.FindStringSubmatch(portdata.NormalizeText(txt))
		if m == nil {
			continue
		}
		key, err := portdata.NormalizeKey(m[1] + "A")
		if err != nil {
			continue
		}
		if _, seen := cells[key]; seen {
			continue
		}
		cell, err := row.Find(ctx, firstCell)
		if err != nil {
			if browser.IsFatal(err) {
				return nil, err
			}
			continue
		}
		html, err := cell.InnerHTML(ctx)
		if err != nil {
			if browser.IsFatal(err) {
				return nil, err
			}
			c.log.Warn("could not read status cell for %s: %v", key, err)
			continue
		}
		cells[key] = html
	}
	c.log.Info("read status for %d ports", len(cells))
	return cells, nil
}
