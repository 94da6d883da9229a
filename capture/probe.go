package capture

import (
	"context"
	"time"

	"github.com/siteforge/siteforge/models"
)

// Standalone probes used by /api/get-style and /api/is-visible. They
// navigate a pooled session to the target without running the pipeline.

// probeTimeout bounds a single targeted inspection.
const probeTimeout = 20 * time.Second

// ComputedStyle returns the computed style map for the first element
// matching selector on the target page.
func (c *Capturer) ComputedStyle(ctx context.Context, targetURL, selector string) (map[string]string, error) {
	sess, err := c.pool.Get()
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeBrowserCrash, "failed to acquire browser session", err)
	}
	ok := false
	defer func() {
		_ = sess.page.Navigate("about:blank")
		c.pool.Put(sess, ok)
	}()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	p := sess.page.Context(probeCtx)

	if err := p.Navigate(targetURL); err != nil {
		return nil, categorizeError(err, "navigation to target URL failed")
	}
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)

	res, err := p.Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		const cs = window.getComputedStyle(el);
		const out = {};
		for (let i = 0; i < cs.length; i++) {
			const prop = cs.item(i);
			out[prop] = cs.getPropertyValue(prop);
		}
		return out;
	}`, selector)
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeInternal, "style evaluation failed", err)
	}
	if res.Value.Nil() {
		return nil, models.NewCloneError(models.ErrCodeNotFound, "no element matches selector", nil)
	}

	ok = true
	return toPropMap(res.Value.Map()), nil
}

// IsVisible reports whether the first element matching selector is
// rendered inside the layout, with its bounding box.
func (c *Capturer) IsVisible(ctx context.Context, targetURL, selector string) (bool, *models.BoundingBox, error) {
	sess, err := c.pool.Get()
	if err != nil {
		return false, nil, models.NewCloneError(models.ErrCodeBrowserCrash, "failed to acquire browser session", err)
	}
	ok := false
	defer func() {
		_ = sess.page.Navigate("about:blank")
		c.pool.Put(sess, ok)
	}()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	p := sess.page.Context(probeCtx)

	if err := p.Navigate(targetURL); err != nil {
		return false, nil, categorizeError(err, "navigation to target URL failed")
	}
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)

	res, err := p.Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		const cs = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const visible = cs.display !== 'none' && cs.visibility !== 'hidden' &&
			parseFloat(cs.opacity) > 0 && rect.width > 0 && rect.height > 0;
		return { visible: visible, x: rect.x, y: rect.y, width: rect.width, height: rect.height };
	}`, selector)
	if err != nil {
		return false, nil, models.NewCloneError(models.ErrCodeInternal, "visibility evaluation failed", err)
	}
	if res.Value.Nil() {
		return false, nil, models.NewCloneError(models.ErrCodeNotFound, "no element matches selector", nil)
	}

	m := res.Value.Map()
	box := &models.BoundingBox{
		X:      num(m, "x"),
		Y:      num(m, "y"),
		Width:  num(m, "width"),
		Height: num(m, "height"),
	}

	ok = true
	return m["visible"].Bool(), box, nil
}
