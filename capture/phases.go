package capture

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/siteforge/siteforge/models"
	"github.com/ysmood/gson"
)

// observerJS is injected before navigation. It records layout shifts,
// long tasks and the LCP candidate into window.__sf so they can be read
// back after load without CDP event listeners (the Network/Performance
// event domains conflict with other instrumentation on newer Chromium).
const observerJS = `() => {
	window.__sf = { shifts: [], longTasks: [], lcp: 0 };
	try {
		new PerformanceObserver((list) => {
			for (const e of list.getEntries()) {
				if (!e.hadRecentInput) {
					window.__sf.shifts.push({ value: e.value, time: e.startTime });
				}
			}
		}).observe({ type: 'layout-shift', buffered: true });
	} catch (err) {}
	try {
		new PerformanceObserver((list) => {
			for (const e of list.getEntries()) {
				window.__sf.longTasks.push({ start: e.startTime, duration: e.duration });
			}
		}).observe({ type: 'longtask', buffered: true });
	} catch (err) {}
	try {
		new PerformanceObserver((list) => {
			for (const e of list.getEntries()) {
				window.__sf.lcp = e.startTime;
			}
		}).observe({ type: 'largest-contentful-paint', buffered: true });
	} catch (err) {}
}`

// collectTimings reads navigation and paint timings from the Performance
// API. Best-effort; a page that blocks the API yields zero samples.
func collectTimings(p *rod.Page, snap *PageSnapshot) {
	res, err := p.Eval(`() => {
		const out = { ttfb: 0, fcp: 0, dcl: 0, load: 0, status: 0 };
		try {
			const nav = performance.getEntriesByType('navigation')[0];
			if (nav) {
				out.ttfb = nav.responseStart;
				out.dcl = nav.domContentLoadedEventEnd;
				out.load = nav.loadEventEnd;
				out.status = nav.responseStatus || 0;
			}
			for (const e of performance.getEntriesByType('paint')) {
				if (e.name === 'first-contentful-paint') out.fcp = e.startTime;
			}
		} catch (err) {}
		return out;
	}`)
	if err != nil {
		return
	}
	m := res.Value.Map()
	snap.Timing.TTFBMs = num(m, "ttfb")
	snap.Timing.FCPMs = num(m, "fcp")
	snap.Timing.DOMContentLoadedMs = num(m, "dcl")
	snap.Timing.LoadMs = num(m, "load")
	snap.StatusCode = int(num(m, "status"))
}

// collectRecordedMetrics drains the injected observers and the resource
// timing buffer into the snapshot.
func collectRecordedMetrics(p *rod.Page, snap *PageSnapshot) {
	res, err := p.Eval(`() => {
		const sf = window.__sf || { shifts: [], longTasks: [], lcp: 0 };
		const resources = [];
		try {
			for (const e of performance.getEntriesByType('resource')) {
				resources.push({
					url: e.name,
					type: e.initiatorType,
					duration: e.duration,
					size: e.transferSize || 0,
				});
			}
		} catch (err) {}
		return { shifts: sf.shifts, longTasks: sf.longTasks, lcp: sf.lcp, resources: resources };
	}`)
	if err != nil {
		return
	}
	m := res.Value.Map()
	snap.Timing.LCPMs = num(m, "lcp")
	for _, s := range m["shifts"].Arr() {
		sm := s.Map()
		snap.LayoutShifts = append(snap.LayoutShifts, LayoutShift{
			Value:  num(sm, "value"),
			TimeMs: num(sm, "time"),
		})
	}
	for _, lt := range m["longTasks"].Arr() {
		lm := lt.Map()
		snap.LongTasks = append(snap.LongTasks, models.LongTask{
			StartMs:    num(lm, "start"),
			DurationMs: num(lm, "duration"),
		})
	}
	for _, r := range m["resources"].Arr() {
		rm := r.Map()
		snap.Network = append(snap.Network, models.NetworkRequest{
			URL:          rm["url"].Str(),
			Method:       "GET",
			ResourceType: rm["type"].Str(),
			DurationMs:   num(rm, "duration"),
			ByteSize:     int64(num(rm, "size")),
		})
	}
}

// scrollUntilQuiet scrolls down one viewport at a time until the DOM
// stops growing (lazy content has quiesced) or the iteration budget is
// spent, then returns to the top.
func scrollUntilQuiet(p *rod.Page, maxIterations int) error {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("viewport height: %w", err)
	}
	viewportHeight := float64(res.Value.Int())

	prevCount := -1
	stable := 0
	for i := 0; i < maxIterations; i++ {
		if err := p.Mouse.Scroll(0, viewportHeight, 1); err != nil {
			return fmt.Errorf("scroll step %d: %w", i, err)
		}
		time.Sleep(250 * time.Millisecond)

		cr, err := p.Eval(`() => document.getElementsByTagName('*').length`)
		if err != nil {
			return fmt.Errorf("node count: %w", err)
		}
		count := cr.Value.Int()

		atBottom := false
		if br, err := p.Eval(`() => window.innerHeight + window.scrollY >= document.body.scrollHeight - 2`); err == nil {
			atBottom = br.Value.Bool()
		}

		if count == prevCount {
			stable++
			if stable >= 2 && atBottom {
				break
			}
		} else {
			stable = 0
		}
		prevCount = count
	}

	_, err = p.Eval(`() => window.scrollTo(0, 0)`)
	return err
}

// layout-relevant properties recorded per breakpoint. Diffing these
// across widths recovers media-query-equivalent rules.
const breakpointStyleJS = `() => {
	const props = ['display', 'width', 'flex-direction', 'grid-template-columns',
		'font-size', 'position', 'visibility'];
	const out = {};
	const els = document.querySelectorAll('body *');
	let i = 0;
	for (const el of els) {
		if (i++ >= 400) break;
		const path = el.tagName.toLowerCase() + ':nth(' + i + ')';
		const cs = window.getComputedStyle(el);
		const rec = {};
		for (const pr of props) rec[pr] = cs.getPropertyValue(pr);
		out[path] = rec;
	}
	return out;
}`

// captureBreakpoints re-renders at each configured viewport width and
// records layout-relevant computed styles.
func captureBreakpoints(p *rod.Page, widths []int, snap *PageSnapshot) error {
	defer func() {
		// Restore the default viewport whatever happens.
		_ = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width: 1280, Height: 800, DeviceScaleFactor: 1,
		})
	}()

	for _, w := range widths {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width: w, Height: 800, DeviceScaleFactor: 1, Mobile: w < 600,
		}); err != nil {
			return fmt.Errorf("set viewport %d: %w", w, err)
		}
		time.Sleep(200 * time.Millisecond)

		res, err := p.Eval(breakpointStyleJS)
		if err != nil {
			return fmt.Errorf("styles at %d: %w", w, err)
		}
		snap.Breakpoints = append(snap.Breakpoints, BreakpointStyles{
			Width:  w,
			Styles: toStyleMap(res.Value.Map()),
		})
	}
	return nil
}

// captureInteractiveStates synthesizes hover and focus per interactive
// element and records the resulting computed-style deltas.
func captureInteractiveStates(p *rod.Page, snap *PageSnapshot) error {
	res, err := p.Eval(`() => {
		const props = ['color', 'background-color', 'border-color', 'text-decoration-line',
			'box-shadow', 'transform', 'outline-style'];
		const read = (el) => {
			const cs = window.getComputedStyle(el);
			const rec = {};
			for (const pr of props) rec[pr] = cs.getPropertyValue(pr);
			return rec;
		};
		const diff = (before, after) => {
			const d = {};
			for (const k in after) if (after[k] !== before[k]) d[k] = after[k];
			return d;
		};
		const out = [];
		const els = document.querySelectorAll('a, button, input, select, textarea, [onclick]');
		let i = 0;
		for (const el of els) {
			if (i++ >= 60) break;
			const sel = el.tagName.toLowerCase() + ':nth(' + i + ')';
			const base = read(el);

			el.dispatchEvent(new MouseEvent('mouseover', { bubbles: true }));
			const hover = diff(base, read(el));
			el.dispatchEvent(new MouseEvent('mouseout', { bubbles: true }));
			if (Object.keys(hover).length) out.push({ selector: sel, state: 'hover', changed: hover });

			if (el.focus) {
				el.focus();
				const focus = diff(base, read(el));
				el.blur();
				if (Object.keys(focus).length) out.push({ selector: sel, state: 'focus', changed: focus });
			}
		}
		return out;
	}`)
	if err != nil {
		return err
	}
	for _, d := range res.Value.Arr() {
		dm := d.Map()
		snap.Interactive = append(snap.Interactive, InteractiveDelta{
			Selector: dm["selector"].Str(),
			State:    dm["state"].Str(),
			Changed:  toPropMap(dm["changed"].Map()),
		})
	}
	return nil
}

// captureAnimationSamples samples animation-prone properties at several
// time offsets to detect transitions and keyframes.
func captureAnimationSamples(p *rod.Page, snap *PageSnapshot) error {
	const sampleJS = `() => {
		const out = [];
		const els = document.querySelectorAll('body *');
		let i = 0;
		for (const el of els) {
			if (i++ >= 200) break;
			const cs = window.getComputedStyle(el);
			if (cs.transitionDuration === '0s' && cs.animationName === 'none') continue;
			out.push({
				selector: el.tagName.toLowerCase() + ':nth(' + i + ')',
				props: {
					'transform': cs.transform,
					'opacity': cs.opacity,
					'transition-duration': cs.transitionDuration,
					'animation-name': cs.animationName,
				},
			});
		}
		return out;
	}`

	for _, offset := range []float64{0, 250, 500} {
		if offset > 0 {
			time.Sleep(250 * time.Millisecond)
		}
		res, err := p.Eval(sampleJS)
		if err != nil {
			return err
		}
		for _, s := range res.Value.Arr() {
			sm := s.Map()
			snap.Animations = append(snap.Animations, AnimationSample{
				Selector: sm["selector"].Str(),
				OffsetMs: offset,
				Props:    toPropMap(sm["props"].Map()),
			})
		}
	}
	return nil
}

// frameworkGlobals are the runtime bindings probed for the detector's
// behavioral pass.
var frameworkGlobals = []string{
	"React", "__NEXT_DATA__", "Vue", "__NUXT__", "ng", "angular",
	"jQuery", "$", "Shopify", "Squarespace", "Wix", "wp", "wpApiSettings",
	"elementorFrontend", "et_pb_custom", "__gatsby", "___gatsby",
	"Webflow", "dataLayer", "ga", "gtag", "fbq",
}

// collectGlobals records which framework globals exist on the live page.
func collectGlobals(p *rod.Page, snap *PageSnapshot) {
	for _, name := range frameworkGlobals {
		res, err := p.Eval(`(name) => typeof window[name] !== 'undefined'`, name)
		if err != nil {
			continue
		}
		if res.Value.Bool() {
			snap.Globals[name] = true
		}
	}
}

// collectElementStyles records each element's resolved style at the
// default viewport, keyed by a stable element path. The converter's
// style-inlining pass consumes this map.
func collectElementStyles(p *rod.Page, snap *PageSnapshot) {
	res, err := p.Eval(`() => {
		const props = ['color', 'background-color', 'background-image', 'font-family',
			'font-size', 'font-weight', 'line-height', 'text-align',
			'margin-top', 'margin-right', 'margin-bottom', 'margin-left',
			'padding-top', 'padding-right', 'padding-bottom', 'padding-left',
			'border-radius', 'border-width', 'border-style', 'border-color',
			'box-shadow', 'display'];
		const out = {};
		const walk = (el, path) => {
			const cs = window.getComputedStyle(el);
			const rec = {};
			for (const pr of props) {
				const v = cs.getPropertyValue(pr);
				if (v) rec[pr] = v;
			}
			out[path] = rec;
			let idx = 0;
			for (const child of el.children) {
				idx++;
				if (Object.keys(out).length >= 1500) return;
				walk(child, path + '>' + child.tagName.toLowerCase() + ':' + idx);
			}
		};
		if (document.body) walk(document.body, 'body');
		return out;
	}`)
	if err != nil {
		return
	}
	snap.ElementStyles = toStyleMap(res.Value.Map())
}

// collectNavigationLinks records same-origin navigation targets.
func collectNavigationLinks(p *rod.Page, snap *PageSnapshot) {
	res, err := p.Eval(`() => {
		const seen = new Set();
		for (const a of document.querySelectorAll('a[href]')) {
			try {
				const u = new URL(a.href, window.location.href);
				if (u.origin === window.location.origin) seen.add(u.href);
			} catch (err) {}
		}
		return Array.from(seen);
	}`)
	if err != nil {
		return
	}
	for _, l := range res.Value.Arr() {
		snap.NavigationLinks = append(snap.NavigationLinks, l.Str())
	}
}

// --- gson decoding helpers ---

func num(m map[string]gson.JSON, key string) float64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	return v.Num()
}

func toPropMap(m map[string]gson.JSON) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.Str()
	}
	return out
}

func toStyleMap(m map[string]gson.JSON) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for path, rec := range m {
		out[path] = toPropMap(rec.Map())
	}
	return out
}
