package flow

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/pinwatch/browser"
)

// recorderJS listens for clicks, input and Enter in the main document and
// every reachable frame, appending steps to window.top._pinwatchSteps and
// mirroring them to sessionStorage so they survive a navigation.
const recorderJS = `function () {
  var top = window.top;
  top._pinwatchSteps = top._pinwatchSteps || [];
  function selectorOf(el) {
    if (!el || el.nodeType !== 1) return null;
    try {
      if (el.id && typeof el.id === 'string' && /^[a-zA-Z][\w.-]*$/.test(el.id))
        return { by: 'id', value: el.id };
      var tid = el.getAttribute && el.getAttribute('data-testid');
      if (tid) return { by: 'css', value: '[data-testid="' + tid.replace(/"/g, '\\"') + '"]' };
      var tag = el.tagName.toLowerCase();
      if (el.placeholder && (tag === 'input' || tag === 'textarea'))
        return { by: 'xpath', value: '//' + tag + '[@placeholder="' + el.placeholder.replace(/"/g, '\\"') + '"]' };
      if (el.name && (tag === 'input' || tag === 'select'))
        return { by: 'xpath', value: '//' + tag + '[@name="' + el.name.replace(/"/g, '\\"') + '"]' };
      var path = [], cur = el;
      while (cur && cur.nodeType === 1) {
        var idx = 1, sib = cur.previousElementSibling;
        while (sib) { if (sib.tagName === cur.tagName) idx++; sib = sib.previousElementSibling; }
        path.unshift(cur.tagName.toLowerCase() + '[' + idx + ']');
        cur = cur.parentElement;
      }
      return { by: 'xpath', value: '//' + path.join('/') };
    } catch (e) { return null; }
  }
  function push(step) {
    top._pinwatchSteps.push(step);
    try { top.sessionStorage.setItem('_pinwatchSteps', JSON.stringify(top._pinwatchSteps)); } catch (e) {}
  }
  function attach(doc) {
    if (!doc || doc._pinwatchRecorder) return;
    doc._pinwatchRecorder = true;
    doc.addEventListener('click', function (e) {
      var s = selectorOf(e.target);
      if (s) push({ action: 'click', by: s.by, value: s.value });
    }, true);
    doc.addEventListener('input', function (e) {
      var s = selectorOf(e.target);
      var tag = e.target && e.target.tagName;
      if (s && (tag === 'INPUT' || tag === 'TEXTAREA'))
        push({ action: 'send_keys', by: s.by, value: s.value, inputValue: '<PIN>' });
    }, true);
    doc.addEventListener('keydown', function (e) {
      if (e.key !== 'Enter') return;
      var s = selectorOf(e.target);
      if (s) push({ action: 'send_keys', by: s.by, value: s.value, inputValue: '<PIN>', key: 'Enter' });
    }, true);
  }
  function frames() {
    for (var i = 0; i < window.frames.length; i++) {
      try { attach(window.frames[i].document); } catch (e) {}
    }
  }
  attach(document);
  frames();
  setInterval(frames, 500);
}`

const readStepsJS = `() => {
  var t = window.top;
  var arr = (t && t._pinwatchSteps) ? t._pinwatchSteps : [];
  try { var s = t.sessionStorage.getItem('_pinwatchSteps'); if (s) arr = JSON.parse(s); } catch (e) {}
  return arr;
}`

// Capture is what a recording session observed.
type Capture struct {
	Steps    []Step
	Requests []browser.Request
}

// Progress is reported to the operator while recording.
type Progress struct {
	Steps    int
	Requests int
}

// Recorder captures a location flow from an instrumented page.
type Recorder struct {
	// Interval between step polls. Default: 2s.
	Interval time.Duration
	Logger   *slog.Logger
}

// event is pushed by the capture goroutine; exactly one of the fields is set.
type event struct {
	step *Step
	req  *browser.Request
}

// Record installs the recorder script and captures until done is closed
// or ctx ends. report, if non-nil, is called from the calling goroutine
// after every captured event. Returned steps are deduplicated.
func (r *Recorder) Record(ctx context.Context, page browser.Instrumented, done <-chan struct{}, report func(Progress)) (Capture, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	if err := page.OnNewDocument(ctx, "("+recorderJS+")()"); err != nil {
		return Capture{}, err
	}
	if _, err := page.Eval(ctx, recorderJS); err != nil {
		log.Warn("flow: inject recorder into current document failed", "error", err)
	}

	capCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reqs, err := page.Requests(capCtx)
	if err != nil {
		log.Warn("flow: network capture unavailable", "error", err)
		reqs = nil
	}

	events := make(chan event, 64)
	go r.produce(capCtx, page, reqs, done, interval, events, log)

	var c Capture
	for ev := range events {
		switch {
		case ev.step != nil:
			c.Steps = append(c.Steps, *ev.step)
		case ev.req != nil:
			c.Requests = append(c.Requests, *ev.req)
		}
		if report != nil {
			report(Progress{Steps: len(c.Steps), Requests: len(c.Requests)})
		}
	}
	c.Steps = Dedupe(c.Steps)
	return c, nil
}

// produce is the only writer to events. It polls the page for new steps,
// forwards network requests, and on stop takes one last poll before
// closing the channel.
func (r *Recorder) produce(ctx context.Context, page browser.Instrumented, reqs <-chan browser.Request, done <-chan struct{}, interval time.Duration, events chan<- event, log *slog.Logger) {
	defer close(events)

	seen := 0
	poll := func(pctx context.Context) {
		steps, err := readSteps(pctx, page)
		if err != nil {
			log.Debug("flow: read steps failed", "error", err)
			return
		}
		for i := seen; i < len(steps); i++ {
			s := steps[i]
			events <- event{step: &s}
		}
		if len(steps) > seen {
			seen = len(steps)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			poll(ctx)
			return
		case <-ticker.C:
			poll(ctx)
		case req, ok := <-reqs:
			if !ok {
				reqs = nil
				continue
			}
			events <- event{req: &req}
		}
	}
}

func readSteps(ctx context.Context, page browser.Instrumented) ([]Step, error) {
	raw, err := page.Eval(ctx, readStepsJS)
	if err != nil {
		return nil, err
	}
	var steps []Step
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, err
	}
	return steps, nil
}
