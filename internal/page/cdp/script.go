package cdp

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	registryName = "__ccounter"
	bindingName  = "__ccounterTrigger"
	hooksMarker  = "__CCOUNTER_HOOKS__"
)

// Hooks are the selectors whose activation counts as a qualifying action.
type Hooks struct {
	Send       string   `json:"send"`
	Save       string   `json:"save"`
	Regenerate string   `json:"regenerate"`
	Prompts    []string `json:"prompts"` // inputs where a plain Enter submits
}

// The registry hands out integer ids for elements so Go can hold handles
// across evaluations. Id 0 is the document. Every call answers
// {ok, value} or {ok: false, err}; "detached" means the node left the DOM.
const pageScript = `(function () {
  if (!window.__ccounter) {
    const nodes = new Map();
    const ids = new WeakMap();
    let next = 1;
    const prune = () => {
      for (const [id, el] of nodes) {
        if (!el.isConnected) { nodes.delete(id); ids.delete(el); }
      }
    };
    const put = (el) => {
      let id = ids.get(el);
      if (id === undefined) {
        if (nodes.size > 4096) prune();
        id = next++;
        ids.set(el, id);
        nodes.set(id, el);
      }
      return id;
    };
    const get = (id) => {
      if (id === 0) return document;
      const el = nodes.get(id);
      if (!el || !el.isConnected) throw new Error('detached');
      return el;
    };
    const api = {
      all: (id, sel) => Array.from(get(id).querySelectorAll(sel), put),
      text: (id) => get(id).textContent || '',
      attr: (id, name) => {
        const el = get(id);
        return el.hasAttribute(name) ? [el.getAttribute(name)] : [];
      },
      matches: (id, sel) => get(id).matches(sel),
      closest: (id, sel) => {
        const el = get(id).closest(sel);
        return el ? [put(el)] : [];
      },
      visible: (id) => {
        const el = get(id);
        const s = window.getComputedStyle(el);
        return s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
      },
      click: (id) => { get(id).click(); return true; },
      location: () => window.location.pathname,
    };
    window.__ccounter = {
      call(name, args) {
        try {
          return { ok: true, value: api[name](...args) };
        } catch (e) {
          return { ok: false, err: String((e && e.message) || e) };
        }
      },
    };
  }
  if (!window.__ccounterHooked) {
    window.__ccounterHooked = true;
    const hooks = __CCOUNTER_HOOKS__;
    const fire = (kind) => {
      if (typeof window.__ccounterTrigger === 'function') window.__ccounterTrigger(kind);
    };
    document.addEventListener('click', (e) => {
      const t = e.target instanceof Element ? e.target : null;
      if (!t) return;
      if (hooks.regenerate && t.closest(hooks.regenerate)) fire('regenerate');
      else if (hooks.save && t.closest(hooks.save)) fire('save');
      else if (hooks.send && t.closest(hooks.send)) fire('send');
    }, true);
    document.addEventListener('keydown', (e) => {
      if (e.key !== 'Enter' || e.shiftKey) return;
      const t = e.target instanceof Element ? e.target : null;
      if (t && hooks.prompts.some((sel) => t.closest(sel))) fire('enter');
    }, true);
  }
  return true;
})()`

// Script returns the JavaScript installed into every document of the tab.
func Script(h Hooks) (string, error) {
	if h.Prompts == nil {
		h.Prompts = []string{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("cdp: encoding hooks: %w", err)
	}
	return strings.Replace(pageScript, hooksMarker, string(b), 1), nil
}
