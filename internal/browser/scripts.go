package browser

import (
	"encoding/json"
	"fmt"

	"github.com/copyleftdev/replaykit/internal/page"
)

// resolveJS evaluates to a function that takes a page.Query and returns the
// matching elements in document order. Role names and text are matched
// case-insensitively as substrings unless the query is exact.
const resolveJS = `(function (q) {
  const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const matches = (actual, want, exact) => {
    actual = norm(actual);
    want = norm(want);
    if (exact) return actual === want;
    return actual.toLowerCase().includes(want.toLowerCase());
  };
  const labelOf = (el) => {
    if (el.labels && el.labels.length) return norm(el.labels[0].textContent);
    const by = el.getAttribute('aria-labelledby');
    if (by) {
      const parts = by.split(/\s+/).map((id) => document.getElementById(id)).filter(Boolean);
      if (parts.length) return norm(parts.map((p) => p.textContent).join(' '));
    }
    return norm(el.getAttribute('aria-label'));
  };
  const implicitRole = (el) => {
    const tag = el.tagName.toLowerCase();
    const type = (el.getAttribute('type') || '').toLowerCase();
    switch (tag) {
      case 'button': return 'button';
      case 'a': case 'area': return el.hasAttribute('href') ? 'link' : '';
      case 'select': return (el.multiple || el.size > 1) ? 'listbox' : 'combobox';
      case 'textarea': return 'textbox';
      case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
      case 'img': return el.getAttribute('alt') === '' ? 'presentation' : 'img';
      case 'ul': case 'ol': return 'list';
      case 'li': return 'listitem';
      case 'nav': return 'navigation';
      case 'main': return 'main';
      case 'dialog': return 'dialog';
      case 'table': return 'table';
      case 'option': return 'option';
      case 'input':
        if (['button', 'submit', 'reset', 'image'].includes(type)) return 'button';
        if (type === 'checkbox') return 'checkbox';
        if (type === 'radio') return 'radio';
        if (type === 'range') return 'slider';
        if (type === 'number') return 'spinbutton';
        if (type === 'search') return 'searchbox';
        if (['', 'text', 'email', 'tel', 'url'].includes(type)) return 'textbox';
        return '';
    }
    return '';
  };
  const roleOf = (el) => norm(el.getAttribute('role')).split(' ')[0] || implicitRole(el);
  const nameOf = (el) => {
    const label = labelOf(el);
    if (label) return label;
    const tag = el.tagName.toLowerCase();
    if (tag === 'input') {
      const type = (el.type || '').toLowerCase();
      if (['button', 'submit', 'reset'].includes(type)) return norm(el.value);
      if (type === 'image') return norm(el.alt);
      return norm(el.getAttribute('placeholder') || el.title);
    }
    if (tag === 'img') return norm(el.alt);
    return norm(el.textContent) || norm(el.title);
  };
  const all = () => Array.from(document.querySelectorAll('body, body *'));
  const skipText = ['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE'];
  switch (q.strategy) {
    case 'css':
      return Array.from(document.querySelectorAll(q.value));
    case 'testid':
      return all().filter((el) => ['data-testid', 'data-test-id', 'data-test'].some((a) => el.getAttribute(a) === q.value));
    case 'role':
      return all().filter((el) => roleOf(el) === q.value && (!q.name || matches(nameOf(el), q.name, q.exact)));
    case 'label':
      return all().filter((el) => { const l = labelOf(el); return l !== '' && matches(l, q.value, q.exact); });
    case 'placeholder':
      return all().filter((el) => el.hasAttribute('placeholder') && matches(el.getAttribute('placeholder'), q.value, q.exact));
    case 'text': {
      const hits = all().filter((el) => !skipText.includes(el.tagName) && matches(el.textContent, q.value, q.exact));
      return hits.filter((el) => !hits.some((other) => other !== el && el.contains(other)));
    }
  }
  throw new Error('unknown locator strategy: ' + q.strategy);
})`

const snapshotFn = `function () {
  let label = '';
  if (this.labels && this.labels.length) label = this.labels[0].textContent || '';
  return { html: this.outerHTML, label: label, type: typeof this.type === 'string' ? this.type : '' };
}`

const visibleFn = `function () {
  const rect = this.getBoundingClientRect();
  const style = window.getComputedStyle(this);
  return rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden';
}`

const enabledFn = `function () {
  if (this.disabled) return false;
  if (this.closest('fieldset[disabled]')) return false;
  return this.getAttribute('aria-disabled') !== 'true';
}`

// centerFn scrolls the element into view and returns its viewport center,
// which is where a click is dispatched.
const centerFn = `function () {
  this.scrollIntoView({ block: 'center', inline: 'center' });
  const rect = this.getBoundingClientRect();
  return { x: rect.left + rect.width / 2, y: rect.top + rect.height / 2 };
}`

const fillFn = `function () {
  const value = %s;
  this.focus();
  if (this instanceof HTMLInputElement || this instanceof HTMLTextAreaElement) {
    const setter = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(this), 'value').set;
    setter.call(this, value);
  } else if (this.isContentEditable) {
    this.textContent = value;
  } else {
    throw new Error('element is not fillable: <' + this.tagName.toLowerCase() + '>');
  }
  this.dispatchEvent(new Event('input', { bubbles: true }));
  this.dispatchEvent(new Event('change', { bubbles: true }));
}`

const selectFn = `function () {
  const label = %s;
  if (!(this instanceof HTMLSelectElement)) throw new Error('element is not a <select>');
  const want = label.replace(/\s+/g, ' ').trim();
  const option = Array.from(this.options).find((o) => (o.label || o.textContent || '').replace(/\s+/g, ' ').trim() === want);
  if (!option) throw new Error('no option labelled ' + JSON.stringify(label));
  this.value = option.value;
  option.selected = true;
  this.dispatchEvent(new Event('input', { bubbles: true }));
  this.dispatchEvent(new Event('change', { bubbles: true }));
}`

func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// countExpr evaluates to the number of elements matching q.
func countExpr(q page.Query) string {
	return fmt.Sprintf("%s(%s).length", resolveJS, jsonEncode(q))
}

// nthExpr evaluates to the n-th match of q, or null.
func nthExpr(q page.Query, n int) string {
	return fmt.Sprintf("(%s(%s)[%d] || null)", resolveJS, jsonEncode(q), n)
}

func fillDecl(text string) string {
	return fmt.Sprintf(fillFn, jsonEncode(text))
}

func selectDecl(label string) string {
	return fmt.Sprintf(selectFn, jsonEncode(label))
}

func scrollExpr(pixels int) string {
	return fmt.Sprintf("window.scrollBy(0, %d)", pixels)
}
