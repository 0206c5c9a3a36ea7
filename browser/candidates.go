package browser

const maxCandidates = 200

// candidatesJS walks selectors in order, collects each visible element once,
// and returns the facts the scoring heuristic reads as a JSON string.
const candidatesJS = `({ selectors, limit }) => {
  const seen = new Set();
  const out = [];
  for (const sel of selectors) {
    let nodes;
    try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
    for (const el of nodes) {
      if (seen.has(el)) continue;
      seen.add(el);
      const r = el.getBoundingClientRect();
      if (r.width <= 0 || r.height <= 0) continue;
      const cs = window.getComputedStyle(el);
      if (cs.display === 'none' || cs.visibility === 'hidden' || cs.opacity === '0') continue;
      out.push({
        selector: sel,
        tag: el.tagName.toLowerCase(),
        id: el.id || '',
        class: typeof el.className === 'string' ? el.className : (el.getAttribute('class') || ''),
        text: (el.innerText || el.textContent || '').trim().slice(0, 200),
        role: el.getAttribute('role') || '',
        cursor: cs.cursor,
        position: cs.position,
        zIndex: parseInt(cs.zIndex, 10) || 0,
        transition: cs.transition || '',
        borderRadius: cs.borderRadius || '',
        tabIndex: el.hasAttribute('tabindex'),
        box: { x: r.x, y: r.y, width: r.width, height: r.height },
      });
      if (out.length >= limit) return JSON.stringify(out);
    }
  }
  return JSON.stringify(out);
}`
