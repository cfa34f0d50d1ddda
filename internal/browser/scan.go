package browser

const indexAttribute = "data-replay-index"

// scanScript marks candidate elements with their index and describes them.
// Markers from a previous scan are removed first.
const scanScript = `(() => {
  const ATTR = "` + indexAttribute + `";
  document.querySelectorAll("[" + ATTR + "]").forEach(el => el.removeAttribute(ATTR));

  const selector = [
    "a", "button", "input", "textarea", "select", "option", "label", "summary",
    "h1", "h2", "h3", "h4", "h5", "h6", "img", "li", "td", "th",
    "[role]", "[onclick]", "[tabindex]", "[contenteditable=true]", "[aria-label]"
  ].join(",");
  const keep = ["aria-label", "placeholder", "title", "alt", "name", "id", "type", "role", "href", "value"];

  const visible = el => {
    const style = window.getComputedStyle(el);
    if (style.display === "none" || style.visibility === "hidden" || style.opacity === "0") return false;
    const rect = el.getBoundingClientRect();
    return rect.width > 0 && rect.height > 0;
  };
  const name = el => {
    const text = (el.innerText || el.textContent || "").trim();
    if (text) return text.slice(0, 300);
    for (const a of ["aria-label", "placeholder", "title", "alt"]) {
      const v = el.getAttribute(a);
      if (v && v.trim()) return v.trim();
    }
    if (el.tagName === "INPUT" && ["submit", "button", "reset"].includes(el.type)) return el.value || "";
    return "";
  };

  const out = [];
  document.querySelectorAll(selector).forEach(el => {
    const index = out.length;
    let parent = -1;
    for (let p = el.parentElement; p; p = p.parentElement) {
      if (p.hasAttribute(ATTR)) { parent = Number(p.getAttribute(ATTR)); break; }
    }
    el.setAttribute(ATTR, String(index));
    const attributes = {};
    for (const a of keep) {
      const v = el.getAttribute(a);
      if (v !== null && v !== "") attributes[a] = v;
    }
    for (const a of el.attributes) {
      if (a.name.startsWith("data-") && a.name !== ATTR) attributes[a.name] = a.value;
    }
    out.push({
      index,
      parent,
      tag: el.tagName.toLowerCase(),
      text: name(el),
      attributes,
      visible: visible(el),
      enabled: !el.disabled && el.getAttribute("aria-disabled") !== "true",
    });
  });
  return out;
})()`
