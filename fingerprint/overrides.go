package fingerprint

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Override is one self-contained init script. Overrides are applied one at a
// time so a failure in one never prevents the others.
type Override struct {
	Name   string
	Script string
}

const webdriverJS = `
Object.defineProperty(Navigator.prototype, 'webdriver', { get: () => undefined, configurable: true });`

const pluginsJS = `
const pluginData = [
  { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format', mime: 'application/x-google-chrome-pdf' },
  { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '', mime: 'application/pdf' },
  { name: 'Native Client', filename: 'internal-nacl-plugin', description: '', mime: 'application/x-nacl' }
];
const mimes = [];
const plugins = pluginData.map(function(pd) {
  const plugin = Object.create(Plugin.prototype);
  const mime = Object.create(MimeType.prototype);
  Object.defineProperties(mime, {
    type: { get: () => pd.mime }, suffixes: { get: () => 'pdf' },
    description: { get: () => pd.description }, enabledPlugin: { get: () => plugin }
  });
  Object.defineProperties(plugin, {
    name: { get: () => pd.name }, filename: { get: () => pd.filename },
    description: { get: () => pd.description }, length: { get: () => 1 }, 0: { get: () => mime }
  });
  plugin.item = (i) => (i === 0 ? mime : null);
  plugin.namedItem = (n) => (n === pd.mime ? mime : null);
  mimes.push(mime);
  return plugin;
});
const makeArray = function(items, proto) {
  const arr = Object.create(proto);
  items.forEach((it, i) => Object.defineProperty(arr, i, { get: () => it, enumerable: true }));
  Object.defineProperty(arr, 'length', { get: () => items.length });
  arr.item = (i) => items[i] || null;
  arr.namedItem = (n) => items.find((it) => it.name === n || it.type === n) || null;
  arr.refresh = () => {};
  return arr;
};
const pluginArray = makeArray(plugins, PluginArray.prototype);
const mimeArray = makeArray(mimes, MimeTypeArray.prototype);
Object.defineProperty(Navigator.prototype, 'plugins', { get: () => pluginArray, configurable: true });
Object.defineProperty(Navigator.prototype, 'mimeTypes', { get: () => mimeArray, configurable: true });`

const navigatorJS = `
Object.defineProperty(Navigator.prototype, 'languages', { get: () => {{LANGUAGES}}, configurable: true });
Object.defineProperty(Navigator.prototype, 'language', { get: () => {{LANGUAGES}}[0], configurable: true });
Object.defineProperty(Navigator.prototype, 'platform', { get: () => {{PLATFORM}}, configurable: true });
Object.defineProperty(Navigator.prototype, 'hardwareConcurrency', { get: () => {{CONCURRENCY}}, configurable: true });
Object.defineProperty(Navigator.prototype, 'deviceMemory', { get: () => {{DEVICE_MEMORY}}, configurable: true });`

const permissionsJS = `
const origQuery = window.navigator.permissions && window.navigator.permissions.query;
if (origQuery) {
  window.navigator.permissions.query = (parameters) => (
    parameters && parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission, onchange: null })
      : origQuery.call(window.navigator.permissions, parameters)
  );
}`

const screenJS = `
Object.defineProperty(window.screen, 'width', { get: () => {{SCREEN_W}} });
Object.defineProperty(window.screen, 'height', { get: () => {{SCREEN_H}} });
Object.defineProperty(window.screen, 'availWidth', { get: () => {{SCREEN_W}} });
Object.defineProperty(window.screen, 'availHeight', { get: () => {{SCREEN_H}} - 40 });
Object.defineProperty(window.screen, 'colorDepth', { get: () => 24 });
Object.defineProperty(window, 'outerWidth', { get: () => window.innerWidth + 16 });
Object.defineProperty(window, 'outerHeight', { get: () => window.innerHeight + 88 });
Object.defineProperty(window, 'screenX', { get: () => 0 });
Object.defineProperty(window, 'screenY', { get: () => 0 });`

const chromeRuntimeJS = `
window.chrome = window.chrome || {};
if (!window.chrome.runtime) {
  window.chrome.runtime = {
    OnInstalledReason: { CHROME_UPDATE: 'chrome_update', INSTALL: 'install', UPDATE: 'update' },
    PlatformOs: { LINUX: 'linux', MAC: 'mac', WIN: 'win' },
    connect: function() { return { onMessage: { addListener() {} }, postMessage() {}, disconnect() {} }; },
    sendMessage: function() {}
  };
}
if (!window.chrome.loadTimes) { window.chrome.loadTimes = function() { return {}; }; }
if (!window.chrome.csi) { window.chrome.csi = function() { return {}; }; }`

// canvasJS perturbs the low bit of a seeded subset of pixels. Every read
// restarts the generator from the session seed and works on a copy, so
// repeated reads of the same canvas hash identically within a session.
const canvasJS = `
const base = {{NOISE_SEED}} >>> 0;
const seeded = () => {
  let s = base;
  return () => { s = (Math.imul(s, 1664525) + 1013904223) >>> 0; return s; };
};
const perturb = (data) => {
  const next = seeded();
  for (let i = 0; i < data.length; i += 4 * 97) {
    data[i] = data[i] ^ (next() & 1);
  }
};
const origGetImageData = CanvasRenderingContext2D.prototype.getImageData;
const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
HTMLCanvasElement.prototype.toDataURL = function() {
  try {
    if (this.width && this.height) {
      const scratch = document.createElement('canvas');
      scratch.width = this.width;
      scratch.height = this.height;
      const ctx = scratch.getContext('2d');
      ctx.drawImage(this, 0, 0);
      const img = origGetImageData.call(ctx, 0, 0, scratch.width, scratch.height);
      perturb(img.data);
      ctx.putImageData(img, 0, 0);
      return origToDataURL.apply(scratch, arguments);
    }
  } catch (e) {}
  return origToDataURL.apply(this, arguments);
};
CanvasRenderingContext2D.prototype.getImageData = function() {
  const img = origGetImageData.apply(this, arguments);
  perturb(img.data);
  return img;
};`

const audioJS = `
const shift = (({{NOISE_SEED}} % 1000) / 1000) * 1e-4;
if (window.OscillatorNode) {
  const origCreate = BaseAudioContext.prototype.createOscillator;
  BaseAudioContext.prototype.createOscillator = function() {
    const osc = origCreate.apply(this, arguments);
    const base = osc.frequency.value;
    osc.frequency.value = base * (1 + shift);
    return osc;
  };
}`

const webglJS = `
const patch = (proto) => {
  if (!proto) return;
  const orig = proto.getParameter;
  proto.getParameter = function(param) {
    if (param === 37445) return {{WEBGL_VENDOR}};
    if (param === 37446) return {{WEBGL_RENDERER}};
    return orig.apply(this, arguments);
  };
};
patch(window.WebGLRenderingContext && WebGLRenderingContext.prototype);
patch(window.WebGL2RenderingContext && WebGL2RenderingContext.prototype);`

const userAgentDataJS = `
const brands = [
  { brand: 'Not_A Brand', version: '8' },
  { brand: 'Chromium', version: {{CHROME_MAJOR}} },
  { brand: 'Google Chrome', version: {{CHROME_MAJOR}} }
];
const uaData = {
  brands: brands, mobile: false, platform: {{CH_PLATFORM}},
  getHighEntropyValues: (hints) => Promise.resolve({ brands: brands, mobile: false, platform: {{CH_PLATFORM}}, platformVersion: '10.0.0', architecture: 'x86', bitness: '64' }),
  toJSON: () => ({ brands: brands, mobile: false, platform: {{CH_PLATFORM}} })
};
Object.defineProperty(Navigator.prototype, 'userAgentData', { get: () => uaData, configurable: true });`

const chromeAppJS = `
window.chrome = window.chrome || {};
if (!window.chrome.app) {
  window.chrome.app = {
    isInstalled: false,
    InstallState: { DISABLED: 'disabled', INSTALLED: 'installed', NOT_INSTALLED: 'not_installed' },
    RunningState: { CANNOT_RUN: 'cannot_run', READY_TO_RUN: 'ready_to_run', RUNNING: 'running' },
    getDetails: function() { return null; },
    getIsInstalled: function() { return false; }
  };
}`

const iframeJS = `
const desc = Object.getOwnPropertyDescriptor(HTMLIFrameElement.prototype, 'contentWindow');
if (desc && desc.get) {
  Object.defineProperty(HTMLIFrameElement.prototype, 'contentWindow', {
    get: function() {
      const w = desc.get.call(this);
      try { if (w && !w.chrome) { w.chrome = window.chrome; } } catch (e) {}
      return w;
    },
    configurable: true
  });
}`

const pixelRatioJS = `
Object.defineProperty(window, 'devicePixelRatio', { get: () => {{DPR}}, configurable: true });`

const notificationJS = `
if (!window.Notification) {
  window.Notification = function Notification() {};
  window.Notification.permission = 'default';
  window.Notification.requestPermission = () => Promise.resolve('default');
}`

const mediaDevicesJS = `
if (navigator.mediaDevices && !navigator.mediaDevices.getUserMedia) {
  navigator.mediaDevices.getUserMedia = () => Promise.reject(new DOMException('Permission denied', 'NotAllowedError'));
}`

// Base returns the overrides applied to every new session.
func Base(p *Profile) []Override {
	return render(p, []Override{
		{Name: "webdriver", Script: webdriverJS},
		{Name: "plugins", Script: pluginsJS},
		{Name: "navigator", Script: navigatorJS},
		{Name: "permissions", Script: permissionsJS},
		{Name: "screen", Script: screenJS},
		{Name: "chrome.runtime", Script: chromeRuntimeJS},
		{Name: "canvas", Script: canvasJS},
		{Name: "audio", Script: audioJS},
		{Name: "webgl", Script: webglJS},
	})
}

// Hardened returns the stronger set used once a challenge has proven
// resistant: client hints, chrome.app, iframe windows, pixel ratio and media stubs.
func Hardened(p *Profile) []Override {
	return render(p, []Override{
		{Name: "userAgentData", Script: userAgentDataJS},
		{Name: "chrome.app", Script: chromeAppJS},
		{Name: "iframe.contentWindow", Script: iframeJS},
		{Name: "devicePixelRatio", Script: pixelRatioJS},
		{Name: "notification", Script: notificationJS},
		{Name: "mediaDevices", Script: mediaDevicesJS},
	})
}

func render(p *Profile, overrides []Override) []Override {
	r := strings.NewReplacer(
		"{{LANGUAGES}}", jsValue(p.Languages),
		"{{PLATFORM}}", jsValue(p.Platform),
		"{{CH_PLATFORM}}", jsValue(p.CHPlatform),
		"{{CHROME_MAJOR}}", jsValue(p.ChromeMajor),
		"{{CONCURRENCY}}", fmt.Sprintf("%d", p.HardwareConcurrency),
		"{{DEVICE_MEMORY}}", fmt.Sprintf("%d", p.DeviceMemory),
		"{{SCREEN_W}}", fmt.Sprintf("%d", p.ScreenWidth),
		"{{SCREEN_H}}", fmt.Sprintf("%d", p.ScreenHeight),
		"{{DPR}}", fmt.Sprintf("%g", p.DevicePixelRatio),
		"{{NOISE_SEED}}", fmt.Sprintf("%d", p.NoiseSeed),
		"{{WEBGL_VENDOR}}", jsValue(p.WebGLVendor),
		"{{WEBGL_RENDERER}}", jsValue(p.WebGLRenderer),
	)
	out := make([]Override, 0, len(overrides))
	for _, o := range overrides {
		out = append(out, Override{Name: o.Name, Script: wrap(o.Name, r.Replace(o.Script))})
	}
	return out
}

// wrap isolates a snippet so a throw inside it stays inside it.
func wrap(name, body string) string {
	return fmt.Sprintf("(() => { try {%s\n} catch (e) { /* %s */ } })();", body, name)
}

func jsValue(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
