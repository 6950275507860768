package stealth

// Per-mutation evasion scripts, injected before any document script runs.
// Each one is deliberately small so a mutation can be enabled on its own.

const maskAutomationJS = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
if (window.chrome === undefined) {
  window.chrome = { runtime: {} };
}
delete window.__$webdriverAsyncExecutor;
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;
`

const mockPluginsJS = `
(() => {
  const fakePlugins = [
    { name: 'PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
    { name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
    { name: 'Chromium PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
  ];
  const fakeMimeTypes = [
    { type: 'application/pdf', suffixes: 'pdf', description: 'Portable Document Format' },
  ];
  Object.defineProperty(navigator, 'plugins', { get: () => fakePlugins });
  Object.defineProperty(navigator, 'mimeTypes', { get: () => fakeMimeTypes });
})();
`

const mockPermissionsJS = `
(() => {
  if (!navigator.permissions) return;
  const original = navigator.permissions.query.bind(navigator.permissions);
  navigator.permissions.query = (parameters) => {
    if (parameters && parameters.name === 'notifications') {
      return Promise.resolve({ state: 'denied', onchange: null });
    }
    return original(parameters);
  };
})();
`

const blockWebRTCJS = `
(() => {
  if (navigator.mediaDevices) {
    navigator.mediaDevices.enumerateDevices = () => Promise.resolve([]);
  }
  const noop = function () { throw new DOMException('NotAllowedError'); };
  if (window.RTCPeerConnection) {
    window.RTCPeerConnection = noop;
  }
  if (window.webkitRTCPeerConnection) {
    window.webkitRTCPeerConnection = noop;
  }
})();
`

const noiseCanvasJS = `
(() => {
  const original = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function (...args) {
    const ctx = this.getContext('2d');
    if (ctx && this.width > 0 && this.height > 0) {
      try {
        const image = ctx.getImageData(0, 0, this.width, this.height);
        for (let i = 0; i < image.data.length; i += 97) {
          image.data[i] = image.data[i] ^ 1;
        }
        ctx.putImageData(image, 0, 0);
      } catch (e) { /* tainted canvas, leave as-is */ }
    }
    return original.apply(this, args);
  };
})();
`
