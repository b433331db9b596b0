package api

const webUI = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Robot Control Panel</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;background:#f5f5f5;color:#333;line-height:1.6}
.hdr{background:linear-gradient(135deg,#0f766e 0%,#1e3a8a 100%);color:#fff;padding:14px 20px;display:flex;align-items:center;justify-content:space-between}
.hdr h1{font-size:18px;font-weight:600}
.hdr-right{font-size:13px;display:flex;align-items:center;gap:6px}
.sdot{width:10px;height:10px;border-radius:50%;display:inline-block}
.dot-green{background:#22c55e}.dot-red{background:#ef4444}
.content{max-width:900px;margin:0 auto;padding:20px}
.card{background:#fff;border-radius:8px;padding:20px;margin-bottom:16px;box-shadow:0 1px 3px rgba(0,0,0,.1)}
.card h2{font-size:16px;margin-bottom:12px;padding-bottom:8px;border-bottom:1px solid #eee}
.form-row{display:grid;grid-template-columns:2fr 1fr 1fr;gap:12px}
.form-group{margin-bottom:14px}
.form-group label{display:block;font-size:13px;font-weight:500;margin-bottom:4px;color:#555}
.form-group input,.form-group select{width:100%;padding:8px 12px;border:1px solid #ddd;border-radius:6px;font-size:14px}
.btn{display:inline-flex;align-items:center;gap:6px;padding:8px 16px;border-radius:6px;border:none;cursor:pointer;font-size:14px;font-weight:500}
.btn-primary{background:#0f766e;color:#fff}.btn-primary:hover{background:#115e59}
.btn-secondary{background:#e5e7eb;color:#374151}.btn-secondary:hover{background:#d1d5db}
.btn-danger{background:#fff;color:#ef4444;border:1px solid #ef4444}.btn-danger:hover{background:#fef2f2}
.btn-row{display:flex;gap:8px;flex-wrap:wrap;margin-top:4px}
#response{background:#1a1a2e;color:#a0aec0;border-radius:8px;padding:16px;font-family:'SF Mono','Cascadia Code','Courier New',monospace;font-size:13px;min-height:80px;white-space:pre-wrap}
.toast{visibility:hidden;min-width:240px;background:#333;color:#fff;text-align:center;border-radius:6px;padding:12px 16px;position:fixed;left:50%;bottom:30px;transform:translateX(-50%);z-index:10;opacity:0;transition:opacity .3s}
.toast.show{visibility:visible;opacity:1}
.toast.error{background:#b91c1c}
</style>
</head>
<body>
<div class="hdr">
  <h1>Robot Control Panel</h1>
  <div class="hdr-right"><span id="link-text">Disconnected</span><span id="link-dot" class="sdot dot-red"></span></div>
</div>
<div class="content">
  <div class="card">
    <h2>Connection</h2>
    <div class="form-row">
      <div class="form-group"><label for="ip">Robot IP</label><input id="ip" value="127.0.0.1"></div>
      <div class="form-group"><label for="port">Port</label><input id="port" value="5000"></div>
      <div class="form-group"><label for="protocol">Protocol</label>
        <select id="protocol"><option value="udp">UDP</option><option value="tcp">TCP</option></select></div>
    </div>
    <button class="btn btn-primary" onclick="connectToRobot()">Connect</button>
  </div>

  <div class="card">
    <h2>Drive</h2>
    <form id="drive-form" onsubmit="handleSend(event)">
      <div class="form-row">
        <div class="form-group"><label for="direction">Direction</label>
          <select id="direction">
            <option value="forward">Forward</option><option value="backward">Backward</option>
            <option value="left">Left</option><option value="right">Right</option>
          </select></div>
        <div class="form-group"><label for="duration">Duration (s)</label><input id="duration" value="5"></div>
        <div class="form-group"><label for="speed">Speed</label><input id="speed" value="80"></div>
      </div>
      <div class="btn-row">
        <button class="btn btn-primary" type="submit">Send</button>
        <button class="btn btn-danger" type="button" onclick="sendSleepCommand()">Sleep</button>
        <button class="btn btn-secondary" type="button" onclick="requestTelemetry()">Request Telemetry</button>
      </div>
    </form>
  </div>

  <div class="card">
    <h2>Response</h2>
    <div id="response"></div>
  </div>
</div>
<div id="toast" class="toast"></div>

<script>
async function call(url, options) {
    const response = await fetch(url, options);
    const text = await response.text();
    if (!response.ok) {
        throw new Error(text || response.statusText);
    }
    return text;
}

function jsonBody(method, body) {
    return { method, headers: { "Content-Type": "application/json" }, body: JSON.stringify(body) };
}

async function connectToRobot() {
    const ip = document.getElementById("ip").value;
    const port = parseInt(document.getElementById("port").value);
    const protocol = document.getElementById("protocol").value;
    try {
        const msg = await call("/connect", jsonBody("POST", { ip, port, protocol }));
        alert(msg);
        refreshStatus();
    } catch (err) {
        showToast("❌ Connect failed: " + err.message, true);
    }
}

async function handleSend(event) {
    event.preventDefault();
    const cmd = document.getElementById("direction").value;
    const duration = parseInt(document.getElementById("duration").value);
    const speed = parseInt(document.getElementById("speed").value);
    await sendCommand(cmd, duration, speed, "✅ Command sent successfully");
}

async function sendCommand(command, duration, angle, toast) {
    try {
        const result = await call("/telecommand/", jsonBody("PUT", { command, duration, angle }));
        document.getElementById("response").innerText = result;
        showToast(toast);
    } catch (err) {
        showToast("❌ Command failed: " + err.message, true);
    }
}

async function sendSleepCommand() {
    if (!confirm("Are you sure you want to put the robot to sleep?")) return;
    await sendCommand("sleep", 0, 0, "💤 Robot put to sleep");
}

async function requestTelemetry() {
    try {
        const result = await call("/telementry_request/");
        document.getElementById("response").innerText = result;
        showToast("📡 Telemetry received");
    } catch (err) {
        showToast("❌ Telemetry failed: " + err.message, true);
    }
}

function showToast(message, isError) {
    const toast = document.getElementById("toast");
    toast.textContent = message;
    toast.className = isError ? "toast show error" : "toast show";
    setTimeout(() => {
        toast.className = toast.className.replace("show", "");
    }, 3000);
}

async function refreshStatus() {
    try {
        const res = await fetch("/api/status");
        const data = await res.json();
        const up = data.robot && data.robot.connected;
        document.getElementById("link-text").textContent = up
            ? "Connected " + data.robot.target.ip + ":" + data.robot.target.port
            : "Disconnected";
        document.getElementById("link-dot").className = "sdot " + (up ? "dot-green" : "dot-red");
    } catch (err) {
        // gateway unreachable; keep last state
    }
}

refreshStatus();
setInterval(refreshStatus, 5000);
</script>
</body>
</html>`
