package api

const streamDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Ports &amp; Event Stream — phx_devtools</title>
  <style>
    body {
      margin: 0 auto;
      max-width: 860px;
      padding: 24px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2, h3 { color: #e6edf3; }
    code, pre {
      font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
    }
    code { padding: 1px 5px; }
    pre { padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
  </style>
</head>
<body>
  <p><a href="/docs">← REST API</a></p>
  <h1>Ports &amp; Event Stream</h1>

  <h2 id="ws">Port: <code>GET /ws</code></h2>
  <p>A WebSocket for panels. The first frame pushed is the current <code>settings</code>.
  Panels send requests as JSON text frames:</p>
  <pre>{"action":"getMessages"}
{"action":"clearMessages"}
{"action":"toggle-highlighting","enabled":true}</pre>
  <p>Unknown actions are ignored. <code>getMessages</code> is answered on the requesting port only.</p>

  <h2 id="updates">Updates</h2>
  <table>
    <tr><th>kind</th><th>fields</th><th>meaning</th></tr>
    <tr><td><code>snapshot</code></td><td><code>messages</code>, <code>connections</code></td><td>Replace both collections. Absent means empty.</td></tr>
    <tr><td><code>messages</code></td><td><code>messages</code></td><td>Newly accepted messages, oldest first.</td></tr>
    <tr><td><code>connections</code></td><td><code>connections</code></td><td>Full connection list.</td></tr>
    <tr><td><code>settings</code></td><td><code>highlighting</code></td><td>Relay highlight setting.</td></tr>
  </table>

  <h2 id="events">Event stream: <code>GET /events</code></h2>
  <p>The same updates as server-sent events, named after their kind. Filter with
  <code>?kinds=messages,connections</code>.</p>
  <pre>curl -N 'http://127.0.0.1:8390/events?kinds=messages'</pre>
  <pre>event: messages
data: {"kind":"messages","messages":[{"method":"Phoenix.receive", ...}]}</pre>

  <h2 id="notes">Notes</h2>
  <p>Slow consumers drop updates rather than block the aggregator. Send
  <code>getMessages</code> to resynchronize.</p>
</body>
</html>`
