package capture

// detectScript reads window.liveSocket. It returns {found:false} when the
// page has no LiveSocket yet.
const detectScript = `(() => {
  const ls = window.liveSocket;
  if (!ls || !ls.socket) return { found: false };
  const socket = ls.socket;
  let url = '';
  try {
    url = typeof socket.endPointURL === 'function' ? socket.endPointURL() : (socket.endPointURL || '');
  } catch (e) {}
  let params = {};
  try {
    const raw = typeof socket.params === 'function' ? socket.params() : (socket.params || {});
    params = JSON.parse(JSON.stringify(raw));
  } catch (e) {}
  return {
    found: true,
    info: {
      phxVersion: ls.getLatencyStat ? 'LiveView 0.18+' : 'LiveView <0.18',
      channels: ` + channelsExpr + `,
      params: params,
      url: String(url)
    }
  };
})()`

// channelsScript reads the current channel list.
const channelsScript = `(() => {
  const ls = window.liveSocket;
  if (!ls) return [];
  return ` + channelsExpr + `;
})()`

// channelsExpr lists channels from liveSocket.channels, falling back to
// the socket's own channel array.
const channelsExpr = `(() => {
        const src = ls.channels && Object.keys(ls.channels).length
          ? Object.values(ls.channels)
          : ((ls.socket && ls.socket.channels) || []);
        return src.map(ch => ({ topic: String(ch.topic || ''), joinedOnce: !!ch.joinedOnce, state: String(ch.state || '') }));
      })()`
