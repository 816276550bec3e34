package server

import (
	"fmt"
	"net/http"

	"github.com/yunjin-lab/archive-chat/internal/chat"
	"github.com/yunjin-lab/archive-chat/internal/export"
)

// handleWebSocket upgrades the connection, assigns it an identifier, and
// hands it to the hub, which launches the read/write pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.hub.Add(newClient(conn, s.hub, s.session, s.cfg, s.log))
}

// handleExportAll is the pull-mode export: it snapshots every room and
// returns the archive as a zip download. A build failure surfaces as a plain
// 500 so the requester sees what happened; it never takes the process down.
func (s *Server) handleExportAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := export.Build(s.rooms.SnapshotAll())
	if err != nil {
		s.log.Error().Err(err).Msg("archive build failed")
		http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusInternalServerError)
		return
	}

	s.log.Info().Int("bytes", len(data)).Msg("archive exported over HTTP")
	w.Header().Set("Content-Type", chat.ExportMimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", chat.ExportFilename))
	if _, err := w.Write(data); err != nil {
		s.log.Warn().Err(err).Msg("error writing archive response")
	}
}

// handleHealth reports liveness as plain text.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "ok")
}

// handleIndex serves the embedded chat page. Every path that is not an API
// route lands here, standing in for the page-rendering layer.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, indexHTML); err != nil {
		s.log.Warn().Err(err).Msg("error writing HTML response")
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Yunj Archive</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 720px; }
        #messages {
            border: 1px solid #ccc;
            height: 360px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #messages img { max-width: 240px; display: block; margin-top: 4px; }
        input[type="text"] { padding: 6px; margin-right: 6px; }
        button { padding: 6px 14px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .system { color: gray; font-style: italic; }
        .mine { color: blue; }
        .theirs { color: green; }
    </style>
</head>
<body>
    <h1>Yunj Archive</h1>

    <div id="joinForm">
        <input type="text" id="username" placeholder="Your name">
        <input type="text" id="room" placeholder="Room name">
        <button onclick="joinRoom()">Join</button>
    </div>

    <div id="chat" style="display:none">
        <div>
            <strong id="roomTitle"></strong>
            <button style="float:right" onclick="exportAll()">Export all</button>
        </div>
        <div id="messages"></div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <input type="file" id="imageInput" accept="image/*">
        <button onclick="sendMessage()">Send</button>
    </div>

    <script>
        let ws = null;
        let username = '';
        let room = '';

        function addLine(html, cls) {
            const div = document.createElement('div');
            div.className = cls || '';
            div.innerHTML = html;
            const box = document.getElementById('messages');
            box.appendChild(div);
            box.scrollTop = box.scrollHeight;
        }

        function renderMessage(m, cls) {
            let html = '<strong>' + m.sender + ':</strong> ' + (m.message || '');
            if (m.image) { html += '<img src="' + m.image + '">'; }
            addLine(html, cls);
        }

        function joinRoom() {
            username = document.getElementById('username').value.trim();
            room = document.getElementById('room').value.trim();
            if (!username || !room) { return; }

            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(proto + location.host + '/ws');

            ws.onopen = function() {
                ws.send(JSON.stringify({event: 'join-room', data: {room: room, username: username}}));
                document.getElementById('joinForm').style.display = 'none';
                document.getElementById('chat').style.display = 'block';
                document.getElementById('roomTitle').textContent = 'Room: ' + room;
            };

            ws.onmessage = function(evt) {
                const env = JSON.parse(evt.data);
                if (env.event === 'history') {
                    (env.data || []).forEach(function(m) { renderMessage(m, 'theirs'); });
                } else if (env.event === 'message') {
                    renderMessage(env.data, 'theirs');
                } else if (env.event === 'user_joined' || env.event === 'user_left') {
                    addLine(env.data, 'system');
                } else if (env.event === 'export') {
                    downloadExport(env.data);
                }
            };

            ws.onclose = function() { addLine('connection closed', 'system'); };
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const fileInput = document.getElementById('imageInput');
            const text = input.value.trim();
            const file = fileInput.files[0];

            const emit = function(image) {
                if (!text && !image) { return; }
                const payload = {room: room, message: text, sender: username};
                if (image) { payload.image = image; }
                ws.send(JSON.stringify({event: 'message', data: payload}));
                renderMessage({sender: username, message: text, image: image}, 'mine');
                input.value = '';
                fileInput.value = '';
            };

            if (file) {
                const reader = new FileReader();
                reader.onload = function() { emit(reader.result); };
                reader.readAsDataURL(file);
            } else {
                emit(null);
            }
        }

        function downloadExport(payload) {
            let blob;
            if (payload.encoding === 'base64') {
                const bytes = atob(payload.content);
                const arr = new Uint8Array(bytes.length);
                for (let i = 0; i < bytes.length; i++) { arr[i] = bytes.charCodeAt(i); }
                blob = new Blob([arr], {type: payload.mimeType});
            } else {
                blob = new Blob([payload.content], {type: payload.mimeType});
            }
            const url = URL.createObjectURL(blob);
            const a = document.createElement('a');
            a.href = url;
            a.download = payload.filename;
            document.body.appendChild(a);
            a.click();
            a.remove();
            URL.revokeObjectURL(url);
        }

        function exportAll() {
            fetch('/export-all').then(function(resp) {
                if (!resp.ok) { return; }
                return resp.blob();
            }).then(function(blob) {
                if (!blob) { return; }
                const url = URL.createObjectURL(blob);
                const a = document.createElement('a');
                a.href = url;
                a.download = 'chats_export.zip';
                document.body.appendChild(a);
                a.click();
                a.remove();
                URL.revokeObjectURL(url);
            });
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
