package handlers

import (
	"fmt"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// Dashboard renders the operator landing page: model status, severity stats,
// an upload form and a live feed over the WebSocket
func (h *Handlers) Dashboard(c *gin.Context) {
	counts, err := h.db.CountBySeverity(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to count potholes: %v", err)
		counts = map[string]int{}
	}
	total := counts["low"] + counts["medium"] + counts["high"]

	statusText := "loading"
	if h.loader.IsReady() {
		statusText = "ready"
	}

	page := fmt.Sprintf(dashboardTemplate,
		statusText, statusText, total, counts["high"], counts["medium"], counts["low"])
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// MapPage renders an interactive Leaflet map of all detections. Centered on
// the first stored detection, or midtown Manhattan when the table is empty.
func (h *Handlers) MapPage(c *gin.Context) {
	potholes, err := h.db.GetPotholesSince(c.Request.Context(), 0)
	if err != nil {
		log.Errorf("Failed to fetch potholes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch potholes"})
		return
	}

	centerLat, centerLon := defaultCenterLat, defaultCenterLon
	if len(potholes) > 0 {
		centerLat, centerLon = potholes[0].Latitude, potholes[0].Longitude
	}

	page := fmt.Sprintf(mapTemplate, centerLat, centerLon)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

const dashboardTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Pothole Detection</title>
    <style>
        body { font-family: sans-serif; margin: 0; background: #f4f5f7; color: #222; }
        header { background: #2d3436; color: #fff; padding: 16px 24px; display: flex; align-items: baseline; gap: 16px; }
        header h1 { margin: 0; font-size: 20px; }
        header nav a { color: #b2bec3; margin-right: 12px; text-decoration: none; }
        .badge { padding: 2px 10px; border-radius: 10px; font-size: 13px; }
        .badge.ready { background: #00b894; color: #fff; }
        .badge.loading { background: #fdcb6e; color: #222; }
        main { max-width: 960px; margin: 24px auto; padding: 0 16px; }
        .stats { display: flex; gap: 16px; margin-bottom: 24px; }
        .stat { flex: 1; background: #fff; border-radius: 6px; padding: 16px; text-align: center; }
        .stat b { display: block; font-size: 28px; }
        .sev-high { color: #d63031; }
        .sev-medium { color: #e17055; }
        .sev-low { color: #00b894; }
        section { background: #fff; border-radius: 6px; padding: 16px; margin-bottom: 24px; }
        table { width: 100%%; border-collapse: collapse; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #eee; font-size: 14px; }
        #feed { list-style: none; padding: 0; margin: 0; font-size: 14px; }
        #feed li { padding: 4px 0; border-bottom: 1px dashed #eee; }
        #result { font-family: monospace; font-size: 13px; word-break: break-all; }
        input, button { font-size: 14px; padding: 6px; }
    </style>
</head>
<body>
    <header>
        <h1>Pothole Detection</h1>
        <span class="badge %s">model %s</span>
        <nav>
            <a href="/map">map</a>
            <a href="/map.png">map.png</a>
            <a href="/potholes.geojson">geojson</a>
            <a href="/metrics">metrics</a>
            <a href="/health">health</a>
        </nav>
    </header>
    <main>
        <div class="stats">
            <div class="stat"><b>%d</b>total</div>
            <div class="stat sev-high"><b>%d</b>high</div>
            <div class="stat sev-medium"><b>%d</b>medium</div>
            <div class="stat sev-low"><b>%d</b>low</div>
        </div>
        <section>
            <h3>Report a pothole</h3>
            <form id="upload">
                <input type="file" name="image" accept="image/*" required>
                <input type="text" name="latitude" placeholder="latitude">
                <input type="text" name="longitude" placeholder="longitude">
                <button type="submit">Detect</button>
            </form>
            <p id="result"></p>
        </section>
        <section>
            <h3>Live feed</h3>
            <ul id="feed"></ul>
        </section>
        <section>
            <h3>Recent detections</h3>
            <table>
                <thead><tr><th>ID</th><th>Severity</th><th>Area m2</th><th>Depth m</th><th>Confidence</th><th>Status</th><th></th></tr></thead>
                <tbody id="recent"></tbody>
            </table>
        </section>
    </main>
    <script>
        var feed = document.getElementById('feed');
        var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        var sock = new WebSocket(proto + location.host + '/ws');
        sock.onmessage = function (e) {
            var msg = JSON.parse(e.data);
            if (msg.type !== 'new_pothole') return;
            var p = msg.data;
            var li = document.createElement('li');
            li.textContent = 'Pothole #' + p.id + ' (' + p.severity + ') ' + p.area.toFixed(2) +
                ' m2 at ' + p.latitude.toFixed(5) + ', ' + p.longitude.toFixed(5);
            feed.insertBefore(li, feed.firstChild);
        };

        function loadRecent() {
            fetch('/potholes').then(function (r) { return r.json(); }).then(function (rows) {
                var tbody = document.getElementById('recent');
                tbody.innerHTML = '';
                rows.slice(0, 20).forEach(function (p) {
                    var file = p.image_path.split('/').pop();
                    var tr = document.createElement('tr');
                    tr.innerHTML = '<td>' + p.id + '</td>' +
                        '<td class="sev-' + p.severity + '">' + p.severity + '</td>' +
                        '<td>' + p.area.toFixed(2) + '</td>' +
                        '<td>' + p.depth_meters.toFixed(2) + '</td>' +
                        '<td>' + (p.confidence * 100).toFixed(1) + '%%</td>' +
                        '<td>' + p.status + '</td>' +
                        '<td><a href="/image/' + file + '">photo</a> <a href="/export/' + p.id + '">pdf</a></td>';
                    tbody.appendChild(tr);
                });
            });
        }
        loadRecent();

        var form = document.getElementById('upload');
        form.onsubmit = function (e) {
            e.preventDefault();
            var result = document.getElementById('result');
            result.textContent = 'Detecting...';
            fetch('/detect', { method: 'POST', body: new FormData(form) })
                .then(function (r) { return r.json(); })
                .then(function (body) {
                    result.textContent = JSON.stringify(body);
                    loadRecent();
                })
                .catch(function (err) { result.textContent = 'Error: ' + err; });
        };
    </script>
</body>
</html>`

const mapTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Pothole Map</title>
    <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
    <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
    <style>
        html, body, #map { height: 100%%; margin: 0; }
    </style>
</head>
<body>
    <div id="map"></div>
    <script>
        var map = L.map('map').setView([%f, %f], 13);
        L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
            maxZoom: 19,
            attribution: '&copy; OpenStreetMap contributors'
        }).addTo(map);

        function markerColor(severity) {
            if (severity === 'high') return 'red';
            if (severity === 'medium') return 'orange';
            return 'green';
        }

        fetch('/potholes.geojson').then(function (r) { return r.json(); }).then(function (data) {
            L.geoJSON(data, {
                pointToLayer: function (feature, latlng) {
                    return L.circleMarker(latlng, {
                        radius: 9,
                        color: markerColor(feature.properties.severity),
                        fillColor: markerColor(feature.properties.severity),
                        fillOpacity: 0.7
                    });
                },
                onEachFeature: function (feature, layer) {
                    layer.bindPopup('Pothole #' + feature.properties.id +
                        '<br>Severity: ' + feature.properties.severity);
                }
            }).addTo(map);
        });
    </script>
</body>
</html>`
