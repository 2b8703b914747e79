package status

import (
	"context"
	"fmt"
	htmltemplate "html/template"
	"log"
	"net/http"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/config"
)

func StartHTTPServer(c config.Config) {
	if c.HTTP.Address == "" {
		logrus.Info("HTTP stats server disabled")
		return
	}
	logrus.WithField("address", c.HTTP.Address).Info("HTTP stats server enabled")
	http.Handle("/metrics", promhttp.Handler())
	http.Handle("/healthz", healthz.Handler())
	http.Handle("/", &Page{
		c: c,
	})
	go func() {
		err := http.ListenAndServe(c.HTTP.Address, nil)
		logrus.Fatalf("HTTP server error: %v", err)
	}()
}

type Page struct {
	c config.Config
}

const statusTemplateString = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<title>bidshub Status</title>
	<style>
		body          { font-family: sans-serif; }
		table, td, th { border: 1px solid #ccc; border-collapse: collapse; }
		td, th        { padding: 5px; text-align: left; }
		td.num        { text-align: right; }
		a             { text-decoration: none; color: #3c6ac5; }
	</style>
</head>
<body>
	<h1>bidshub Status</h1>
	<p>
		<a href="/metrics">Prometheus metrics</a> |
		<a href="/healthz">Health</a>
	</p>

	<h2>Uploads</h2>
	{{ if .Datasets }}
	<table>
		<tr><th>Dataset</th><th>Split</th><th>Shards</th></tr>
		{{ range .Datasets }}
		<tr>
			<td>{{ .Name }}</td>
			<td>{{ .Split }}</td>
			<td class="num">{{ .ShardsDone }} / {{ .ShardsGoal }}</td>
		</tr>
		{{ end }}
	</table>
	{{ else }}
	<p>No active uploads.</p>
	{{ end }}

	<h2>Storage</h2>
	{{ if .BlobErr }}
	<p>Blob listing unavailable: {{ .BlobErr }}</p>
	{{ else }}
	<p>{{ len .Blobs }} blobs</p>
	<table>
		<tr><th>Name</th><th>Size</th></tr>
		{{ range .Blobs }}
		<tr>
			<td>{{ .Name }}</td>
			<td class="num">{{ .HumanSize }}</td>
		</tr>
		{{ end }}
	</table>
	{{ end }}

	<h2>Config</h2>
	<pre>{{ .Config.String }}</pre>

</body>
</html>`

var statusTemplate *htmltemplate.Template

func init() {
	var err error
	statusTemplate, err = htmltemplate.New("status").Parse(statusTemplateString)
	if err != nil {
		log.Fatalf("BUG: Error in status HTML template: %v", err)
	}
}

type blobRow struct {
	Name      string
	HumanSize string
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var blobs []blobRow
	list, blobErr := gi.ListBlobs(ctx)
	for _, b := range list {
		blobs = append(blobs, blobRow{
			Name:      b.Name,
			HumanSize: datasize.ByteSize(b.Size).HumanReadable(),
		})
	}

	data := struct {
		Config   config.Config
		Datasets []DatasetStatus
		Blobs    []blobRow
		BlobErr  error
	}{
		Config:   p.c,
		Datasets: gi.DatasetStatus(),
		Blobs:    blobs,
		BlobErr:  blobErr,
	}

	err := statusTemplate.Execute(w, data)
	if err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(fmt.Sprintf("Template execution error: %v", err)))
	}
}
