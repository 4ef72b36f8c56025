package capture

import (
	"bytes"
	"html/template"
	"sort"
	"time"
)

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Exception}} at {{.Path}}</title>
<style>
body { font-family: sans-serif; margin: 0; }
h1 { background: #ffc; margin: 0; padding: 16px; border-bottom: 1px solid #ddd; }
section { padding: 8px 16px; }
pre { background: #f5f5f5; padding: 12px; overflow: auto; }
table { border-collapse: collapse; }
td { padding: 2px 12px 2px 0; vertical-align: top; font-family: monospace; }
</style>
</head>
<body>
<h1>{{.Exception}}</h1>
<section>
<table>
<tr><td>Request Method:</td><td>{{.Method}}</td></tr>
<tr><td>Request Path:</td><td>{{.Path}}</td></tr>
<tr><td>Status:</td><td>{{.Status}}</td></tr>
<tr><td>Time:</td><td>{{.Time}}</td></tr>
</table>
</section>
<section>
<h2>Traceback</h2>
<pre>{{.Traceback}}</pre>
</section>
<section>
<h2>Request Headers</h2>
<table>
{{range .Headers}}<tr><td>{{.Name}}</td><td>{{.Value}}</td></tr>
{{end}}</table>
</section>
</body>
</html>
`))

type header struct {
	Name  string
	Value string
}

type errorPageData struct {
	Exception string
	Traceback string
	Method    string
	Path      string
	Status    int
	Time      string
	Headers   []header
}

// renderErrorPage renders the debug page stored with failed exchanges.
func renderErrorPage(f *Failure, method, path string, status int, headers map[string]string, at time.Time) (string, error) {
	data := errorPageData{
		Exception: f.Err.Error(),
		Traceback: f.Traceback,
		Method:    method,
		Path:      path,
		Status:    status,
		Time:      at.Format(time.RFC3339),
	}
	for name, value := range headers {
		data.Headers = append(data.Headers, header{Name: name, Value: value})
	}
	sort.Slice(data.Headers, func(i, j int) bool { return data.Headers[i].Name < data.Headers[j].Name })

	var buf bytes.Buffer
	if err := errorPage.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
