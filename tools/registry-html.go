package tools

import (
	"encoding/json"
	"fmt"
	"io"

	. "github.com/Comcast/orb/util/testutil"

	md "github.com/russross/blackfriday/v2"
)

func RenderRegistryHTML(r *Registry, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="registryDoc doc">%s</div>`, md.Run([]byte(r.Doc)))

	{ // Topics
		f(`<div class="topics"><table>`)
		for _, t := range r.Topics {
			f(`<tr class="topic"><td><span id="%s" class="topicName">%s</span></td><td>`, t.Name, t.Name)

			if t.Doc != "" {
				f(`<div class="topicDoc doc">%s</div>`, md.Run([]byte(t.Doc)))
			}

			f(`<table>`)
			f(`<tr><td></td><td>size</td><td><code>%d</code></td></tr>`, t.Size)
			if 1 < t.QueueSize {
				f(`<tr><td></td><td>queue</td><td><code>%d</code></td></tr>`, t.QueueSize)
			}
			if 0 < len(t.Publishers) {
				f(`<tr><td></td><td>publishers</td>`)
				f(`<td><code>%s</code></td></tr>`, JS(t.Publishers))
			}
			if 0 < len(t.Subscribers) {
				f(`<tr><td></td><td>subscribers</td>`)
				f(`<td><code>%s</code></td></tr>`, JS(t.Subscribers))
			}
			f(`</table>`)

			f(`</td></tr>`)
		}
		f(`</div></table>`)
	}

	return nil
}

func RenderRegistryPage(r *Registry, out io.Writer, cssFiles []string, includeGraph bool) error {

	if cssFiles == nil {
		cssFiles = []string{"/static/registry-html.css"}
	}

	js, err := json.Marshal(r)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, r.Name)

	if includeGraph {
		fmt.Fprintf(out, `
  <script src="https://cdnjs.cloudflare.com/ajax/libs/d3/4.12.2/d3.min.js"></script>
  <script src="https://cdnjs.cloudflare.com/ajax/libs/cytoscape/3.2.8/cytoscape.min.js"></script>
  <script src="/static/registry-html.js"></script>
  <script>
  var thisRegistry = %s;
  </script>
`, js)
	}

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, r.Name)

	if includeGraph {
		fmt.Fprintf(out, `<div id="graph"></div>`)
	}

	if err = RenderRegistryHTML(r, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

func ReadAndRenderRegistryPage(filename string, cssFiles []string, out io.Writer, includeGraph bool) error {
	r, err := LoadRegistry(filename)
	if err != nil {
		return err
	}
	return RenderRegistryPage(r, out, cssFiles, includeGraph)
}
