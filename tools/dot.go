package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Dot makes a Graphviz dot file for the given registry.  Modules are
// ellipses and topics are records showing the payload size and queue
// depth.  Publisher edges run module to topic; subscriber edges run
// topic to module.
//
// The optional highlight can name a topic.  If non-zero, that topic
// will be red.
func Dot(r *Registry, w io.WriteCloser, highlight string) error {

	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=LR,nodesep=0.3,ranksep=0.6]
  node [fontsize = "11"]
  edge [fontsize = "9"]
`)

	modules := make(map[string]bool)
	for _, t := range r.Topics {
		for _, m := range t.Publishers {
			modules[m] = true
		}
		for _, m := range t.Subscribers {
			modules[m] = true
		}
	}

	names := make([]string, 0, len(modules))
	for m := range modules {
		names = append(names, m)
	}
	sort.Strings(names)

	for i, m := range names {
		fmt.Fprintf(w, "  m%d [shape=\"ellipse\", style=\"filled\", fillcolor=\"#99ddc8\", label=\"%s\"]\n",
			i, escape(m))
	}

	mid := func(m string) string {
		for i, name := range names {
			if name == m {
				return fmt.Sprintf("m%d", i)
			}
		}
		return ""
	}

	for i, t := range r.Topics {
		color := "black"
		fillcolor := "#2d93ad"
		if t.Name == highlight {
			color = "red"
			fillcolor = "#f98b8b"
		}
		label := fmt.Sprintf("%s|%d B", escbraces(escape(t.Name)), t.Size)
		if 1 < t.QueueSize {
			label += fmt.Sprintf("|q=%d", t.QueueSize)
		}
		fmt.Fprintf(w, "  t%d [shape=\"record\", style=\"rounded,filled\", color=\"%s\", fillcolor=\"%s\", label=\"{%s}\"]\n",
			i, color, fillcolor, label)

		for _, m := range t.Publishers {
			fmt.Fprintf(w, "  %s -> t%d\n", mid(m), i)
		}
		for _, m := range t.Subscribers {
			fmt.Fprintf(w, "  t%d -> %s\n", i, mid(m))
		}
	}

	fmt.Fprintf(w, "}\n")
	return w.Close()
}

// PNG generates a PNG image based on output from Dot.
//
// This function will write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(r *Registry, basename string, highlight string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	// ToDo: Use mktemp
	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(r, dotfile, highlight); err != nil {
		return pngname, err
	}
	cmd := "dot -Tpng -Gstart=1 " + dotname + " > " + pngname
	if err := exec.Command("bash", "-c", cmd).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func escape(s string) string {
	return strings.Replace(s, `"`, `\"`, -1)
}

func escbraces(s string) string {
	s = strings.Replace(s, "{", "\\{", -1)
	s = strings.Replace(s, "}", "\\}", -1)
	return s
}
