package tools

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderRegistryHTML(t *testing.T) {
	r := testRegistry(t)

	var out bytes.Buffer
	if err := RenderRegistryHTML(r, &out); err != nil {
		t.Fatal(err)
	}

	s := out.String()
	if !strings.Contains(s, `id="gps"`) {
		t.Fatal("no gps entry")
	}
	if !strings.Contains(s, "GPS fix.") {
		t.Fatal("no topic doc")
	}
	if !strings.Contains(s, `["logger","ekf"]`) {
		t.Fatalf("no subscribers in %s", s)
	}
}

func TestReadAndRenderRegistryPage(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "bench.yaml")
	if err := ioutil.WriteFile(filename, testRegistryYAML, 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := ReadAndRenderRegistryPage(filename, nil, &out, true); err != nil {
		t.Fatal(err)
	}

	s := out.String()
	if !strings.Contains(s, "<title>bench</title>") {
		t.Fatal("no title")
	}
	if !strings.Contains(s, "var thisRegistry") {
		t.Fatal("no embedded registry")
	}
}

func TestReadAndRenderRegistryPageMissingFile(t *testing.T) {
	err := ReadAndRenderRegistryPage("no-such-file.yaml", nil, os.Stderr, false)
	if err == nil {
		t.Fatal("expected error")
	}
}
