package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// Session describes one graph file listed in a manifest.
type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// Manifest is the merged graph listing of one or more manifest files.
type Manifest struct {
	sessions map[string]Session
	order    []string
	assets   map[string]string
}

type manifestFile struct {
	Graphs []manifestGraph   `json:"graphs"`
	Assets map[string]string `json:"assets"`
}

type manifestGraph struct {
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

// LoadManifest reads and merges manifest files. Graph and asset paths are
// resolved relative to the manifest that lists them; a graph name may
// appear only once across all files.
func LoadManifest(paths ...string) (*Manifest, error) {
	if len(paths) == 0 {
		return nil, errors.New("manifest path is required")
	}

	m := &Manifest{sessions: make(map[string]Session), assets: make(map[string]string)}
	for _, p := range paths {
		if p == "" {
			return nil, errors.New("manifest path is required")
		}
		if err := m.add(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manifest) add(manifestPath string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read ONNX manifest: %w", err)
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("decode ONNX manifest %s: %w", manifestPath, err)
	}
	if len(mf.Graphs) == 0 {
		return fmt.Errorf("ONNX manifest %s has no graphs", manifestPath)
	}

	baseDir := filepath.Dir(manifestPath)
	for _, g := range mf.Graphs {
		if g.Name == "" {
			return fmt.Errorf("manifest %s: graph has empty name", manifestPath)
		}
		if g.Filename == "" {
			return fmt.Errorf("manifest graph %q has empty filename", g.Name)
		}
		if _, exists := m.sessions[g.Name]; exists {
			return fmt.Errorf("duplicate session name %q in manifest %s", g.Name, manifestPath)
		}

		sessionPath := resolve(baseDir, g.Filename)
		if _, err := os.Stat(sessionPath); err != nil {
			return fmt.Errorf("session file for %q: %w", g.Name, err)
		}

		m.sessions[g.Name] = Session{
			Name:    g.Name,
			Path:    sessionPath,
			Inputs:  append([]NodeInfo(nil), g.Inputs...),
			Outputs: append([]NodeInfo(nil), g.Outputs...),
		}
		m.order = append(m.order, g.Name)

		slog.Debug("loaded ONNX session",
			"name", g.Name,
			"path", sessionPath,
			"inputs", nodeNames(g.Inputs),
			"outputs", nodeNames(g.Outputs),
		)
	}

	for name, file := range mf.Assets {
		m.assets[name] = resolve(baseDir, file)
	}
	return nil
}

func resolve(baseDir, file string) string {
	if !filepath.IsAbs(file) {
		file = filepath.Join(baseDir, file)
	}
	return filepath.Clean(file)
}

func (m *Manifest) Session(name string) (Session, bool) {
	s, ok := m.sessions[name]
	return s, ok
}

// Sessions returns every graph in manifest order.
func (m *Manifest) Sessions() []Session {
	out := make([]Session, 0, len(m.order))
	for _, name := range m.order {
		s := m.sessions[name]
		s.Inputs = append([]NodeInfo(nil), s.Inputs...)
		s.Outputs = append([]NodeInfo(nil), s.Outputs...)
		out = append(out, s)
	}
	return out
}

// Asset returns the resolved path of a non-graph file such as a vocabulary.
func (m *Manifest) Asset(name string) (string, bool) {
	p, ok := m.assets[name]
	return p, ok
}

func nodeNames(nodes []NodeInfo) string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return strings.Join(names, ",")
}
