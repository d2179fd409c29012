package main

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/ini.v1"

	"github.com/subconverter-go/subconverter/logger"
	"github.com/subconverter-go/subconverter/server"
)

// utf8BOM is prefixed to every generated artifact; several Surge/Clash
// clients mis-detect encoding without it (spec.md §6 "generate.ini").
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// runGenerate implements `subconverter -g [-p <artifact>]`: each section of
// generateFile names one artifact whose keys become `/sub` query params,
// plus a `path` key naming where to write the rendered body.
func runGenerate(srv *server.Server, generateFile, onlyArtifact string, log *logger.Logger) error {
	f, err := ini.Load(generateFile)
	if err != nil {
		return fmt.Errorf("load %q: %w", generateFile, err)
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		if onlyArtifact != "" && name != onlyArtifact {
			continue
		}

		q := url.Values{}
		target := ""
		path := ""
		for _, key := range sec.Keys() {
			switch key.Name() {
			case "path":
				path = key.Value()
			case "target":
				target = key.Value()
				q.Set(key.Name(), key.Value())
			default:
				q.Set(key.Name(), key.Value())
			}
		}
		if target == "" || path == "" {
			log.Errorf("generate: artifact %q missing target or path, skipped", name)
			continue
		}

		body, err := srv.Generate(target, q)
		if err != nil {
			log.Errorf("generate: artifact %q failed: %v", name, err)
			continue
		}

		if err := os.WriteFile(path, append(utf8BOM, body...), 0o644); err != nil { // #nosec G306 -- artifact is a client-config file meant to be readable
			log.Errorf("generate: write %q for artifact %q failed: %v", path, name, err)
			continue
		}
		log.Infof("generate: wrote artifact %q to %q", name, path)
	}
	return nil
}
