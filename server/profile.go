package server

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// loadProfile reads dir/<name>.ini and flattens its single unnamed/default
// section into query-parameter overrides, matching the original project's
// convention of profile files being a flat list of `/sub` query keys
// (spec.md §6 "/getprofile ... treat its items as query params").
func loadProfile(dir, name string) (url.Values, error) {
	clean := filepath.Clean(name)
	if strings.Contains(clean, "..") {
		return nil, fmt.Errorf("server: profile name %q escapes profile dir", name)
	}
	path := filepath.Join(dir, clean+".ini")
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("server: load profile %q: %w", path, err)
	}

	vals := url.Values{}
	for _, sec := range f.Sections() {
		for _, key := range sec.Keys() {
			vals.Set(key.Name(), key.Value())
		}
	}
	return vals, nil
}
