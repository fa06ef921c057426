package fs

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/url"
	"sort"
)

// listingEntry is one row of a synthesized directory listing, modeled
// on rclone's lib/http/serve.DirEntry (serve/dir_test.go): a URL-safe
// link plus the display name and directory flag the template needs.
type listingEntry struct {
	Name  string
	URL   string
	IsDir bool
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><title>Index of {{.Title}}</title></head>
<body>
<h1>Index of {{.Title}}</h1>
<ul>
{{range .Entries}}<li><a href="{{.URL}}">{{.Name}}{{if .IsDir}}/{{end}}</a></li>
{{end}}</ul>
</body>
</html>
`))

type listingData struct {
	Title   string
	Entries []listingEntry
}

// renderListing builds the deterministic (lexicographic), dotfile-
// filtered HTML body for a directory listing (spec.md §4.4 "Directory
// handling").
func renderListing(relPath string, entries []fs.DirEntry, ignore IgnoreFunc) ([]byte, error) {
	names := make([]string, 0, len(entries))
	isDir := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if ignore != nil && ignore(name) {
			continue
		}
		names = append(names, name)
		isDir[name] = e.IsDir()
	}
	sort.Strings(names)

	data := listingData{Title: "/" + relPath}
	for _, name := range names {
		href := url.PathEscape(name)
		if isDir[name] {
			href += "/"
		}
		data.Entries = append(data.Entries, listingEntry{
			Name:  name,
			URL:   href,
			IsDir: isDir[name],
		})
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render directory listing: %w", err)
	}
	return buf.Bytes(), nil
}
