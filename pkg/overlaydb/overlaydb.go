// Package overlaydb looks overlays up in the Gentoo overlay list
// (repositories.xml), so an overlay can be added by name alone.
package overlaydb

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/fmtools/fmsys/pkg/errors"
)

// QualityCore marks overlays maintained by Gentoo developers
const QualityCore = "core"

// Entry is one <repo> of the overlay list
type Entry struct {
	Name    string
	Quality string
	VCS     string
	URL     string
}

// Trusted reports whether the overlay can be used as-is instead of
// selecting packages from it
func (e Entry) Trusted() bool {
	return e.Quality == QualityCore
}

// DB is a parsed overlay list
type DB struct {
	doc *etree.Document
}

// Load parses the overlay list at path
func Load(path string) (*DB, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "cannot parse overlay list %s", path)
	}
	return &DB{doc: doc}, nil
}

// Parse parses an overlay list from memory
func Parse(data []byte) (*DB, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "cannot parse overlay list")
	}
	return &DB{doc: doc}, nil
}

// Names returns every overlay name in document order
func (db *DB) Names() []string {
	var out []string
	for _, repo := range db.doc.FindElements("//repositories/repo") {
		if n := repo.SelectElement("name"); n != nil {
			out = append(out, strings.TrimSpace(n.Text()))
		}
	}
	return out
}

// Lookup finds an overlay by name. Among its sources the first git or svn
// one served over https wins, then the first git or svn one at all.
func (db *DB) Lookup(name string) (Entry, error) {
	for _, repo := range db.doc.FindElements("//repositories/repo") {
		n := repo.SelectElement("name")
		if n == nil || strings.TrimSpace(n.Text()) != name {
			continue
		}
		e := Entry{Name: name, Quality: repo.SelectAttrValue("quality", "")}

		var fallback *etree.Element
		for _, src := range repo.SelectElements("source") {
			typ := src.SelectAttrValue("type", "")
			if typ != "git" && typ != "svn" {
				continue
			}
			if strings.HasPrefix(strings.TrimSpace(src.Text()), "https://") {
				fallback = src
				break
			}
			if fallback == nil {
				fallback = src
			}
		}
		if fallback == nil {
			return e, errors.Newf(errors.ErrNotFound, "overlay %s has no git or svn source", name)
		}
		e.VCS = fallback.SelectAttrValue("type", "")
		e.URL = strings.TrimSpace(fallback.Text())
		return e, nil
	}
	return Entry{}, errors.Newf(errors.ErrNotFound, "overlay %s is not in the overlay list", name)
}
