// Package relocate rewrites JAR (ZIP-format) archives according to an
// ordered list of package relocations: class-file constant pool rewriting,
// manifest/services rewriting, textual resource rewriting, signed-jar
// signature stripping, and fully deterministic re-emission.
package relocate

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("relocate")

// epoch is the fixed modification time written to every output entry so
// that two runs over the same input and ruleset produce byte-identical
// archives.
var epoch = time.Unix(0, 0).UTC()

// Relocation renames every occurrence of the from package prefix to to,
// applied at full path-segment boundaries.
type Relocation struct {
	From string
	To   string
}

// noOp returns true if applying this relocation would change nothing.
func (r Relocation) noOp() bool {
	return r.From == r.To
}

// isSignatureFile reports whether name is a signed-jar signature file that
// must be dropped because relocation invalidates it.
func isSignatureFile(name string) bool {
	if !strings.HasPrefix(name, "META-INF/") {
		return false
	}
	return strings.HasSuffix(name, ".SF") || strings.HasSuffix(name, ".DSA") || strings.HasSuffix(name, ".RSA")
}

// Relocate reads a JAR from src and writes the relocated JAR to dst. If
// relocations is empty, or every entry is a no-op, the output content is
// unchanged, but the archive is still always re-emitted in sorted,
// fixed-timestamp form for reproducibility.
func Relocate(src io.ReaderAt, srcSize int64, dst io.Writer, relocations []Relocation) error {
	active := make([]Relocation, 0, len(relocations))
	for _, r := range relocations {
		if !r.noOp() {
			active = append(active, r)
		}
	}

	zr, err := zip.NewReader(src, srcSize)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}

	type entry struct {
		name string
		data []byte
		mode uint32
	}
	entries := map[string]*entry{}
	var order []string
	services := map[string][]byte{}

	for _, zf := range zr.File {
		if isSignatureFile(zf.Name) {
			log.Debug("stripping signature file %s", zf.Name)
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("reading %s: %w", zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", zf.Name, err)
		}

		name := zf.Name
		switch {
		case strings.HasSuffix(name, ".class"):
			name, data = relocateClass(name, data, active)
		case strings.HasPrefix(name, "META-INF/services/"):
			// Service file names are dot-form class names, so they are
			// rewritten like text rather than as slash-delimited paths.
			newName := "META-INF/services/" + string(relocateText([]byte(strings.TrimPrefix(name, "META-INF/services/")), active))
			newData := relocateText(data, active)
			services[newName] = append(services[newName], withTrailingNewline(newData)...)
			continue
		case name == "META-INF/MANIFEST.MF":
			data = relocateManifest(data, active)
		default:
			if looksTextual(name) {
				data = relocateText(data, active)
			}
			name = relocatePath(name, active)
		}

		if existing, present := entries[name]; present {
			if bytes.Equal(existing.data, data) {
				continue
			}
			log.Warning("duplicate entry %s after relocation, keeping first occurrence", name)
			continue
		}
		entries[name] = &entry{name: name, data: data, mode: uint32(zf.Mode())}
		order = append(order, name)
	}

	for name, data := range services {
		if _, present := entries[name]; present {
			continue
		}
		entries[name] = &entry{name: name, data: data, mode: 0644}
		order = append(order, name)
	}

	sort.Strings(order)

	zw := zip.NewWriter(dst)
	for _, name := range order {
		e := entries[name]
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		hdr.SetMode(sanePermissions(e.mode))
		hdr.Modified = epoch
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("writing %s: %w", e.name, err)
		}
		if _, err := fw.Write(e.data); err != nil {
			return fmt.Errorf("writing %s: %w", e.name, err)
		}
	}
	return zw.Close()
}

func sanePermissions(mode uint32) uint32 {
	if mode == 0 {
		return 0644
	}
	return mode
}

func withTrailingNewline(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(append([]byte(nil), b...), '\n')
}

// looksTextual is a conservative guess at which non-class, non-manifest
// entries are worth rewriting textually (property files, module descriptors
// and similar small text resources commonly reference package names).
func looksTextual(name string) bool {
	for _, suffix := range []string{".properties", ".xml", ".txt", ".MF"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
