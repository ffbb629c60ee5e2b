package relocate

import (
	"encoding/binary"
	"strings"
)

// JVM constant pool tags we need to recognise while walking the pool; only
// CONSTANT_Utf8 carries rewritable string data, but we must correctly skip
// every other tag's fixed-size or variable-size payload to stay aligned.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// relocateClass rewrites every CONSTANT_Utf8 constant-pool entry of a
// .class file whose value matches a relocation's From package, at full
// `/`-segment boundaries, and renames the entry itself to match. Long and
// Double entries occupy two constant-pool slots, per the JVM spec.
func relocateClass(name string, data []byte, relocations []Relocation) (string, []byte) {
	if len(relocations) == 0 || len(data) < 10 || !isClassMagic(data) {
		return name, data
	}
	out := append([]byte(nil), data...)

	count := int(binary.BigEndian.Uint16(out[8:10]))
	offset := 10
	for i := 1; i < count; i++ {
		if offset >= len(out) {
			break // malformed or truncated; leave the rest untouched
		}
		tag := out[offset]
		offset++
		switch tag {
		case tagUtf8:
			if offset+2 > len(out) {
				return name, data
			}
			length := int(binary.BigEndian.Uint16(out[offset : offset+2]))
			start := offset + 2
			end := start + length
			if end > len(out) {
				return name, data
			}
			original := string(out[start:end])
			rewritten := relocateSegments(original, relocations)
			if rewritten != original {
				replacement := []byte(rewritten)
				out = spliceUtf8(out, start, length, replacement)
				length = len(replacement)
				end = start + length
			}
			offset = end
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			offset += 4
		case tagLong, tagDouble:
			offset += 8
			i++ // occupies two constant pool entries
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			offset += 2
		case tagMethodHandle:
			offset += 3
		default:
			// Unknown tag: we can't safely continue walking the pool, so
			// bail out and leave the class file byte-for-byte as-is.
			return name, data
		}
	}

	return relocatePath(name, relocations), out
}

func isClassMagic(data []byte) bool {
	return data[0] == 0xCA && data[1] == 0xFE && data[2] == 0xBA && data[3] == 0xBE
}

// spliceUtf8 replaces the [offset, offset+oldLength) byte run (the UTF-8
// payload, not including its 2-byte length prefix at offset-2) with
// replacement, updating the length prefix to match.
func spliceUtf8(data []byte, offset, oldLength int, replacement []byte) []byte {
	lengthPos := offset - 2
	prefix := append([]byte(nil), data[:offset]...)
	binary.BigEndian.PutUint16(prefix[lengthPos:], uint16(len(replacement)))
	prefix = append(prefix, replacement...)
	return append(prefix, data[offset+oldLength:]...)
}

// relocateSegments rewrites a `/`-delimited internal name or descriptor,
// matching relocation.From at whole path-segment boundaries only (so
// "com/examples" never matches a relocation "From: com/example").
func relocateSegments(s string, relocations []Relocation) string {
	for _, r := range relocations {
		s = replaceSegmentPrefix(s, r.From, r.To)
	}
	return s
}

// replaceSegmentPrefix replaces every occurrence of the segment-delimited
// run "from" within s (appearing between `/` or string boundaries on both
// sides) with "to". Used both for internal names (a/b/C) and for
// descriptors that embed them (Ljava/lang/String;, [Lcom/example/Widget;).
func replaceSegmentPrefix(s, from, to string) string {
	if from == "" || !strings.Contains(s, from) {
		return s
	}
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(s[i:], from)
		if idx == -1 {
			b.WriteString(s[i:])
			break
		}
		start := i + idx
		end := start + len(from)
		before := byte('/')
		if start > 0 {
			before = s[start-1]
		}
		after := byte('/')
		if end < len(s) {
			after = s[end]
		}
		boundaryBefore := start == 0 || before == '/' || before == ';' || before == 'L'
		boundaryAfter := end == len(s) || after == '/' || after == ';'
		if boundaryBefore && boundaryAfter {
			b.WriteString(s[i:start])
			b.WriteString(to)
			i = end
		} else {
			b.WriteString(s[i : start+1])
			i = start + 1
		}
	}
	return b.String()
}

// relocatePath rewrites a ZIP entry path using dot-free, slash-delimited
// segment matching (entry paths use the same `/` convention as internal
// class names).
func relocatePath(name string, relocations []Relocation) string {
	return relocateSegments(name, relocations)
}

// relocateText rewrites both slash and dot forms of every relocation's
// package prefix within a textual resource's content.
func relocateText(data []byte, relocations []Relocation) []byte {
	s := string(data)
	for _, r := range relocations {
		s = replaceSegmentPrefix(s, r.From, r.To)
		dotFrom := strings.ReplaceAll(r.From, "/", ".")
		dotTo := strings.ReplaceAll(r.To, "/", ".")
		s = replaceDotSegmentPrefix(s, dotFrom, dotTo)
	}
	return []byte(s)
}

// replaceDotSegmentPrefix is replaceSegmentPrefix's counterpart for the
// dot-delimited package form used in manifests, properties files and
// MANIFEST.MF headers.
func replaceDotSegmentPrefix(s, from, to string) string {
	if from == "" || !strings.Contains(s, from) {
		return s
	}
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(s[i:], from)
		if idx == -1 {
			b.WriteString(s[i:])
			break
		}
		start := i + idx
		end := start + len(from)
		before := byte('.')
		if start > 0 {
			before = s[start-1]
		}
		after := byte('.')
		if end < len(s) {
			after = s[end]
		}
		boundaryBefore := start == 0 || before == '.' || !isIdentifierByte(before)
		boundaryAfter := end == len(s) || after == '.' || !isIdentifierByte(after)
		if boundaryBefore && boundaryAfter {
			b.WriteString(s[i:start])
			b.WriteString(to)
			i = end
		} else {
			b.WriteString(s[i : start+1])
			i = start + 1
		}
	}
	return b.String()
}

func isIdentifierByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// relocateManifest rewrites MANIFEST.MF header values (notably Main-Class)
// using the dot-delimited form.
func relocateManifest(data []byte, relocations []Relocation) []byte {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		idx := strings.Index(line, ":")
		if idx == -1 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimPrefix(line[idx+1:], " ")
		switch key {
		case "Main-Class", "Launcher-Agent-Class", "Premain-Class", "Agent-Class":
			for _, r := range relocations {
				dotFrom := strings.ReplaceAll(r.From, "/", ".")
				dotTo := strings.ReplaceAll(r.To, "/", ".")
				value = replaceDotSegmentPrefix(value, dotFrom, dotTo)
			}
			lines[i] = key + ": " + value
		}
	}
	return []byte(strings.Join(lines, "\n"))
}
