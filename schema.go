package mkv

import (
	"sync"
)

// elementDef is the static, literal description of one schema entry and
// its children, as tabulated directly from the published Matroska DTD.
// This is the data schema.go ships; schemaEntry (built once from it) is
// what the rest of the package actually queries.
type elementDef struct {
	id        uint32
	name      string
	typ       Type
	multiple  bool
	global    bool
	recursive bool
	fixedSize int
	children  []elementDef
}

// schemaEntry is the immutable, queryable form of an elementDef: id,
// name, type, multiple, global, recursive, fixed size and path. It
// carries no default value: an empty payload decodes to the zero value
// of the element's type.
type schemaEntry struct {
	ID        uint32
	Name      string
	Type      Type
	Multiple  bool
	Global    bool
	Recursive bool
	FixedSize int
	Path      string // dot-joined path from the owning root, e.g. "Segment.Tracks.TrackEntry"
}

// schemaTable is the set of derived indices built once per process, per
// spec.md §4.B: globalIDs (valid at any depth), pathIDs (scoped by
// absolute path, keyed first by parent path), and trackTypes.
type schemaTable struct {
	globalIDs  map[uint32]*schemaEntry
	pathIDs    map[string]map[uint32]*schemaEntry // parentPath -> id -> entry
	byPathName map[string]*schemaEntry            // full path -> entry, for query helpers
	trackTypes map[uint64]string
}

var (
	schemaOnce  sync.Once
	schemaTableSingleton *schemaTable
)

func schemaData() *schemaTable {
	schemaOnce.Do(func() {
		schemaTableSingleton = buildSchemaTable(matroskaDTD)
	})
	return schemaTableSingleton
}

func buildSchemaTable(roots []elementDef) *schemaTable {
	t := &schemaTable{
		globalIDs: map[uint32]*schemaEntry{},
		pathIDs:   map[string]map[uint32]*schemaEntry{},
		byPathName: map[string]*schemaEntry{},
		trackTypes: map[uint64]string{
			0x01: "Video",
			0x02: "Audio",
			0x10: "Logo",
			0x11: "Subtitle",
			0x12: "Buttons",
			0x20: "Control",
		},
	}
	var walk func(parentPath string, defs []elementDef)
	walk = func(parentPath string, defs []elementDef) {
		for _, d := range defs {
			entry := &schemaEntry{
				ID:        d.id,
				Name:      d.name,
				Type:      d.typ,
				Multiple:  d.multiple,
				Global:    d.global,
				Recursive: d.recursive,
				FixedSize: d.fixedSize,
				Path:      joinPath(parentPath, d.name),
			}
			if d.global {
				t.globalIDs[d.id] = entry
			} else {
				m, ok := t.pathIDs[parentPath]
				if !ok {
					m = map[uint32]*schemaEntry{}
					t.pathIDs[parentPath] = m
				}
				m[d.id] = entry
			}
			t.byPathName[entry.Path] = entry

			children := d.children
			if d.recursive {
				// Recursive entries (ChapterAtom, SimpleTag) are entered
				// into their own child index too, so self-nesting
				// resolves without divergence (spec.md §4.B).
				m, ok := t.pathIDs[entry.Path]
				if !ok {
					m = map[uint32]*schemaEntry{}
					t.pathIDs[entry.Path] = m
				}
				m[d.id] = entry
			}
			if len(children) > 0 {
				walk(entry.Path, children)
			}
		}
	}
	walk("", roots)
	return t
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// lookup resolves id at parentPath: globalIDs first, then
// pathIDs[parentPath], then by walking ancestorPaths (for recursive
// containers whose child set lives at a shallower path than the current
// nesting depth), per the resolution order in spec.md §4.C step 1.
func (t *schemaTable) lookup(parentPath string, id uint32, ancestorPaths []string) *schemaEntry {
	if e, ok := t.globalIDs[id]; ok {
		return e
	}
	if m, ok := t.pathIDs[parentPath]; ok {
		if e, ok := m[id]; ok {
			return e
		}
	}
	for _, p := range ancestorPaths {
		if m, ok := t.pathIDs[p]; ok {
			if e, ok := m[id]; ok {
				return e
			}
		}
	}
	return nil
}

func (t *schemaTable) byPath(path string) *schemaEntry {
	return t.byPathName[path]
}

func leaf(id uint32, name string, typ Type) elementDef {
	return elementDef{id: id, name: name, typ: typ}
}

func leafMultiple(id uint32, name string, typ Type) elementDef {
	return elementDef{id: id, name: name, typ: typ, multiple: true}
}

func container(id uint32, name string, children ...elementDef) elementDef {
	return elementDef{id: id, name: name, typ: TypeContainer, children: children}
}

func containerMultiple(id uint32, name string, children ...elementDef) elementDef {
	return elementDef{id: id, name: name, typ: TypeContainer, multiple: true, children: children}
}

func recursiveContainer(id uint32, name string, children ...elementDef) elementDef {
	return elementDef{id: id, name: name, typ: TypeContainer, multiple: true, recursive: true, children: children}
}

// global elements are valid at any depth in the tree: CRC-32, Void, and
// SignatureSlot (spec.md §4.B).
var globalElements = []elementDef{
	{id: 0xBF, name: "CRC32", typ: TypeBinary, global: true},
	{id: 0xEC, name: "Void", typ: TypeBinary, global: true, multiple: true},
	{id: 0x1B538667, name: "SignatureSlot", typ: TypeContainer, global: true, multiple: true},
}

// matroskaDTD is the Matroska element set this package ships, rooted at
// the two top-level pseudo-root sequences (EBML header, Segment). It is a
// subset of the published Matroska elements: the ones listed below, and
// no others (for example, no ContentEncodings or Colour); any other
// identifier decodes as an unknown binary element. Grounded on the ID
// constant block in luispater-matroska-go/ebml.go, supplemented with the
// SeekHead/Cues/Chapters/Tags/Attachments sub-elements the teacher never
// parsed.
var matroskaDTD = append([]elementDef{
	container(0x1A45DFA3, "EBML",
		leaf(0x4286, "EBMLVersion", TypeUInt),
		leaf(0x42F7, "EBMLReadVersion", TypeUInt),
		leaf(0x42F2, "EBMLMaxIDLength", TypeUInt),
		leaf(0x42F3, "EBMLMaxSizeLength", TypeUInt),
		leaf(0x4282, "DocType", TypeString),
		leaf(0x4287, "DocTypeVersion", TypeUInt),
		leaf(0x4285, "DocTypeReadVersion", TypeUInt),
	),
	container(0x18538067, "Segment",
		container(0x114D9B74, "SeekHead",
			containerMultiple(0x4DBB, "Seek",
				leaf(0x53AB, "SeekID", TypeBinary),
				leaf(0x53AC, "SeekPosition", TypeUInt),
			),
		),
		container(0x1549A966, "Info",
			leaf(0x73A4, "SegmentUID", TypeBinary),
			leaf(0x7384, "SegmentFilename", TypeString),
			leaf(0x3CB923, "PrevUID", TypeBinary),
			leaf(0x3C83AB, "PrevFilename", TypeString),
			leaf(0x3EB923, "NextUID", TypeBinary),
			leaf(0x3E83BB, "NextFilename", TypeString),
			leaf(0x4444, "SegmentFamily", TypeBinary),
			leaf(0x2AD7B1, "TimecodeScale", TypeUInt),
			leaf(0x4489, "Duration", TypeFloat),
			leaf(0x4461, "DateUTC", TypeDate),
			leaf(0x7BA9, "Title", TypeString),
			leaf(0x4D80, "MuxingApp", TypeString),
			leaf(0x5741, "WritingApp", TypeString),
		),
		container(0x1654AE6B, "Tracks",
			containerMultiple(0xAE, "TrackEntry",
				leaf(0xD7, "TrackNumber", TypeUInt),
				leaf(0x73C5, "TrackUID", TypeUInt),
				leaf(0x83, "TrackType", TypeUInt),
				leaf(0xB9, "FlagEnabled", TypeUInt),
				leaf(0x88, "FlagDefault", TypeUInt),
				leaf(0x55AA, "FlagForced", TypeUInt),
				leaf(0x9C, "FlagLacing", TypeUInt),
				leaf(0x23E383, "DefaultDuration", TypeUInt),
				leaf(0x234E7A, "DefaultDecodedFieldDuration", TypeUInt),
				leaf(0x536E, "Name", TypeString),
				leaf(0x22B59C, "Language", TypeString),
				leaf(0x86, "CodecID", TypeString),
				leaf(0x63A2, "CodecPrivate", TypeBinary),
				leaf(0x258688, "CodecName", TypeString),
				container(0xE0, "Video",
					leaf(0x9A, "FlagInterlaced", TypeUInt),
					leaf(0xB0, "PixelWidth", TypeUInt),
					leaf(0xBA, "PixelHeight", TypeUInt),
					leaf(0x54B0, "DisplayWidth", TypeUInt),
					leaf(0x54BA, "DisplayHeight", TypeUInt),
				),
				container(0xE1, "Audio",
					leaf(0xB5, "SamplingFrequency", TypeFloat),
					leaf(0x78B5, "OutputSamplingFrequency", TypeFloat),
					leaf(0x9F, "Channels", TypeUInt),
					leaf(0x6264, "BitDepth", TypeUInt),
				),
			),
		),
		containerMultiple(0x1F43B675, "Cluster",
			leaf(0xE7, "Timecode", TypeUInt),
			leaf(0xA7, "Position", TypeUInt),
			leaf(0xAB, "PrevSize", TypeUInt),
			leafMultiple(0xA3, "SimpleBlock", TypeBinary),
			containerMultiple(0xA0, "BlockGroup",
				leaf(0xA1, "Block", TypeBinary),
				leafMultiple(0xFB, "ReferenceBlock", TypeInt),
				leaf(0x9B, "BlockDuration", TypeUInt),
				leaf(0x75A1, "BlockAdditions", TypeUInt),
			),
		),
		container(0x1C53BB6B, "Cues",
			containerMultiple(0xBB, "CuePoint",
				leaf(0xB3, "CueTime", TypeUInt),
				containerMultiple(0xB7, "CueTrackPositions",
					leaf(0xF7, "CueTrack", TypeUInt),
					leaf(0xF1, "CueClusterPosition", TypeUInt),
					leaf(0xB2, "CueDuration", TypeUInt),
				),
			),
		),
		container(0x1043A770, "Chapters",
			containerMultiple(0x45B9, "EditionEntry",
				recursiveContainer(0xB6, "ChapterAtom",
					leaf(0x73C4, "ChapterUID", TypeUInt),
					leaf(0x91, "ChapterTimeStart", TypeUInt),
					leaf(0x92, "ChapterTimeEnd", TypeUInt),
					containerMultiple(0x80, "ChapterDisplay",
						leaf(0x85, "ChapString", TypeString),
						leafMultiple(0x437C, "ChapLanguage", TypeString),
					),
				),
			),
		),
		container(0x1254C367, "Tags",
			containerMultiple(0x7373, "Tag",
				container(0x63C0, "Targets",
					leaf(0x68CA, "TargetTypeValue", TypeUInt),
				),
				recursiveContainer(0x67C8, "SimpleTag",
					leaf(0x45A3, "TagName", TypeString),
					leaf(0x447A, "TagLanguage", TypeString),
					leaf(0x4487, "TagString", TypeString),
					leaf(0x4485, "TagBinary", TypeBinary),
				),
			),
		),
		container(0x1941A469, "Attachments",
			containerMultiple(0x61A7, "AttachedFile",
				leaf(0x467E, "FileDescription", TypeString),
				leaf(0x466E, "FileName", TypeString),
				leaf(0x4660, "FileMimeType", TypeString),
				leaf(0x465C, "FileData", TypeBinary),
				leaf(0x46AE, "FileUID", TypeUInt),
			),
		),
	),
}, globalElements...)
