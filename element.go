package mkv

import (
	"fmt"
)

// Element is one decoded node of the parse tree, addressed by its arena
// Handle rather than a pointer, so the tree has no parent-cycle to worry
// about and can be copied or indexed freely (spec.md's Design Notes).
type Element struct {
	Handle handle
	ID     uint32
	Name   string
	Path   string // dotted path from the owning root, e.g. "Segment.Tracks.TrackEntry"
	Type   Type
	Level  int

	Parent handle
	Root   handle // the EBML header or Segment this element descends from

	Start     int64 // offset of the identifier VINT
	DataStart int64 // offset of the first payload byte
	Size      int64 // payload length; -1 while a container's true end is still open

	Value    Value
	Children *ContainerMap

	Skipped bool // true if the observer returned Skip for this element
}

// ContainerMap holds a container element's children, preserving document
// order while giving O(1) lookup by name: Single for elements the schema
// marks non-multiple, Multi for everything the schema allows to repeat
// (spec.md §3's "children, looked up by name, either singular... or
// repeated").
type ContainerMap struct {
	order  []string
	single map[string]handle
	multi  map[string][]handle
}

func newContainerMap() *ContainerMap {
	return &ContainerMap{single: map[string]handle{}, multi: map[string][]handle{}}
}

func (cm *ContainerMap) add(name string, h handle, multiple bool) {
	if multiple {
		if _, seen := cm.multi[name]; !seen {
			cm.order = append(cm.order, name)
		}
		cm.multi[name] = append(cm.multi[name], h)
		return
	}
	if _, seen := cm.single[name]; !seen {
		cm.order = append(cm.order, name)
	}
	cm.single[name] = h
}

// Single returns the one child element with this name, if any.
func (cm *ContainerMap) Single(name string) (handle, bool) {
	h, ok := cm.single[name]
	return h, ok
}

// Multi returns every child element with this name, in document order.
func (cm *ContainerMap) Multi(name string) []handle {
	return cm.multi[name]
}

// Names returns every distinct child name, in first-seen order.
func (cm *ContainerMap) Names() []string {
	return cm.order
}

// Tree is the fully built parse result: the element arena plus the
// top-level roots and the derived keyframe index (component F).
type Tree struct {
	arena []*Element

	EBMLHeaders []handle
	Segments    []handle

	Keyframes     []int64          // one entry per keyframe: its frame index when indexed from Cues, else the byte offset of its block (per Cluster, SimpleBlocks first, then BlockGroups)
	Timecodes     []uint64         // matching timecodes, same order as Keyframes
	TimecodeSpans map[int]Span     // cluster arena handle -> the span of same-FPS blocks it belongs to

	Warnings []Warning

	source         ByteSource
	keepStreamOpen bool
	seekIndex      map[handle]map[uint32]int64 // Segment handle -> (element ID -> absolute offset)
}

// Span covers one Cluster's video blocks: their first and last timecodes
// and the frame rate implied by their average interval, as produced by
// the VFR index builder (the Cues-based path builds no spans).
type Span struct {
	StartTimecode uint64
	EndTimecode   uint64
	FPS           float64
}

// Get dereferences a handle returned by a query helper or observer path.
func (t *Tree) Get(h handle) *Element {
	if h < 0 || int(h) >= len(t.arena) {
		return nil
	}
	return t.arena[h]
}

// Close releases the underlying ByteSource when KeepStreamOpen was set,
// since the Tree then owns it; otherwise it does nothing.
func (t *Tree) Close() error {
	if !t.keepStreamOpen || t.source == nil {
		return nil
	}
	return t.source.Close()
}

// readElement decodes one element at the cursor's current position:
// identifier, size, and — for a leaf — its typed Value, or — for a
// container — its children, recursively. ancestorPaths lets the schema
// resolver fall through to an enclosing recursive container's own child
// set (ChapterAtom nesting inside ChapterAtom, SimpleTag inside SimpleTag).
func readElement(pc *ParseContext, cur *cursor, parent *Element, ancestorPaths []string) (*Element, error) {
	start := cur.pos
	id, _, err := cur.readIdentifier()
	if err != nil {
		return nil, err
	}
	size, unknownSize, _, err := cur.readSize()
	if err != nil {
		return nil, wrapParseError(start, "size vint", "", err)
	}
	dataStart := cur.pos

	parentPath := ""
	parentLevel := -1
	parentHandle := noHandle
	rootHandle := noHandle
	if parent != nil {
		parentPath = parent.Path
		parentLevel = parent.Level
		parentHandle = parent.Handle
		rootHandle = parent.Root
	}

	entry := pc.schema.lookup(parentPath, id, ancestorPaths)

	elem := &Element{
		ID:        id,
		Level:     parentLevel + 1,
		Parent:    parentHandle,
		Root:      rootHandle,
		Start:     start,
		DataStart: dataStart,
		Size:      -1,
	}
	if entry != nil {
		elem.Name = entry.Name
		elem.Path = entry.Path
		elem.Type = entry.Type
	} else {
		elem.Name = fmt.Sprintf("Unknown_0x%X", id)
		elem.Path = joinPath(parentPath, elem.Name)
		elem.Type = TypeBinary
	}
	if !unknownSize {
		elem.Size = int64(size)
	}
	h := pc.alloc(elem)
	if elem.Root == noHandle {
		elem.Root = h
	}

	if elem.Type == TypeContainer {
		childAncestors := ancestorPaths
		if entry != nil && entry.Recursive {
			childAncestors = append(append([]string{}, ancestorPaths...), elem.Path)
		}
		if err := readChildren(pc, cur, elem, childAncestors, unknownSize); err != nil {
			return elem, err
		}
		if unknownSize {
			elem.Size = cur.pos - dataStart
		}
		return elem, nil
	}

	if unknownSize {
		return nil, newParseError(start, "known size", "unknown size on a non-container element")
	}
	if err := readLeafValue(pc, cur, elem); err != nil {
		return elem, err
	}
	return elem, nil
}

// readChildren decodes a container's children until its size is
// exhausted (known-size case) or until it encounters an identifier that
// does not resolve under this parent and is not global — the signal
// that an unknown-size container has ended (spec.md §4.C step 4).
func readChildren(pc *ParseContext, cur *cursor, parent *Element, ancestorPaths []string, unknownSize bool) error {
	var end int64 = -1
	if !unknownSize {
		end = parent.DataStart + parent.Size
	}
	cm := newContainerMap()
	parent.Children = cm

	for {
		if !unknownSize && cur.pos >= end {
			break
		}
		if cur.pos >= pc.source.Size() {
			break
		}
		if unknownSize {
			ok, err := peekBelongsToContainer(pc, cur, parent, ancestorPaths)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
		}
		if !pc.wants(childCandidatePath(pc, parent, cur)) {
			if err := skipElement(pc, cur); err != nil {
				return err
			}
			continue
		}

		child, err := readElement(pc, cur, parent, ancestorPaths)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		entry := pc.schema.lookup(parent.Path, child.ID, ancestorPaths)
		multiple := entry != nil && entry.Multiple
		cm.add(child.Name, child.Handle, multiple)

		reply := Continue
		if pc.opts.EntryCallback != nil {
			reply = pc.opts.EntryCallback(ElementInfo{
				Path: child.Path, Name: child.Name, ID: child.ID, Type: child.Type,
				Level: child.Level, Start: child.Start, Size: child.Size, Value: child.Value,
			})
		}
		switch reply {
		case Abort:
			pc.aborted = true
			return ErrAborted
		case Skip:
			child.Skipped = true
		}
		applyPostProcessing(pc, child)
	}
	return nil
}

// peekBelongsToContainer reads the next identifier without consuming the
// cursor permanently; if it does not resolve as a child of parent (by
// path or global table) the unknown-size container is considered closed.
func peekBelongsToContainer(pc *ParseContext, cur *cursor, parent *Element, ancestorPaths []string) (bool, error) {
	save := cur.pos
	id, _, err := cur.readIdentifier()
	cur.pos = save
	if err != nil {
		return false, nil
	}
	if pc.schema.lookup(parent.Path, id, ancestorPaths) != nil {
		return true, nil
	}
	// An element this parent's schema doesn't recognize at all (not even
	// as a global) still ends the open container; the caller resumes
	// reading it as a sibling at the parent's own level.
	return false, nil
}

// childCandidatePath peeks the child path for an Options.Get filter
// check without committing the read; on any error it defers to
// readElement to surface the real failure.
func childCandidatePath(pc *ParseContext, parent *Element, cur *cursor) string {
	if pc.wantPaths == nil {
		return ""
	}
	save := cur.pos
	id, _, err := cur.readIdentifier()
	cur.pos = save
	if err != nil {
		return ""
	}
	entry := pc.schema.lookup(parent.Path, id, nil)
	if entry == nil {
		return joinPath(parent.Path, fmt.Sprintf("Unknown_0x%X", id))
	}
	return entry.Path
}

// skipElement advances the cursor past one element's identifier, size,
// and payload without building an Element for it.
func skipElement(pc *ParseContext, cur *cursor) error {
	_, _, err := cur.readIdentifier()
	if err != nil {
		return err
	}
	size, unknown, _, err := cur.readSize()
	if err != nil {
		return err
	}
	if unknown {
		return newParseError(cur.pos, "known size", "cannot skip an unknown-size filtered element")
	}
	cur.pos += int64(size)
	return nil
}

// readLeafValue decodes a non-container element's payload according to
// its schema type, honoring BinarySizeLimit for BINARY values.
func readLeafValue(pc *ParseContext, cur *cursor, elem *Element) error {
	readLen := elem.Size
	if elem.Type == TypeBinary && elem.Name != "SeekID" {
		limit := pc.opts.binarySizeLimit()
		if limit >= 0 && readLen > limit {
			readLen = limit
		}
	}
	data, err := cur.readN(int(readLen))
	if err != nil {
		return wrapParseError(elem.DataStart, fmt.Sprintf("%d payload bytes", readLen), fmt.Sprintf("%d", len(data)), err)
	}
	if elem.Size > readLen {
		cur.pos = elem.DataStart + elem.Size
	}

	switch elem.Type {
	case TypeUInt:
		elem.Value = uintValue(decodeUint(data))
	case TypeInt:
		elem.Value = intValue(decodeInt(data))
	case TypeFloat:
		f, err := decodeFloat(data)
		if err != nil {
			pc.addWarning(elem.DataStart, err.Error())
		}
		elem.Value = floatValue(f)
	case TypeString:
		elem.Value = stringValue(trimTrailingNUL(data))
	case TypeDate:
		t, warning := decodeDate(data)
		if warning != "" {
			pc.addWarning(elem.DataStart, warning)
		}
		elem.Value = dateValue(t)
	default:
		elem.Value = binaryValue(data)
	}
	return nil
}

func trimTrailingNUL(data []byte) string {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return string(data[:end])
}
