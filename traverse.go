package mkv

const (
	ebmlHeaderID uint32 = 0x1A45DFA3
	segmentID    uint32 = 0x18538067
	clusterID    uint32 = 0x1F43B675
	cuesID       uint32 = 0x1C53BB6B
)

// rootSearchChunk is the window size the root search walks in, per
// spec.md §4.D: small enough that a corrupt byte early in the
// stream doesn't force reading the whole file before giving up.
const rootSearchChunk = 4096

// rootSearchMaxChunks bounds how far the forward root search looks
// before concluding the stream has no EBML header or Segment at all.
const rootSearchMaxChunks = 128

// tailScanWindow bounds how far locateLastContainer looks back from the
// end of the stream for a recognizable level-1 container, per spec.md
// §4.D's tail-scan heuristic; the whole window is read in one go.
const tailScanWindow = 1 << 20 // 1 MiB

// findRoot scans forward from the start of the source in rootSearchChunk
// windows for the first byte sequence that decodes as an EBML header or
// Segment identifier.
func findRoot(pc *ParseContext) (int64, uint32, error) {
	size := pc.source.Size()
	limit := int64(rootSearchChunk) * int64(rootSearchMaxChunks)
	if limit > size {
		limit = size
	}
	for base := int64(0); base < limit; base += rootSearchChunk {
		window := int64(rootSearchChunk)
		if base+window > size {
			window = size - base
		}
		chunk := make([]byte, window)
		n, _ := pc.source.ReadAt(chunk, base)
		chunk = chunk[:n]
		for i := range chunk {
			if chunk[i] != byte(ebmlHeaderID>>24) && chunk[i] != byte(segmentID>>24) {
				continue
			}
			cur := newCursor(pc.source, base+int64(i))
			id, _, err := cur.readIdentifier()
			if err != nil {
				continue
			}
			if id == ebmlHeaderID || id == segmentID {
				return base + int64(i), id, nil
			}
		}
	}
	return 0, 0, ErrMissingRoot
}

// locateLastContainer scans backward from the end of the stream, within
// tailScanWindow bytes, for the last recognizable level-1 container
// identifier (Cues or Cluster) followed by a readable size VINT. Nothing
// in the traversal calls it: Parse always reads each Segment
// sequentially, whatever its declared size.
func locateLastContainer(pc *ParseContext) (int64, uint32, bool) {
	size := pc.source.Size()
	start := size - tailScanWindow
	if start < 0 {
		start = 0
	}
	window := size - start
	buf := make([]byte, window)
	n, _ := pc.source.ReadAt(buf, start)
	buf = buf[:n]

	var bestOffset int64 = -1
	var bestID uint32
	for i := range buf {
		b := buf[i]
		if b != byte(cuesID>>24) && b != byte(clusterID>>24) {
			continue
		}
		cur := newCursor(pc.source, start+int64(i))
		id, _, err := cur.readIdentifier()
		if err != nil {
			continue
		}
		if id != cuesID && id != clusterID {
			continue
		}
		if _, _, _, err := cur.readSize(); err != nil {
			continue
		}
		bestOffset = start + int64(i)
		bestID = id
	}
	if bestOffset < 0 {
		return 0, 0, false
	}
	return bestOffset, bestID, true
}

// buildSeekIndex walks a parsed SeekHead's Seek entries into an absolute
// byte offset index, keyed by the referenced element's ID (as carried in
// SeekID). SeekPosition values are stored relative to
// the Segment's data start, per the Matroska SeekHead convention.
func buildSeekIndex(pc *ParseContext, seg *Element, seekHead *Element) map[uint32]int64 {
	index := map[uint32]int64{}
	if seekHead == nil || seekHead.Children == nil {
		return index
	}
	for _, h := range seekHead.Children.Multi("Seek") {
		seek := pc.get(h)
		if seek == nil || seek.Children == nil {
			continue
		}
		idHandle, ok := seek.Children.Single("SeekID")
		if !ok {
			continue
		}
		posHandle, ok := seek.Children.Single("SeekPosition")
		if !ok {
			continue
		}
		idBytes := pc.get(idHandle).Value.Bytes()
		if len(idBytes) == 0 {
			continue
		}
		targetID := decodeSeekID(idBytes)
		pos := pc.get(posHandle).Value.Uint()
		index[targetID] = seg.DataStart + int64(pos)
	}
	return index
}

// decodeSeekID interprets a SeekID payload (a raw identifier VINT,
// marker bit included) as the uint32 form used throughout this package.
func decodeSeekID(data []byte) uint32 {
	var v uint32
	for _, b := range data {
		v = (v << 8) | uint32(b)
	}
	return v
}

// traverseSegment runs the post-decode traversal policy on an already
// fully-parsed Segment: it locates the SeekHead (if any) and exposes the
// resulting offset index on the Tree, so external query helpers and
// cmd/mkvdump can report where each top-level section lives without
// re-walking the arena. The linear descent in readChildren has already
// applied the caller's Options.Get filter cheaply via skipElement, so no
// second decode pass is needed here.
func traverseSegment(pc *ParseContext, tree *Tree, seg *Element) {
	if seg.Children == nil {
		return
	}
	if h, ok := seg.Children.Single("SeekHead"); ok {
		index := buildSeekIndex(pc, seg, pc.get(h))
		if tree.seekIndex == nil {
			tree.seekIndex = map[handle]map[uint32]int64{}
		}
		tree.seekIndex[seg.Handle] = index
	}
}
