package mkv

import "math"

// buildIndex populates tree.Keyframes/Timecodes for one Segment,
// preferring the Cues table (the CFR path, spec.md §4.F) and falling
// back to walking every Cluster's blocks directly (the VFR path) when
// no Cues element is present. Per spec.md (v), both paths require a
// Video track; indexing is skipped (with a warning, not a fatal error)
// when one cannot be found.
func buildIndex(pc *ParseContext, tree *Tree, seg *Element) {
	if seg.Children == nil {
		return
	}
	videoTrack, ok := findVideoTrack(pc, seg)
	if !ok {
		pc.addWarning(seg.Start, "no Video track: indexing skipped")
		return
	}
	if h, ok := seg.Children.Single("Cues"); ok {
		buildCFRIndex(pc, tree, seg, pc.get(h), videoTrack)
		return
	}
	buildVFRIndex(pc, tree, seg, videoTrack)
}

// findVideoTrack returns the TrackNumber of the Segment's first TrackType
// == 1 (video) TrackEntry.
func findVideoTrack(pc *ParseContext, seg *Element) (uint64, bool) {
	tracksHandle, ok := seg.Children.Single("Tracks")
	if !ok {
		return 0, false
	}
	tracks := pc.get(tracksHandle)
	if tracks.Children == nil {
		return 0, false
	}
	for _, h := range tracks.Children.Multi("TrackEntry") {
		entry := pc.get(h)
		if entry.Children == nil {
			continue
		}
		typeHandle, ok := entry.Children.Single("TrackType")
		if !ok || pc.get(typeHandle).Value.Uint() != 1 {
			continue
		}
		numHandle, ok := entry.Children.Single("TrackNumber")
		if !ok {
			continue
		}
		return pc.get(numHandle).Value.Uint(), true
	}
	return 0, false
}

// defaultFrameDurationMs returns the video track's DefaultDuration,
// converted from nanoseconds per frame to milliseconds per frame.
func defaultFrameDurationMs(pc *ParseContext, seg *Element, videoTrack uint64) (float64, bool) {
	tracksHandle, ok := seg.Children.Single("Tracks")
	if !ok {
		return 0, false
	}
	tracks := pc.get(tracksHandle)
	for _, h := range tracks.Children.Multi("TrackEntry") {
		entry := pc.get(h)
		if entry.Children == nil {
			continue
		}
		numHandle, ok := entry.Children.Single("TrackNumber")
		if !ok || pc.get(numHandle).Value.Uint() != videoTrack {
			continue
		}
		durHandle, ok := entry.Children.Single("DefaultDuration")
		if !ok {
			return 0, false
		}
		// applyPostProcessing already replaced DefaultDuration's raw value with
		// its snapped FPS; go back from FPS to milliseconds per frame.
		fps := pc.get(durHandle).Value.Float()
		if fps <= 0 {
			return 0, false
		}
		return 1000.0 / fps, true
	}
	return 0, false
}

// buildCFRIndex implements spec.md §4.F's CFR mode: every CuePoint
// referencing the video track yields a frame index, computed from its
// CueTime against the track's default frame duration. A CuePoint whose
// computed frame isn't within one millisecond-tolerance of an integer
// means the file isn't truly constant-frame-rate; indexing aborts with a
// warning and Keyframes/Timecodes are left empty rather than partially
// populated.
func buildCFRIndex(pc *ParseContext, tree *Tree, seg *Element, cues *Element, videoTrack uint64) {
	if cues.Children == nil {
		return
	}
	frameDurationMs, ok := defaultFrameDurationMs(pc, seg, videoTrack)
	if !ok {
		pc.addWarning(cues.Start, "no DefaultDuration on Video track: CFR indexing skipped")
		return
	}
	tolerance := 1.0 / frameDurationMs

	var frames []int64
	var timecodes []uint64
	for _, h := range cues.Children.Multi("CuePoint") {
		cp := pc.get(h)
		if cp.Children == nil {
			continue
		}
		timeHandle, ok := cp.Children.Single("CueTime")
		if !ok {
			continue
		}
		cueTime := pc.get(timeHandle).Value.Uint()
		for _, posH := range cp.Children.Multi("CueTrackPositions") {
			pos := pc.get(posH)
			if pos.Children == nil {
				continue
			}
			trackHandle, ok := pos.Children.Single("CueTrack")
			if ok && pc.get(trackHandle).Value.Uint() != videoTrack {
				continue
			}
			scale := pc.timecodeScale
			if scale == 0 {
				scale = 1_000_000
			}
			cueTimeMs := float64(cueTime) * float64(scale) / 1e6
			frame := cueTimeMs / frameDurationMs
			rounded := math.Round(frame)
			if math.Abs(frame-rounded) > tolerance {
				pc.addWarning(cp.Start, "irregular time: CuePoint does not land on a CFR frame boundary")
				return
			}
			frames = append(frames, int64(rounded))
			timecodes = append(timecodes, cueTime)
		}
	}
	tree.Keyframes = append(tree.Keyframes, frames...)
	tree.Timecodes = append(tree.Timecodes, timecodes...)
}

// buildVFRIndex walks every Cluster's blocks directly, decoding the
// lacing-free block header (track number VINT, 16-bit signed relative
// timecode, flags byte) to find keyframes: a SimpleBlock is a keyframe
// when its flags byte has the 0x80 bit set, and a BlockGroup is a
// keyframe when it carries no ReferenceBlock (P/B frames always
// reference an earlier frame; I-frames never do).
func buildVFRIndex(pc *ParseContext, tree *Tree, seg *Element, videoTrack uint64) {
	if tree.TimecodeSpans == nil {
		tree.TimecodeSpans = map[int]Span{}
	}
	for _, ch := range seg.Children.Multi("Cluster") {
		cluster := pc.get(ch)
		if cluster.Children == nil {
			continue
		}
		timeHandle, ok := cluster.Children.Single("Timecode")
		if !ok {
			continue
		}
		clusterTC := pc.get(timeHandle).Value.Uint()
		var clusterTimecodes []uint64

		for _, bh := range cluster.Children.Multi("SimpleBlock") {
			block := pc.get(bh)
			track, relTC, flags, ok := decodeBlockHeader(block.Value.Bytes())
			if !ok || track != videoTrack {
				continue
			}
			tc := clusterTC + uint64(int64(relTC))
			clusterTimecodes = append(clusterTimecodes, tc)
			if flags&0x80 == 0 {
				continue
			}
			tree.Keyframes = append(tree.Keyframes, block.Start)
			tree.Timecodes = append(tree.Timecodes, tc)
		}
		for _, gh := range cluster.Children.Multi("BlockGroup") {
			group := pc.get(gh)
			if group.Children == nil {
				continue
			}
			blockHandle, ok := group.Children.Single("Block")
			if !ok {
				continue
			}
			block := pc.get(blockHandle)
			track, relTC, _, ok := decodeBlockHeader(block.Value.Bytes())
			if !ok || track != videoTrack {
				continue
			}
			tc := clusterTC + uint64(int64(relTC))
			clusterTimecodes = append(clusterTimecodes, tc)
			if len(group.Children.Multi("ReferenceBlock")) > 0 {
				continue // references an earlier frame: not a keyframe
			}
			tree.Keyframes = append(tree.Keyframes, group.Start)
			tree.Timecodes = append(tree.Timecodes, tc)
		}

		scale := pc.timecodeScale
		if scale == 0 {
			scale = 1_000_000 // Matroska's documented default, ns per tick
		}
		if span, ok := deriveSpan(clusterTimecodes, scale); ok {
			tree.TimecodeSpans[int(cluster.Handle)] = span
		}
	}
}

// deriveSpan estimates the constant-frame-interval span implied by one
// Cluster's block timecodes: the average inter-frame delta (converted
// from ticks to nanoseconds via scale), snapped to the nearest known
// frame rate via snapFPS.
func deriveSpan(timecodes []uint64, scale uint64) (Span, bool) {
	if len(timecodes) < 2 {
		return Span{}, false
	}
	first, last := timecodes[0], timecodes[0]
	var totalDelta uint64
	for i := 1; i < len(timecodes); i++ {
		if timecodes[i] < first {
			first = timecodes[i]
		}
		if timecodes[i] > last {
			last = timecodes[i]
		}
		totalDelta += timecodes[i] - timecodes[i-1]
	}
	avgDeltaTicks := float64(totalDelta) / float64(len(timecodes)-1)
	if avgDeltaTicks <= 0 {
		return Span{}, false
	}
	avgDeltaNs := avgDeltaTicks * float64(scale)
	fps := snapFPS(1e9 / avgDeltaNs)
	return Span{StartTimecode: first, EndTimecode: last, FPS: fps}, true
}

// decodeBlockHeader parses the un-laced prefix common to SimpleBlock and
// Block payloads: a VINT track number, a big-endian signed 16-bit
// relative timecode, and (SimpleBlock only, but harmless to read either
// way) a flags byte.
func decodeBlockHeader(data []byte) (trackNumber uint64, relativeTimecode int16, flags byte, ok bool) {
	if len(data) < 1 {
		return 0, 0, 0, false
	}
	width, err := vintWidth(data[0])
	if err != nil || len(data) < width+3 {
		return 0, 0, 0, false
	}
	mask := byte(0xFF >> uint(width))
	v := uint64(data[0] & mask)
	for i := 1; i < width; i++ {
		v = (v << 8) | uint64(data[i])
	}
	relativeTimecode = int16(uint16(data[width])<<8 | uint16(data[width+1]))
	flags = data[width+2]
	return v, relativeTimecode, flags, true
}
