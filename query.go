package mkv

import "sort"

// Find searches the subtree rooted at root for every element whose
// resolved schema path equals path, in document order. Path is relative
// to the owning root, e.g. "Segment.Tracks.TrackEntry".
func (t *Tree) Find(root handle, path string) []handle {
	var out []handle
	var walk func(h handle)
	walk = func(h handle) {
		e := t.Get(h)
		if e == nil {
			return
		}
		if e.Path == path {
			out = append(out, h)
		}
		if e.Children == nil {
			return
		}
		for _, name := range e.Children.Names() {
			if hh, ok := e.Children.Single(name); ok {
				walk(hh)
			}
			for _, hh := range e.Children.Multi(name) {
				walk(hh)
			}
		}
	}
	walk(root)
	return out
}

// FindOne is Find restricted to its first match, for the common case of
// a singular element (Info, a specific TrackEntry's Video child, ...).
func (t *Tree) FindOne(root handle, path string) (handle, bool) {
	matches := t.Find(root, path)
	if len(matches) == 0 {
		return noHandle, false
	}
	return matches[0], true
}

// Closest returns the index into Keyframes/Timecodes of the last
// keyframe at or before timecode, via binary search over the
// monotonically increasing Timecodes slice. It reports false if
// timecode precedes every indexed keyframe.
func (t *Tree) Closest(timecode uint64) (int, bool) {
	if len(t.Timecodes) == 0 {
		return 0, false
	}
	i := sort.Search(len(t.Timecodes), func(i int) bool {
		return t.Timecodes[i] > timecode
	})
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// SeekOffset returns the absolute byte offset buildSeekIndex recorded
// for elementID within the Segment seg, if its SeekHead named one.
func (t *Tree) SeekOffset(seg handle, elementID uint32) (int64, bool) {
	m, ok := t.seekIndex[seg]
	if !ok {
		return 0, false
	}
	off, ok := m[elementID]
	return off, ok
}
