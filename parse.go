package mkv

// Parse reads source end to end, building a Tree of every EBML header
// and Segment it contains. It and ParseFile, which opens a file and calls
// it, are the package's external entry points (spec.md §6): everything
// else — schema resolution, traversal
// policy, value cooking, keyframe indexing — happens underneath it.
func Parse(source ByteSource, opts Options) (*Tree, error) {
	pc := newParseContext(source, opts)
	tree := &Tree{source: source, keepStreamOpen: opts.KeepStreamOpen}

	pos, _, err := findRoot(pc)
	if err != nil {
		return tree, err
	}

	size := source.Size()
	for pos < size {
		cur := newCursor(source, pos)
		save := cur.pos
		id, _, idErr := cur.readIdentifier()
		if idErr != nil {
			pos++
			continue
		}
		if id != ebmlHeaderID && id != segmentID {
			pos = save + 1
			continue
		}
		cur.pos = save

		elem, elemErr := readElement(pc, cur, nil, nil)
		if elemErr != nil {
			tree.arena = pc.arena
			tree.Warnings = pc.warnings
			if pc.aborted {
				if elem != nil {
					switch id {
					case ebmlHeaderID:
						tree.EBMLHeaders = append(tree.EBMLHeaders, elem.Handle)
					case segmentID:
						tree.Segments = append(tree.Segments, elem.Handle)
					}
				}
				return tree, ErrAborted
			}
			return tree, elemErr
		}
		switch id {
		case ebmlHeaderID:
			tree.EBMLHeaders = append(tree.EBMLHeaders, elem.Handle)
		case segmentID:
			tree.Segments = append(tree.Segments, elem.Handle)
			traverseSegment(pc, tree, elem)
			buildIndex(pc, tree, elem)
		}
		pos = cur.pos

		if opts.ShowProgress != nil && size > 0 {
			opts.ShowProgress(float64(pos) / float64(size))
		}
	}

	tree.arena = pc.arena
	tree.Warnings = pc.warnings
	if len(tree.EBMLHeaders) == 0 && len(tree.Segments) == 0 {
		return tree, ErrMissingRoot
	}
	return tree, nil
}

// ParseFile opens name (buffered by default, memory-mapped if
// opts.Mmap is set), parses it, and closes the source afterwards unless
// opts.KeepStreamOpen is set.
func ParseFile(name string, opts Options) (*Tree, error) {
	var source ByteSource
	var err error
	if opts.Mmap {
		source, err = OpenMmap(name)
	} else {
		source, err = OpenFile(name)
	}
	if err != nil {
		return nil, err
	}
	tree, parseErr := Parse(source, opts)
	if !opts.KeepStreamOpen {
		source.Close()
	}
	return tree, parseErr
}
