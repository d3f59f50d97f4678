package mkv

import (
	"strings"

	"github.com/rs/zerolog"
)

// handle is an arena index, standing in for a pointer-chasing parent
// reference. The root of the arena has no parent; handle(-1) marks that.
type handle int

const noHandle handle = -1

// ControlReply is the observer's verdict on the element just decoded, per
// spec.md §5: Continue carries on normally, Skip sets the element's
// Skipped flag (its children, if any, have already been decoded and stay
// in the tree), Abort halts the walk entirely (the partial tree is still
// returned, alongside ErrAborted).
type ControlReply int

const (
	Continue ControlReply = iota
	Skip
	Abort
)

// ElementInfo is the read-only view of a decoded element handed to the
// caller's observer. It mirrors Element but never exposes the arena
// handle, so an observer cannot retain a reference that outlives Parse.
type ElementInfo struct {
	Path  string
	Name  string
	ID    uint32
	Type  Type
	Level int
	Start int64
	Size  int64 // payload length; for an unknown-size container, the length measured once its children were read
	Value Value
}

// ObserverFunc is invoked once per decoded element below the EBML header
// and Segment roots (the roots themselves are not reported), after the
// element's value and, for a container, all of its children have been
// decoded: children are reported before the container that holds them.
// Returning Skip only sets the element's Skipped flag; Abort stops the
// parse immediately.
type ObserverFunc func(info ElementInfo) ControlReply

// ProgressFunc is invoked periodically with the fraction of the source
// consumed so far, in [0,1].
type ProgressFunc func(fraction float64)

// Options controls a single Parse call, per spec.md §6 (external
// interfaces).
type Options struct {
	// Get restricts traversal to these dotted element paths (and their
	// ancestors); nil or empty means parse everything.
	Get []string

	// BinarySizeLimit caps how many bytes of a BINARY-typed element's
	// payload are read into memory; the rest is skipped but the element's
	// Size still reports the true length. 0 selects the default (16
	// bytes of every BINARY value, enough to inspect a CodecPrivate or
	// SegmentUID header); negative means unlimited.
	BinarySizeLimit int64

	// ExhaustiveSearch is accepted but has no effect: the Segment body is
	// always walked top to bottom, and no SeekHead-guided jump or tail
	// scan is ever made.
	ExhaustiveSearch bool

	// EntryCallback, if set, is the ObserverFunc invoked per element.
	EntryCallback ObserverFunc

	// KeepStreamOpen hands the ByteSource to the returned Tree instead of
	// releasing it: ParseFile then leaves the file it opened open, and
	// Tree.Close closes it. Without it, ParseFile closes the file before
	// returning. Parse itself never closes the source.
	KeepStreamOpen bool

	// ShowProgress, if set, receives periodic progress updates.
	ShowProgress ProgressFunc

	// Logger receives structured diagnostics; defaults to a no-op logger.
	Logger *zerolog.Logger

	// Mmap makes ParseFile open a memory-mapped ByteSource instead of a
	// buffered one; Parse, which is handed a ByteSource, ignores it.
	Mmap bool
}

func (o Options) binarySizeLimit() int64 {
	if o.BinarySizeLimit == 0 {
		return 16
	}
	return o.BinarySizeLimit
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return &noopLogger
}

// ParseContext threads all per-call mutable state through the element
// reader and traversal engine: the arena under construction, the running
// TimecodeScale (for retroactive Duration cooking), accumulated
// warnings, and whether the observer has requested an abort.
type ParseContext struct {
	opts   Options
	source ByteSource
	schema *schemaTable
	log    *zerolog.Logger

	arena []*Element

	timecodeScale uint64 // nanoseconds per tick; 0 until Info/TimecodeScale is seen
	pendingDurations []handle // elements whose Value needs rescaling once timecodeScale is known

	warnings []Warning
	aborted  bool

	wantPaths map[string]bool // Options.Get paths and their ancestors, nil if unrestricted
	wantExact []string        // the original Options.Get paths, for descendant matching
}

func newParseContext(source ByteSource, opts Options) *ParseContext {
	pc := &ParseContext{
		opts:   opts,
		source: source,
		schema: schemaData(),
		log:    opts.logger(),
	}
	if len(opts.Get) > 0 {
		pc.wantPaths = expandWantPaths(opts.Get)
		pc.wantExact = opts.Get
	}
	return pc
}

// expandWantPaths turns a flat Get list into the full ancestor-inclusive
// set the traversal engine checks at every level, so "Segment.Cues" also
// keeps "Segment" open for descent.
func expandWantPaths(paths []string) map[string]bool {
	want := make(map[string]bool, len(paths)*2)
	for _, p := range paths {
		want[p] = true
		for i := len(p) - 1; i >= 0; i-- {
			if p[i] == '.' {
				want[p[:i]] = true
			}
		}
	}
	return want
}

// wants reports whether path should be decoded: unrestricted parses,
// ancestors of a requested path stay open so traversal can reach it, an
// exact match is wanted, and anything nested under a fully-requested
// path is wanted too (requesting "Segment.Tracks" pulls in every
// TrackEntry beneath it, not just the container itself). A Segment's own
// SeekHead, with everything under it, is always wanted regardless of
// Get, since it's the index
// traversal itself consults (spec.md §4.D's SeekHead-directed read), not
// requested content.
func (pc *ParseContext) wants(path string) bool {
	if pc.wantPaths == nil {
		return true
	}
	if path == "Segment.SeekHead" || strings.HasPrefix(path, "Segment.SeekHead.") {
		return true
	}
	if pc.wantPaths[path] {
		return true
	}
	for _, p := range pc.wantExact {
		if len(path) > len(p) && path[:len(p)] == p && path[len(p)] == '.' {
			return true
		}
	}
	return false
}

func (pc *ParseContext) addWarning(offset int64, message string) {
	pc.warnings = append(pc.warnings, Warning{Offset: offset, Message: message})
	pc.log.Warn().Int64("offset", offset).Msg(message)
}

func (pc *ParseContext) alloc(e *Element) handle {
	h := handle(len(pc.arena))
	e.Handle = h
	pc.arena = append(pc.arena, e)
	return h
}

func (pc *ParseContext) get(h handle) *Element {
	if h == noHandle {
		return nil
	}
	return pc.arena[h]
}

var noopLogger = zerolog.Nop()
