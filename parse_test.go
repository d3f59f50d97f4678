package mkv

import (
	"encoding/binary"
	"math"
	"testing"
)

// encodeElement returns the bytes of one EBML element: identifier, a
// minimal-width known size, and payload.
func encodeElement(id uint32, payload []byte) []byte {
	out := append([]byte{}, EncodeVIntID(id, 0)...)
	out = append(out, EncodeVIntSize(uint64(len(payload)), 0)...)
	out = append(out, payload...)
	return out
}

func uintPayload(v uint64, width int) []byte {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

func floatPayload(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// buildMinimalFile assembles a tiny but structurally complete Matroska
// stream: an EBML header, and a Segment containing Info (Duration, then
// TimecodeScale, in that order so Duration cooking must be deferred) and
// a single-track Tracks section.
func buildMinimalFile() []byte {
	ebmlHeader := encodeElement(ebmlHeaderID, encodeElement(0x4282, []byte("matroska")))

	info := encodeElement(0x1549A966,
		append(
			encodeElement(0x4489, floatPayload(1000.0)),         // Duration, in ticks
			encodeElement(0x2AD7B1, uintPayload(1000000, 4))..., // TimecodeScale
		),
	)

	trackEntry := encodeElement(0xAE,
		append(append(
			encodeElement(0xD7, uintPayload(1, 1)), // TrackNumber
			encodeElement(0x83, uintPayload(1, 1))...), // TrackType
			encodeElement(0x86, []byte("V_TEST"))...), // CodecID
	)
	tracks := encodeElement(0x1654AE6B, trackEntry)

	segmentBody := append(append([]byte{}, info...), tracks...)
	segment := encodeElement(segmentID, segmentBody)

	return append(ebmlHeader, segment...)
}

func TestParseMinimalFile(t *testing.T) {
	data := buildMinimalFile()
	tree, err := Parse(NewMemSource(data), Options{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(tree.EBMLHeaders) != 1 {
		t.Fatalf("expected 1 EBML header, got %d", len(tree.EBMLHeaders))
	}
	if len(tree.Segments) != 1 {
		t.Fatalf("expected 1 Segment, got %d", len(tree.Segments))
	}

	seg := tree.Segments[0]
	infoHandles := tree.Find(seg, "Segment.Info")
	if len(infoHandles) != 1 {
		t.Fatalf("expected 1 Info element, got %d", len(infoHandles))
	}
	info := tree.Get(infoHandles[0])

	durHandle, ok := info.Children.Single("Duration")
	if !ok {
		t.Fatal("expected Duration child")
	}
	duration := tree.Get(durHandle)
	const wantNanos = 1000.0 * 1000000
	if got := duration.Value.Float(); got != wantNanos {
		t.Errorf("Duration not cooked: got %v, want %v", got, wantNanos)
	}

	tracks := tree.Find(seg, "Segment.Tracks.TrackEntry")
	if len(tracks) != 1 {
		t.Fatalf("expected 1 TrackEntry, got %d", len(tracks))
	}
	track := tree.Get(tracks[0])
	codecHandle, ok := track.Children.Single("CodecID")
	if !ok {
		t.Fatal("expected CodecID child")
	}
	if got := tree.Get(codecHandle).Value.Str(); got != "V_TEST" {
		t.Errorf("CodecID = %q, want V_TEST", got)
	}
}

func TestParseMissingRoot(t *testing.T) {
	_, err := Parse(NewMemSource([]byte{0x00, 0x01, 0x02, 0x03}), Options{})
	if err == nil {
		t.Fatal("expected ErrMissingRoot for garbage input")
	}
}

func TestParseGetFilter(t *testing.T) {
	data := buildMinimalFile()
	tree, err := Parse(NewMemSource(data), Options{Get: []string{"Segment.Tracks"}})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	seg := tree.Segments[0]
	if len(tree.Find(seg, "Segment.Info")) != 0 {
		t.Error("expected Info to be filtered out by Get")
	}
	if len(tree.Find(seg, "Segment.Tracks.TrackEntry")) != 1 {
		t.Error("expected TrackEntry to survive the Get filter")
	}
}

// TestParseGetFilterSeekHead covers spec.md's S4: get = ['Tags'] on a file
// whose SeekHead points at Tags pulls in exactly that element without
// pulling in the sibling Cluster the Get filter excludes.
func TestParseGetFilterSeekHead(t *testing.T) {
	tagsBody := encodeElement(0x7373, encodeElement(0x63C0, encodeElement(0x68CA, uintPayload(50, 1))))
	tags := encodeElement(0x1254C367, tagsBody)
	cluster := encodeElement(clusterID, encodeElement(0xE7, uintPayload(0, 1)))

	// SeekHead must precede the elements it indexes; SeekPosition is
	// relative to the Segment's first data byte, which is SeekHead itself
	// here. Its width (1 byte) doesn't depend on the value, so build the
	// structure once with a placeholder to learn that length, then splice
	// in the real offset.
	buildSeekHead := func(pos uint64) []byte {
		seekEntryTags := encodeElement(0x4DBB,
			append(
				encodeElement(0x53AB, uintBytesID(0x1254C367)),
				encodeElement(0x53AC, uintPayload(pos, 1))...,
			),
		)
		return encodeElement(0x114D9B74, seekEntryTags)
	}
	seekHead := buildSeekHead(uint64(len(buildSeekHead(0))))

	segmentBody := append(append(append([]byte{}, seekHead...), tags...), cluster...)
	segment := encodeElement(segmentID, segmentBody)
	data := append(encodeElement(ebmlHeaderID, encodeElement(0x4282, []byte("matroska"))), segment...)

	tree, err := Parse(NewMemSource(data), Options{Get: []string{"Segment.Tags"}})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	seg := tree.Segments[0]
	if len(tree.Find(seg, "Segment.Tags")) != 1 {
		t.Error("expected Tags to survive the Get filter")
	}
	if len(tree.Find(seg, "Segment.Cluster")) != 0 {
		t.Error("expected Cluster to be filtered out by get = ['Tags']")
	}
	segElem := tree.Get(seg)
	wantOffset := segElem.DataStart + int64(len(seekHead))
	if off, ok := tree.SeekOffset(seg, 0x1254C367); !ok || off != wantOffset {
		t.Errorf("SeekOffset(Tags) = %d, %v, want %d, true", off, ok, wantOffset)
	}
}

// uintBytesID encodes an EBML identifier (marker bit included) as the
// raw big-endian bytes a SeekID payload carries.
func uintBytesID(id uint32) []byte {
	switch {
	case id <= 0xFF:
		return []byte{byte(id)}
	case id <= 0xFFFF:
		return []byte{byte(id >> 8), byte(id)}
	case id <= 0xFFFFFF:
		return []byte{byte(id >> 16), byte(id >> 8), byte(id)}
	default:
		return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	}
}

// TestParseBinaryTruncation covers spec.md's S5: with BinarySizeLimit=16,
// an AttachedFile's FileData keeps its true Size in metadata but only 16
// payload bytes are actually read.
func TestParseBinaryTruncation(t *testing.T) {
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	fileData := encodeElement(0x465C, payload)
	attached := encodeElement(0x61A7, fileData)
	attachments := encodeElement(0x1941A469, attached)
	segment := encodeElement(segmentID, attachments)
	data := append(encodeElement(ebmlHeaderID, encodeElement(0x4282, []byte("matroska"))), segment...)

	tree, err := Parse(NewMemSource(data), Options{BinarySizeLimit: 16})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	seg := tree.Segments[0]
	files := tree.Find(seg, "Segment.Attachments.AttachedFile.FileData")
	if len(files) != 1 {
		t.Fatalf("expected 1 FileData element, got %d", len(files))
	}
	elem := tree.Get(files[0])
	if elem.Size != 1024 {
		t.Errorf("Size = %d, want 1024 (true payload length)", elem.Size)
	}
	if got := len(elem.Value.Bytes()); got != 16 {
		t.Errorf("retained %d payload bytes, want 16", got)
	}
}

func TestParseObserverAbort(t *testing.T) {
	data := buildMinimalFile()
	seen := 0
	_, err := Parse(NewMemSource(data), Options{
		EntryCallback: func(info ElementInfo) ControlReply {
			seen++
			if info.Path == "Segment.Info" {
				return Abort
			}
			return Continue
		},
	})
	if err == nil {
		t.Fatal("expected an error when the observer aborts")
	}
	if seen == 0 {
		t.Error("expected the observer to be invoked at least once")
	}
}
