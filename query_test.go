package mkv

import "testing"

func TestTreeFindAndClosest(t *testing.T) {
	data := buildMinimalFile()
	tree, err := Parse(NewMemSource(data), Options{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	seg := tree.Segments[0]

	if _, ok := tree.FindOne(seg, "Segment.Info"); !ok {
		t.Fatal("expected to find Segment.Info")
	}
	if _, ok := tree.FindOne(seg, "Segment.DoesNotExist"); ok {
		t.Fatal("did not expect to find a nonexistent path")
	}

	tree.Timecodes = []uint64{100, 200, 300}
	tree.Keyframes = []int64{1, 2, 3}

	if i, ok := tree.Closest(250); !ok || i != 1 {
		t.Errorf("Closest(250) = (%d,%v), want (1,true)", i, ok)
	}
	if i, ok := tree.Closest(300); !ok || i != 2 {
		t.Errorf("Closest(300) = (%d,%v), want (2,true)", i, ok)
	}
	if _, ok := tree.Closest(50); ok {
		t.Error("Closest(50) should report false: precedes every keyframe")
	}
}
