package mkv

import "testing"

func TestSnapFPS(t *testing.T) {
	cases := []struct {
		raw  float64
		want float64
	}{
		{24.0, 24},
		{23.976023976023978, 24 / 1.001},
		{29.97002997002997, 30 / 1.001},
		{25.0, 25},
		{17.3, 17.3}, // nothing close enough: unchanged
	}
	for _, c := range cases {
		got := snapFPS(c.raw)
		if diff := got - c.want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("snapFPS(%v) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestApplyPostProcessingDurationBeforeScale(t *testing.T) {
	pc := &ParseContext{schema: schemaData()}
	durElem := &Element{Name: "Duration", Value: floatValue(500.0)}
	pc.alloc(durElem)
	applyPostProcessing(pc, durElem)

	if durElem.Value.Float() != 500.0 {
		t.Fatalf("Duration should be unchanged before TimecodeScale arrives, got %v", durElem.Value.Float())
	}
	if len(pc.pendingDurations) != 1 {
		t.Fatalf("expected Duration to be queued, got %d pending", len(pc.pendingDurations))
	}

	scaleElem := &Element{Name: "TimecodeScale", Value: uintValue(1000000)}
	pc.alloc(scaleElem)
	applyPostProcessing(pc, scaleElem)

	if got, want := durElem.Value.Float(), 500.0*1000000; got != want {
		t.Errorf("Duration not cooked after TimecodeScale: got %v, want %v", got, want)
	}
	if len(pc.pendingDurations) != 0 {
		t.Errorf("pendingDurations should be drained, got %d", len(pc.pendingDurations))
	}
}

func TestApplyPostProcessingDefaultDuration(t *testing.T) {
	pc := &ParseContext{schema: schemaData()}
	elem := &Element{Name: "DefaultDuration", Value: uintValue(1000000000 / 24)}
	applyPostProcessing(pc, elem)
	if got := elem.Value.Float(); got < 23.9 || got > 24.1 {
		t.Errorf("expected DefaultDuration to snap near 24fps, got %v", got)
	}
}
