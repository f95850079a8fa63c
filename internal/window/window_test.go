package window_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/flexalign/internal/timeline"
	"github.com/MrWong99/flexalign/internal/window"
)

func vad(spans ...[2]float64) []timeline.Segment {
	out := make([]timeline.Segment, len(spans))
	for i, s := range spans {
		out[i] = timeline.Segment{ID: "v", RecordingID: "rec", Start: s[0], End: s[1]}
	}
	return out
}

func TestSlide(t *testing.T) {
	t.Parallel()

	segs := vad([2]float64{1, 50}, [2]float64{52, 120}, [2]float64{125, 190}, [2]float64{195, 260}, [2]float64{270, 300})

	tests := []struct {
		name    string
		size    float64
		overlap float64
		useVAD  bool
		want    []timeline.Segment
	}{
		{
			name: "vad", size: 180, overlap: 30, useVAD: true,
			want: []timeline.Segment{
				{ID: "rec_seg0000", RecordingID: "rec", Start: 1, End: 190},
				{ID: "rec_seg0001", RecordingID: "rec", Start: 160, End: 300},
			},
		},
		{
			name: "fixed", size: 180, overlap: 30,
			want: []timeline.Segment{
				{ID: "rec_seg0000", RecordingID: "rec", Start: 0, End: 180},
				{ID: "rec_seg0001", RecordingID: "rec", Start: 150, End: 300},
			},
		},
		{
			name: "fixed short windows", size: 100, overlap: 0,
			want: []timeline.Segment{
				{ID: "rec_seg0000", RecordingID: "rec", Start: 0, End: 100},
				{ID: "rec_seg0001", RecordingID: "rec", Start: 100, End: 200},
				{ID: "rec_seg0002", RecordingID: "rec", Start: 200, End: 300},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := window.Slide(segs, tc.size, tc.overlap, tc.useVAD)
			if err != nil {
				t.Fatalf("Slide: %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Errorf("windows = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSlide_Degenerate(t *testing.T) {
	t.Parallel()

	if got, err := window.Slide(nil, 180, 30, true); err != nil || got != nil {
		t.Errorf("Slide(nil) = %v, %v", got, err)
	}
	for _, bad := range [][2]float64{{0, 0}, {30, 30}, {30, -1}} {
		if _, err := window.Slide(vad([2]float64{0, 1}), bad[0], bad[1], false); !errors.Is(err, window.ErrInvalidSize) {
			t.Errorf("Slide(size %g, overlap %g) err = %v, want ErrInvalidSize", bad[0], bad[1], err)
		}
	}
}
