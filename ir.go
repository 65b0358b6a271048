package dronedet

// The intermediate annotation metadata representation.

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Keys for known annotation attributes.
const (
	Truncation = "Truncation" // Type int. 0 = none, 1 = partial.
	Occlusion  = "Occlusion"  // Type int. 0 = none, 1 = partial, 2 = heavy.
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Attributes map[string]interface{} // Additional attributes of this annotation.
	Class      int                    // Zero-based class index.
	Coords     [4]float64             // Absolute x1, y1, x2, y2 offsets from the top-left corner.
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// clip restricts the bounding box to [0, width] x [0, height].
func (a *Annotation) clip(width, height float64) {
	limits := [4]float64{width, height, width, height}
	for i := range a.Coords {
		a.Coords[i] = math.Max(0, math.Min(a.Coords[i], limits[i]))
	}
}

// AnnotatedFile is the intermediate representation of file metadata.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations.
	FilePath    string       // The annotated image file.
	Width       int          // Image width in pixels.
	Height      int          // Image height in pixels.
}

// scaleCoords scales all Annotations.Coords by the given scale factors.
func (f *AnnotatedFile) scaleCoords(width, height float64) {
	for i := range f.Annotations {
		for j := 0; j < 4; j++ {
			if j&1 == 0 {
				f.Annotations[i].Coords[j] *= width
			} else {
				f.Annotations[i].Coords[j] *= height
			}
		}
	}
}

// FilterOptions selects the annotations kept by AnnotatedFile.Filter. Zero values disable the
// respective filter.
type FilterOptions struct {
	Classes        []int   // Classes to keep (after class mapping); empty keeps all.
	MinBboxWidth   float64 // Min. bounding box width in pixels.
	MinBboxHeight  float64 // Min. bounding box height in pixels.
	MinAspectRatio float64 // Min. width/height.
	MaxAspectRatio float64 // Max. width/height.
	MaxTruncation  *int    // Max. Truncation attribute; nil disables.
	MaxOcclusion   *int    // Max. Occlusion attribute; nil disables.
}

// IsZero reports whether no filter is enabled.
func (o FilterOptions) IsZero() bool {
	return len(o.Classes) == 0 && o.MinBboxWidth == 0 && o.MinBboxHeight == 0 &&
		o.MinAspectRatio == 0 && o.MaxAspectRatio == 0 && o.MaxTruncation == nil &&
		o.MaxOcclusion == nil
}

// keep reports whether a passes all filters.
func (o FilterOptions) keep(a Annotation) bool {
	width := a.Width()
	height := a.Height()
	if o.MinBboxWidth > width || o.MinBboxHeight > height {
		return false
	}

	// The aspect ratio of width/height must be in [MinAspectRatio, MaxAspectRatio].
	if o.MinAspectRatio != 0 || o.MaxAspectRatio != 0 {
		if height == 0 {
			return false
		}
		ratio := width / height
		if (o.MinAspectRatio != 0 && ratio < o.MinAspectRatio) ||
			(o.MaxAspectRatio != 0 && ratio > o.MaxAspectRatio) {
			return false
		}
	}

	if !attrAtMost(a, Truncation, o.MaxTruncation) || !attrAtMost(a, Occlusion, o.MaxOcclusion) {
		return false
	}

	if len(o.Classes) > 0 {
		for _, c := range o.Classes {
			if c == a.Class {
				return true
			}
		}
		return false
	}

	return true
}

// attrAtMost reports whether the int attribute key of a is at most limit. Annotations without the
// attribute pass.
func attrAtMost(a Annotation, key string, limit *int) bool {
	if limit == nil {
		return true
	}
	v, ok := a.Attributes[key].(int)
	return !ok || v <= *limit
}

// Filter removes the annotations that do not pass opts, preserving the order of the remaining
// ones. Returns the number of removed annotations.
func (f *AnnotatedFile) Filter(opts FilterOptions) int {
	if opts.IsZero() {
		return 0
	}

	kept := f.Annotations[:0]
	for _, a := range f.Annotations {
		if opts.keep(a) {
			kept = append(kept, a)
		}
	}
	removed := len(f.Annotations) - len(kept)
	f.Annotations = kept
	return removed
}

// ClassMapping replaces class indices. Classes mapped to a negative value are dropped.
type ClassMapping map[int]int

// ParseClassMapping parses a list of old=new class index pairs.
func ParseClassMapping(mappings []string) (ClassMapping, error) {
	if len(mappings) == 0 {
		return nil, nil
	}

	m := make(ClassMapping, len(mappings))
	for _, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 {
			return nil, fmt.Errorf("invalid mapping: %v", v)
		}
		from, err := strconv.Atoi(strings.TrimSpace(a[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid mapping %q: %w", v, err)
		}
		to, err := strconv.Atoi(strings.TrimSpace(a[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid mapping %q: %w", v, err)
		}
		m[from] = to
	}
	return m, nil
}

// Apply rewrites the classes of all annotations in f. Returns the number of changed and dropped
// annotations.
func (m ClassMapping) Apply(f *AnnotatedFile) (changed, dropped int) {
	if len(m) == 0 {
		return 0, 0
	}

	kept := f.Annotations[:0]
	for _, a := range f.Annotations {
		if to, ok := m[a.Class]; ok {
			if to < 0 {
				dropped++
				continue
			}
			if to != a.Class {
				changed++
			}
			a.Class = to
		}
		kept = append(kept, a)
	}
	f.Annotations = kept
	return changed, dropped
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// RequireLabels removes the files without any annotation.
func (data *AnnotatedFiles) RequireLabels() {
	kept := (*data)[:0]
	for _, f := range *data {
		if len(f.Annotations) > 0 {
			kept = append(kept, f)
		}
	}
	log.Printf("Dropped %d files without labels", len(*data)-len(kept))
	*data = kept
}

// Split randomly splits the data into multiple datasets.
//
// The cumulativeSplits specify the cumulative distribution according to which the data is split
// into the returned datasets. Its last value must be 100. A zero seed uses the current time.
func (data AnnotatedFiles) Split(cumulativeSplits []int, seed int64) ([]AnnotatedFiles, error) {
	if len(cumulativeSplits) == 0 || cumulativeSplits[len(cumulativeSplits)-1] != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

	// Allocate slightly more than the expected size for each dataset.
	datasets := make([]AnnotatedFiles, len(cumulativeSplits))
	var sum int
	for i, s := range cumulativeSplits {
		if s < sum {
			return nil, fmt.Errorf("the cumulative split percentages must not decrease")
		}
		datasets[i] = make(AnnotatedFiles, 0, int(1.05*float64(s-sum)/100*float64(len(data))))
		sum = s
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

outer:
	for _, d := range data {
		r := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if r < s {
				datasets[i] = append(datasets[i], d)
				continue outer
			}
		}
	}

	return datasets, nil
}

// ParseSplits parses split percentages and returns them as cumulative values. They must add up
// to 100.
func ParseSplits(splits []string) ([]int, error) {
	cumulative := make([]int, 0, len(splits))
	var sum int
	for _, v := range splits {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || i < 0 || i > 100 {
			return nil, fmt.Errorf("invalid split value %q", v)
		}
		sum += i
		cumulative = append(cumulative, sum)
	}
	if sum != 100 {
		return nil, fmt.Errorf("the split values must add up to 100, got %d", sum)
	}
	return cumulative, nil
}
