package dronedet

// YOLO dataset descriptors and converted dataset directories.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Dataset is the YAML dataset descriptor read by the detection framework.
type Dataset struct {
	Path  string  `yaml:"path"`
	Train string  `yaml:"train,omitempty"`
	Val   string  `yaml:"val,omitempty"`
	Test  string  `yaml:"test,omitempty"`
	Names NameMap `yaml:"names"`
}

// maxClassIndex bounds the class indices accepted in a descriptor.
const maxClassIndex = 9999

// NameMap maps class indices to class names. In YAML, both the mapping form {0: a, 1: b} and the
// list form [a, b] are accepted.
type NameMap map[int]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *NameMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*m = make(NameMap, len(names))
		for i, n := range names {
			(*m)[i] = n
		}
		return nil
	}

	var names map[int]string
	if err := value.Decode(&names); err != nil {
		return err
	}
	for id := range names {
		if id < 0 || id > maxClassIndex {
			return fmt.Errorf("class index %d out of range [0, %d]", id, maxClassIndex)
		}
	}
	*m = names
	return nil
}

// NewVisDroneDataset returns the descriptor for a VisDrone root containing the train, val and
// test-dev split directories, in that order. Missing splits are left empty.
func NewVisDroneDataset(root string, splits []string) Dataset {
	d := Dataset{Path: root, Names: make(NameMap, len(VisDroneClasses))}
	for i, name := range VisDroneClasses {
		d.Names[i] = name
	}

	targets := []*string{&d.Train, &d.Val, &d.Test}
	for i, s := range splits {
		if i >= len(targets) {
			break
		}
		*targets[i] = filepath.ToSlash(filepath.Join(s, ImagesDir))
	}
	return d
}

// ClassNames returns the class names ordered by class index. Gaps are filled with the index.
// Indices outside [0, 9999] are ignored.
func (d Dataset) ClassNames() []string {
	last := -1
	for id := range d.Names {
		if id > last && id <= maxClassIndex {
			last = id
		}
	}
	if last < 0 {
		return nil
	}

	names := make([]string, last+1)
	for i := range names {
		if n, ok := d.Names[i]; ok {
			names[i] = n
		} else {
			names[i] = fmt.Sprint(i)
		}
	}
	return names
}

// WriteDataset writes the descriptor to path.
func WriteDataset(path string, d Dataset) error {
	enc, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return nil
}

// LoadDataset reads the descriptor at path.
func LoadDataset(path string) (Dataset, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, err
	}
	var d Dataset
	if err := yaml.Unmarshal(enc, &d); err != nil {
		return Dataset{}, fmt.Errorf("failed to parse dataset descriptor %q: %w", path, err)
	}
	return d, nil
}

// FromYOLODir reads the label files in dir/labels together with the sizes of the matching images
// in dir/images. Label files that cannot be read are skipped. If includeUnlabelled is true, images
// without a label file are added with no annotations.
func FromYOLODir(dir string, includeUnlabelled bool) (AnnotatedFiles, error) {
	labelFiles, err := filesByExtInDir(filepath.Join(dir, LabelsDir), ".txt")
	if err != nil {
		return nil, err
	}
	images, err := indexImages(filepath.Join(dir, ImagesDir))
	if err != nil {
		return nil, err
	}
	log.Printf("Parsing YOLO labels for %d files", len(labelFiles))

	data := make(AnnotatedFiles, 0, len(images))
	labelled := make(map[string]bool, len(labelFiles))
	for _, labelPath := range labelFiles {
		imagePath, err := images.lookup(labelPath)
		if err != nil {
			log.Printf("Skipping %q: %v", labelPath, err)
			continue
		}
		f, err := FromYOLO(labelPath, imagePath)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", labelPath, err)
			continue
		}
		labelled[imagePath] = true
		data = append(data, f)
	}

	if includeUnlabelled {
		paths := make([]string, 0, len(images))
		for _, p := range images {
			if !labelled[p] {
				paths = append(paths, p)
			}
		}
		sort.Strings(paths)
		for _, p := range paths {
			data = append(data, AnnotatedFile{FilePath: p})
		}
	}

	return data, nil
}

// WriteImageList writes the image paths of data to path, one per line. Such lists are accepted in
// place of image directories in a dataset descriptor.
func WriteImageList(path string, data AnnotatedFiles) error {
	lines := make([]string, len(data))
	for i, f := range data {
		abs, err := filepath.Abs(f.FilePath)
		if err != nil {
			return err
		}
		lines[i] = filepath.ToSlash(abs)
	}
	if err := writeLines(path, lines); err != nil {
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return nil
}
