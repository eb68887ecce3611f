// Package calibration measures matcher accuracy on a labeled face dataset
// and picks the operating threshold the kiosk deploys.
package calibration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// ReferenceIndex is the sample index of each person's canonical image.
const ReferenceIndex = 1

var sampleName = regexp.MustCompile(`^(\d+)_(\d+)\.(?i:jpg|jpeg|png|bmp)$`)

type Sample struct {
	PersonID int
	Index    int
	Path     string
}

// Dataset maps person IDs to their samples ordered by index.
type Dataset struct {
	Dir     string
	Persons map[int][]Sample
}

// LoadDataset scans dir for files named {personId}_{sampleIndex}.{ext}.
// Other files and subdirectories are ignored. When two files share a
// person and index, the first in name order wins.
func LoadDataset(dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	ds := &Dataset{Dir: dir, Persons: make(map[int][]Sample)}
	seen := make(map[[2]int]bool)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := sampleName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		person, err1 := strconv.Atoi(m[1])
		index, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		key := [2]int{person, index}
		if seen[key] {
			continue
		}
		seen[key] = true

		ds.Persons[person] = append(ds.Persons[person], Sample{
			PersonID: person,
			Index:    index,
			Path:     filepath.Join(dir, entry.Name()),
		})
	}

	for person := range ds.Persons {
		samples := ds.Persons[person]
		sort.Slice(samples, func(i, j int) bool { return samples[i].Index < samples[j].Index })
	}

	if len(ds.Persons) == 0 {
		return nil, fmt.Errorf("dataset %s: no samples found", dir)
	}
	return ds, nil
}

// PersonIDs returns every person in ascending order.
func (d *Dataset) PersonIDs() []int {
	ids := make([]int, 0, len(d.Persons))
	for id := range d.Persons {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Reference returns the canonical sample for person.
func (d *Dataset) Reference(person int) (Sample, bool) {
	for _, s := range d.Persons[person] {
		if s.Index == ReferenceIndex {
			return s, true
		}
	}
	return Sample{}, false
}

// Probes returns all non-canonical samples ordered by person then index.
func (d *Dataset) Probes() []Sample {
	var probes []Sample
	for _, id := range d.PersonIDs() {
		for _, s := range d.Persons[id] {
			if s.Index != ReferenceIndex {
				probes = append(probes, s)
			}
		}
	}
	return probes
}

// Size counts every sample.
func (d *Dataset) Size() int {
	n := 0
	for _, samples := range d.Persons {
		n += len(samples)
	}
	return n
}
