package hierarchy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/schemabounce/waterfall-bridge/types"
)

// ErrCycle is matched by every CycleError.
var ErrCycle = errors.New("circular reference detected in tree structure")

// CycleError reports that a collection's parent pointers form a cycle.
type CycleError struct {
	// Path lists the identities on one cycle, closing with the first
	// identity repeated. It may be empty if no path could be reconstructed.
	Path []string
	// Unsorted is the number of records that could not be ordered.
	Unsorted int
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s (%d records unsorted)", ErrCycle.Error(), e.Unsorted)
	}
	return fmt.Sprintf("%s: %s", ErrCycle.Error(), strings.Join(e.Path, " -> "))
}

// Is lets errors.Is(err, ErrCycle) match.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// TopologicalSort orders a flat collection so that every record appears after
// its parent, using in-degree counting over parent pointers.
//
// Records sharing an identity are emitted together. Unlike strict Kahn
// counting, a parent pointer to an identity outside the collection adds no
// in-degree: the record is treated as a root instead of being reported as
// unsortable, since its parent already exists elsewhere. Records without any identity can
// be nobody's parent; they keep their relative order and are placed after all
// identified records. A cycle among identified records fails with a
// *CycleError.
func TopologicalSort(records types.Collection, parentField string) (types.Collection, error) {
	if parentField == "" {
		parentField = types.FieldParentID
	}

	var (
		order        []string // identities in first-seen order
		byID         = make(map[string][]types.Record)
		inDegree     = make(map[string]int)
		children     = make(map[string][]string)
		unidentified types.Collection
	)

	for _, record := range records {
		id := record.Identity()
		if id == "" {
			unidentified = append(unidentified, record)
			continue
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
			inDegree[id] = 0
		}
		byID[id] = append(byID[id], record)
	}

	identified := len(records) - len(unidentified)

	for _, id := range order {
		for _, record := range byID[id] {
			parentID := record.Ref(parentField)
			if parentID == "" {
				continue
			}
			if _, known := byID[parentID]; !known {
				continue
			}
			children[parentID] = append(children[parentID], id)
			inDegree[id]++
		}
	}

	queue := make([]string, 0, len(order))
	for _, id := range order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make(types.Collection, 0, len(records))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		sorted = append(sorted, byID[current]...)
		for _, child := range children[current] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(sorted) < identified {
		return nil, &CycleError{
			Path:     DetectCycle(records, parentField),
			Unsorted: identified - len(sorted),
		}
	}

	return append(sorted, unidentified...), nil
}

// Unidentified counts the records that carry neither _original_id nor id.
func Unidentified(records types.Collection) int {
	n := 0
	for _, record := range records {
		if record.Identity() == "" {
			n++
		}
	}
	return n
}
