package cromwell

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/mgeaghan/cpg-chip/internal/batch"
)

// Shape is the declared shape of a workflow output: a single value or a
// fixed-length array.
type Shape struct {
	array  bool
	length int
}

// Scalar declares a single-valued output.
func Scalar() Shape { return Shape{} }

// Array declares an array output of n elements.
func Array(n int) Shape { return Shape{array: true, length: n} }

// IsArray reports whether the shape is an array.
func (s Shape) IsArray() bool { return s.array }

// Len is the declared array length, or 1 for a scalar.
func (s Shape) Len() int {
	if !s.array {
		return 1
	}
	return s.length
}

// OutputType describes how one workflow output is collected.
type OutputType struct {
	Name  string
	Shape Shape
	// CopyFileIntoBatch copies the file the output names instead of writing
	// the output value itself.
	CopyFileIntoBatch bool
}

// Output holds the resource, or resources, for one workflow output.
type Output struct {
	Single *batch.Resource
	Array  []*batch.Resource
}

// Outputs maps workflow output names to their resources.
type Outputs map[string]Output

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// DeclareOutputs declares one resource on job per scalar output and one per
// element of each array output.
func DeclareOutputs(job *batch.Job, shapes map[string]Shape) (Outputs, error) {
	names := make([]string, 0, len(shapes))
	for name := range shapes {
		names = append(names, name)
	}
	sort.Strings(names)

	types := make([]OutputType, 0, len(names))
	for _, name := range names {
		types = append(types, OutputType{Name: name, Shape: shapes[name]})
	}
	if err := ValidateOutputs(types); err != nil {
		return nil, err
	}
	return declare(job, types), nil
}

// ValidateOutputs checks output names are set, unique and map to distinct
// files, and that arrays declare at least one element.
func ValidateOutputs(types []OutputType) error {
	seen := make(map[string]bool, len(types))
	bases := make(map[string]string, len(types))
	for _, ot := range types {
		if ot.Name == "" {
			return fmt.Errorf("%w: output name is empty", ErrInvalidRun)
		}
		if seen[ot.Name] {
			return fmt.Errorf("%w: output %q declared twice", ErrInvalidRun, ot.Name)
		}
		seen[ot.Name] = true
		base := resourceBase(ot.Name)
		if other, clash := bases[base]; clash {
			return fmt.Errorf("%w: outputs %q and %q map to the same file", ErrInvalidRun, other, ot.Name)
		}
		bases[base] = ot.Name
		if ot.Shape.IsArray() && ot.Shape.Len() < 1 {
			return fmt.Errorf("%w: output %q has array length %d", ErrInvalidRun, ot.Name, ot.Shape.Len())
		}
	}
	return nil
}

// declare adds the resources for already validated types to job.
func declare(job *batch.Job, types []OutputType) Outputs {
	out := make(Outputs, len(types))
	for _, ot := range types {
		base := resourceBase(ot.Name)
		if !ot.Shape.IsArray() {
			out[ot.Name] = Output{Single: job.Output(base)}
			continue
		}
		elems := make([]*batch.Resource, ot.Shape.Len())
		for i := range elems {
			elems[i] = job.Output(fmt.Sprintf("%s_%d", base, i))
		}
		out[ot.Name] = Output{Array: elems}
	}
	return out
}

func resourceBase(name string) string {
	return "out_" + unsafeName.ReplaceAllString(name, "_")
}
