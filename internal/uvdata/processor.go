package uvdata

import (
	"context"
	"fmt"
	"strings"
)

// Processor turns a validated FileSet of one format into a Descriptor and
// a Reader.
type Processor interface {
	Name() string
	// CanHandle reports whether the processor understands the set's kinds.
	CanHandle(files *FileSet) bool
	// Validate checks format-specific rules beyond FileSet validation.
	Validate(files *FileSet) error
	// Describe reads metadata only and builds the descriptor.
	Describe(ctx context.Context, files *FileSet) (*Descriptor, error)
	// Open returns a reader over a descriptor this processor produced.
	Open(desc *Descriptor) (Reader, error)
}

// DefaultProcessors returns the processors registered out of the box.
func DefaultProcessors() []Processor {
	return []Processor{NewGPUBoxProcessor()}
}

// selectProcessor returns the first processor that can handle files.
func selectProcessor(processors []Processor, files *FileSet) (Processor, error) {
	for _, p := range processors {
		if p.CanHandle(files) {
			return p, nil
		}
	}
	return nil, descriptorError("", fmt.Sprintf("no processor can handle file kinds [%s]",
		strings.Join(files.Kinds(), ", ")), nil)
}
