package reconciler

import "context"

// Attributes a Document stores on channel nodes.
const (
	// KeyAttr holds the node key handed out by Scan.
	KeyAttr = "data-chanlight-key"
	// ColorAttr holds the background color last applied to the node. Read
	// back from the style, the color would come out as rgb().
	ColorAttr = "data-chanlight-color"
)

// Channel is one channel row as seen by a scan.
type Channel struct {
	// Key addresses the node in a later Apply. Stable for the node's
	// lifetime in the document.
	Key string
	// Name is the raw name attribute, untrimmed.
	Name string
	// Marked reports whether the node carries the marker class.
	Marked bool
	// Color is the background last applied by the reconciler, empty when
	// unmarked.
	Color string
}

// Patch is one style delta. A highlight patch sets the background, the
// corner radius, the marker class and the label text color; a clear patch
// resets all four.
type Patch struct {
	Key   string
	Color string
	Clear bool
}

// Batch summarises one batch of child-list mutations.
type Batch struct {
	Added   int
	Removed int
}

// Document is the host page as the reconciler sees it. Implementations own
// the selector assumptions about the page's markup.
type Document interface {
	// HasContainer reports whether the channel-list container is mounted.
	HasContainer(ctx context.Context) (bool, error)
	// Scan lists channel rows in DOM order.
	Scan(ctx context.Context) ([]Channel, error)
	// Apply performs patches. Keys of nodes that left the document are
	// skipped.
	Apply(ctx context.Context, patches []Patch) error
	// Observe calls fn for every batch of child-list mutations in the
	// container subtree until stop is called or ctx ends.
	Observe(ctx context.Context, fn func(Batch)) (stop func(), err error)
}
