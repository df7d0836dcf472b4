// Package clr provides high-level access to ECMA-335 CLI metadata: reading
// managed PE images or raw metadata roots, and building new metadata.
package clr

// ModuleInfo contains basic information about a metadata image.
type ModuleInfo struct {
	Version  string         `json:"version"`
	Module   string         `json:"module,omitempty"`
	MVID     string         `json:"mvid,omitempty"`
	Assembly *AssemblyInfo  `json:"assembly,omitempty"`
	Streams  []StreamInfo   `json:"streams"`
	Heaps    HeapInfo       `json:"heaps"`
	Tables   map[string]int `json:"tables"`
}

// AssemblyInfo describes the Assembly row.
type AssemblyInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Culture string `json:"culture,omitempty"`
}

// StreamInfo represents one entry of the stream directory.
type StreamInfo struct {
	Name   string `json:"name"`
	Offset uint32 `json:"offset"`
	Size   uint32 `json:"size"`
}

// HeapInfo holds heap sizes in bytes.
type HeapInfo struct {
	Strings     int `json:"strings"`
	Blob        int `json:"blob"`
	GUID        int `json:"guid"`
	UserStrings int `json:"user_strings"`
}

// TableSummary describes a present table.
type TableSummary struct {
	Index   uint8  `json:"index"`
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	RowSize int    `json:"row_size"`
	Sorted  bool   `json:"sorted"`
	Big     bool   `json:"big"`
}

// TypeInfo represents a TypeDef row with its name resolved.
type TypeInfo struct {
	Token         string   `json:"token"`
	Namespace     string   `json:"namespace,omitempty"`
	Name          string   `json:"name"`
	FullName      string   `json:"full_name"`
	Flags         uint32   `json:"flags"`
	Extends       string   `json:"extends,omitempty"`
	Fields        int      `json:"fields"`
	Methods       int      `json:"methods"`
	Enclosing     string   `json:"enclosing,omitempty"`
	Interfaces    []string `json:"interfaces,omitempty"`
	GenericParams []string `json:"generic_params,omitempty"`
}

// Row is one decoded table row. Tokens are rendered in hex, heap
// references are resolved to their values.
type Row struct {
	Token string `json:"token"`
	Cells []Cell `json:"cells"`
}

// Cell is one column of a Row.
type Cell struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
