package models

// Folder is one entry of the depth-first flattened mailbox hierarchy.
// Parents the server did not list are synthesized with NoSelect set.
type Folder struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Delimiter  string `json:"delimiter"`
	Depth      int    `json:"depth"`
	SpecialUse string `json:"specialUse"`
	NoSelect   bool   `json:"noSelect"`
}
