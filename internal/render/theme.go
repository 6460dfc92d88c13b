package render

// Theme holds colors for graph and report rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by provenance category.
	EdgeResolved   string // callee name recovered from the symbol table
	EdgeUnresolved string // callee index with no recovered name
	EdgeTopLevel   string // call made outside any function
	EdgeTaken      string // conditional branch taken
	EdgeFallthru   string // conditional branch not taken
	EdgePlain      string // unconditional flow

	// Node accents.
	EntryBorder  string // entry points and CFG entry blocks
	ExitFill     string // blocks ending in a function exit
	LowFill      string // functions with low-confidence names
	ExternalText string // callees with no function body in the file
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeResolved:   "#424242", // dark gray
	EdgeUnresolved: "#FC3D21", // NASA red
	EdgeTopLevel:   "#00695C", // teal
	EdgeTaken:      "#0B3D91", // NASA blue
	EdgeFallthru:   "#FC3D21",
	EdgePlain:      "#424242",

	EntryBorder:  "#0B3D91",
	ExitFill:     "#ECEFF1", // blue-gray 50
	LowFill:      "#FFF3E0", // orange 50
	ExternalText: "#9E9E9E",
}
