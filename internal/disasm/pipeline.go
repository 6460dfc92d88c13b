package disasm

// InstRecord is one line in instructions.jsonl.
type InstRecord struct {
	Offset     string   `json:"offset"`
	Bytes      string   `json:"bytes"`
	Mnemonic   string   `json:"mnemonic"`
	Known      bool     `json:"known"`
	Text       string   `json:"text"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// CallEdgeRecord is one line in call_edges.jsonl.
type CallEdgeRecord struct {
	FromFunc string `json:"from_func,omitempty"`
	FromPC   string `json:"from_pc"`
	Target   string `json:"target"`
	Argc     int    `json:"argc"`
	Resolved bool   `json:"resolved"`
}

// FuncRecord is one line in functions.jsonl.
type FuncRecord struct {
	Name       string `json:"name"`
	Offset     string `json:"offset"`
	Size       int    `json:"size"`
	Params     int    `json:"params"`
	Locals     int    `json:"locals"`
	Calls      int    `json:"calls"`
	Confidence string `json:"confidence,omitempty"` // "low" if the name came from a low-confidence string
}
