// Profile definitions for FAS container variants.
package container

// ProfileID identifies a container profile.
type ProfileID string

const (
	ProfileStandard ProfileID = "standard"
	ProfileFAS4     ProfileID = "fas4"
	ProfileUnknown  ProfileID = "unknown"
)

// Profile holds per-variant facts the rest of the pipeline needs. It is the
// only place variant differences leak past Read.
type Profile struct {
	ID           ProfileID `json:"id"`
	Table        string    `json:"table"`         // opcode table name; "" if none registered
	TableVersion int       `json:"table_version"` // 0 = latest
	TextHeader   bool      `json:"text_header"`
	OffsetWord   int       `json:"offset_word"` // aux offset width at payload start; 0 if absent
}

// DetectProfile maps a parsed header to its profile.
func DetectProfile(h Header) Profile {
	switch h.Variant {
	case VariantStandard:
		return Profile{ID: ProfileStandard, Table: "standard"}
	case Variant4:
		return Profile{ID: ProfileFAS4, Table: "fas4-observed", TextHeader: true, OffsetWord: offsetWordSize}
	default:
		return Profile{ID: ProfileUnknown, TextHeader: true, OffsetWord: offsetWordSize}
	}
}
