package model

// RegistryEntry is one authoritative listed entity. Entries are immutable
// after load; the registry is only ever replaced wholesale.
type RegistryEntry struct {
	ID        string   `json:"id"`                  // Stable identifier (stock code)
	Name      string   `json:"name"`                // Canonical long name
	ShortName string   `json:"short_name,omitempty"` // Exchange short name
	Aliases   []string `json:"aliases,omitempty"`   // Known alternate spellings
	Category  string   `json:"category,omitempty"`  // Sector/board tag
}

// RegistryRecord is the line-delimited on-disk form of a registry entry.
// Field names follow the upstream listing export.
type RegistryRecord struct {
	StockCode    string   `json:"stock_code"`
	CompanyLong  string   `json:"company_long"`
	CompanyShort string   `json:"company_short"`
	Aliases      []string `json:"aliases"`
	Category     string   `json:"category"`
}

// Entry converts an on-disk record to its immutable in-memory form.
func (r RegistryRecord) Entry() RegistryEntry {
	return RegistryEntry{
		ID:        r.StockCode,
		Name:      r.CompanyLong,
		ShortName: r.CompanyShort,
		Aliases:   r.Aliases,
		Category:  r.Category,
	}
}
