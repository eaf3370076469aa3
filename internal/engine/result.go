package engine

// ScriptString holds one value in each script an ID document may carry
type ScriptString struct {
	Latin    string `json:"latin"`
	Cyrillic string `json:"cyrillic"`
	Arabic   string `json:"arabic"`
}

// IsEmpty reports whether no script variant is set
func (s ScriptString) IsEmpty() bool {
	return s.Latin == "" && s.Cyrillic == "" && s.Arabic == ""
}

// Date is a date as printed on a document. Zero components are missing.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d Date) IsEmpty() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// MRZ holds fields read from the machine readable zone
type MRZ struct {
	PrimaryID      string `json:"primaryID"`
	SecondaryID    string `json:"secondaryID"`
	DocumentNumber string `json:"documentNumber"`
	DateOfBirth    Date   `json:"dateOfBirth"`
	Verified       bool   `json:"verified"`
}

func (m MRZ) IsEmpty() bool {
	return m.PrimaryID == "" && m.SecondaryID == "" && m.DocumentNumber == "" && m.DateOfBirth.IsEmpty()
}

// IDResult is the structured result of an identity document recognizer
type IDResult struct {
	State          ResultState  `json:"state"`
	FirstName      ScriptString `json:"firstName"`
	LastName       ScriptString `json:"lastName"`
	FullName       ScriptString `json:"fullName"`
	DocumentNumber string       `json:"documentNumber"`
	DateOfBirth    Date         `json:"dateOfBirth"`
	MRZ            MRZ          `json:"mrz"`
}

// FrameData is what a FrameReader extracted from a single frame
type FrameData struct {
	// Side is "front", "back" or "" when unknown
	Side           string       `json:"side"`
	FirstName      ScriptString `json:"firstName"`
	LastName       ScriptString `json:"lastName"`
	FullName       ScriptString `json:"fullName"`
	DocumentNumber string       `json:"documentNumber"`
	DateOfBirth    Date         `json:"dateOfBirth"`
	MRZ            MRZ          `json:"mrz"`
}

// IsEmpty reports whether the frame carried no document data
func (f *FrameData) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.FirstName.IsEmpty() && f.LastName.IsEmpty() && f.FullName.IsEmpty() &&
		f.DocumentNumber == "" && f.DateOfBirth.IsEmpty() && f.MRZ.IsEmpty()
}

// merge fills unset fields of r from f, keeping values already present
func (r *IDResult) merge(f *FrameData) {
	mergeScript(&r.FirstName, f.FirstName)
	mergeScript(&r.LastName, f.LastName)
	mergeScript(&r.FullName, f.FullName)
	mergeString(&r.DocumentNumber, f.DocumentNumber)
	mergeDate(&r.DateOfBirth, f.DateOfBirth)

	mergeString(&r.MRZ.PrimaryID, f.MRZ.PrimaryID)
	mergeString(&r.MRZ.SecondaryID, f.MRZ.SecondaryID)
	mergeString(&r.MRZ.DocumentNumber, f.MRZ.DocumentNumber)
	mergeDate(&r.MRZ.DateOfBirth, f.MRZ.DateOfBirth)
	r.MRZ.Verified = r.MRZ.Verified || f.MRZ.Verified
}

func mergeScript(dst *ScriptString, src ScriptString) {
	mergeString(&dst.Latin, src.Latin)
	mergeString(&dst.Cyrillic, src.Cyrillic)
	mergeString(&dst.Arabic, src.Arabic)
}

func mergeString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func mergeDate(dst *Date, src Date) {
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	if dst.Month == 0 {
		dst.Month = src.Month
	}
	if dst.Day == 0 {
		dst.Day = src.Day
	}
}
