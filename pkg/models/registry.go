package models

// Payload types for the Companies House public data API. Dates are kept in the
// upstream "YYYY-MM-DD" form.

// Address is a postal address as returned by the registry.
type Address struct {
	Premises     string `json:"premises,omitempty"`
	CareOf       string `json:"care_of,omitempty"`
	POBox        string `json:"po_box,omitempty"`
	AddressLine1 string `json:"address_line_1,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	Locality     string `json:"locality,omitempty"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"`
}

// PartialDate is a month/year date of birth; the registry never publishes the day.
type PartialDate struct {
	Month int `json:"month,omitempty"`
	Year  int `json:"year,omitempty"`
}

// Links holds the resource links the registry attaches to items.
type Links struct {
	Self             string `json:"self,omitempty"`
	Officers         string `json:"officers,omitempty"`
	FilingHistory    string `json:"filing_history,omitempty"`
	Charges          string `json:"charges,omitempty"`
	DocumentMetadata string `json:"document_metadata,omitempty"`
}

// CompanySearchItem is one hit from a company search.
type CompanySearchItem struct {
	CompanyNumber   string  `json:"company_number"`
	Title           string  `json:"title"`
	CompanyStatus   string  `json:"company_status,omitempty"`
	CompanyType     string  `json:"company_type,omitempty"`
	DateOfCreation  string  `json:"date_of_creation,omitempty"`
	DateOfCessation string  `json:"date_of_cessation,omitempty"`
	AddressSnippet  string  `json:"address_snippet,omitempty"`
	Address         Address `json:"address"`
	Description     string  `json:"description,omitempty"`
	Links           Links   `json:"links"`
}

// CompanySearch is the result of a company search.
type CompanySearch struct {
	Items        []CompanySearchItem `json:"items"`
	TotalResults int                 `json:"total_results"`
	ItemsPerPage int                 `json:"items_per_page"`
	StartIndex   int                 `json:"start_index"`
}

// AccountsInfo summarises a company's accounts filing position.
type AccountsInfo struct {
	NextDue      string `json:"next_due,omitempty"`
	NextMadeUpTo string `json:"next_made_up_to,omitempty"`
	Overdue      bool   `json:"overdue"`
	LastAccounts struct {
		MadeUpTo string `json:"made_up_to,omitempty"`
		Type     string `json:"type,omitempty"`
	} `json:"last_accounts"`
}

// ConfirmationStatement summarises a company's confirmation statement position.
type ConfirmationStatement struct {
	NextDue      string `json:"next_due,omitempty"`
	NextMadeUpTo string `json:"next_made_up_to,omitempty"`
	LastMadeUpTo string `json:"last_made_up_to,omitempty"`
	Overdue      bool   `json:"overdue"`
}

// PreviousName is a former registered name.
type PreviousName struct {
	Name          string `json:"name"`
	EffectiveFrom string `json:"effective_from,omitempty"`
	CeasedOn      string `json:"ceased_on,omitempty"`
}

// CompanyProfile is the full registered profile of one company.
type CompanyProfile struct {
	CompanyNumber               string                 `json:"company_number"`
	CompanyName                 string                 `json:"company_name"`
	CompanyStatus               string                 `json:"company_status,omitempty"`
	CompanyStatusDetail         string                 `json:"company_status_detail,omitempty"`
	Type                        string                 `json:"type,omitempty"`
	Jurisdiction                string                 `json:"jurisdiction,omitempty"`
	DateOfCreation              string                 `json:"date_of_creation,omitempty"`
	DateOfCessation             string                 `json:"date_of_cessation,omitempty"`
	RegisteredOfficeAddr        Address                `json:"registered_office_address"`
	SICCodes                    []string               `json:"sic_codes"`
	Accounts                    *AccountsInfo          `json:"accounts,omitempty"`
	ConfirmationStatement       *ConfirmationStatement `json:"confirmation_statement,omitempty"`
	HasCharges                  bool                   `json:"has_charges"`
	HasInsolvencyHistory        bool                   `json:"has_insolvency_history"`
	HasBeenLiquidated           bool                   `json:"has_been_liquidated"`
	PreviousCompanyNames        []PreviousName         `json:"previous_company_names"`
	RegisteredOfficeIsInDispute bool                   `json:"registered_office_is_in_dispute"`
	Links                       Links                  `json:"links"`
}

// Officer is one appointment on a company's officer register.
type Officer struct {
	Name               string       `json:"name"`
	OfficerRole        string       `json:"officer_role"`
	AppointedOn        string       `json:"appointed_on,omitempty"`
	ResignedOn         string       `json:"resigned_on,omitempty"`
	Nationality        string       `json:"nationality,omitempty"`
	Occupation         string       `json:"occupation,omitempty"`
	CountryOfResidence string       `json:"country_of_residence,omitempty"`
	DateOfBirth        *PartialDate `json:"date_of_birth,omitempty"`
	Address            Address      `json:"address"`
}

// OfficerList is a page of a company's officers.
type OfficerList struct {
	Items         []Officer `json:"items"`
	ActiveCount   int       `json:"active_count"`
	ResignedCount int       `json:"resigned_count"`
	InactiveCount int       `json:"inactive_count"`
	TotalResults  int       `json:"total_results"`
	ItemsPerPage  int       `json:"items_per_page"`
	StartIndex    int       `json:"start_index"`
}

// Filing is one entry in a company's filing history.
type Filing struct {
	TransactionID     string            `json:"transaction_id"`
	Category          string            `json:"category,omitempty"`
	Subcategory       string            `json:"subcategory,omitempty"`
	Type              string            `json:"type,omitempty"`
	Date              string            `json:"date,omitempty"`
	ActionDate        string            `json:"action_date,omitempty"`
	Description       string            `json:"description,omitempty"`
	DescriptionValues map[string]string `json:"description_values,omitempty"`
	Pages             int               `json:"pages,omitempty"`
	Barcode           string            `json:"barcode,omitempty"`
	Links             Links             `json:"links"`
}

// FilingHistory is a page of a company's filing history.
type FilingHistory struct {
	Items               []Filing `json:"items"`
	TotalCount          int      `json:"total_count"`
	ItemsPerPage        int      `json:"items_per_page"`
	StartIndex          int      `json:"start_index"`
	FilingHistoryStatus string   `json:"filing_history_status,omitempty"`
}

// ChargeClassification describes the kind of a registered charge.
type ChargeClassification struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// PersonEntitled is a chargeholder.
type PersonEntitled struct {
	Name string `json:"name"`
}

// Charge is one registered charge (mortgage) against a company.
type Charge struct {
	ChargeCode      string               `json:"charge_code,omitempty"`
	ChargeNumber    int                  `json:"charge_number"`
	Classification  ChargeClassification `json:"classification"`
	Status          string               `json:"status,omitempty"`
	CreatedOn       string               `json:"created_on,omitempty"`
	DeliveredOn     string               `json:"delivered_on,omitempty"`
	SatisfiedOn     string               `json:"satisfied_on,omitempty"`
	PersonsEntitled []PersonEntitled     `json:"persons_entitled"`
	Particulars     struct {
		Type        string `json:"type,omitempty"`
		Description string `json:"description,omitempty"`
	} `json:"particulars"`
}

// ChargeList is a page of a company's charges.
type ChargeList struct {
	Items              []Charge `json:"items"`
	TotalCount         int      `json:"total_count"`
	UnfilteredCount    int      `json:"unfiltered_count"`
	SatisfiedCount     int      `json:"satisfied_count"`
	PartSatisfiedCount int      `json:"part_satisfied_count"`
}

// PSCIdentification identifies a corporate or legal-person PSC.
type PSCIdentification struct {
	LegalAuthority     string `json:"legal_authority,omitempty"`
	LegalForm          string `json:"legal_form,omitempty"`
	PlaceRegistered    string `json:"place_registered,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	CountryRegistered  string `json:"country_registered,omitempty"`
}

// PersonWithSignificantControl is one entry on a company's PSC register.
type PersonWithSignificantControl struct {
	Name               string             `json:"name"`
	Kind               string             `json:"kind"`
	NaturesOfControl   []string           `json:"natures_of_control"`
	NotifiedOn         string             `json:"notified_on,omitempty"`
	CeasedOn           string             `json:"ceased_on,omitempty"`
	Nationality        string             `json:"nationality,omitempty"`
	CountryOfResidence string             `json:"country_of_residence,omitempty"`
	DateOfBirth        *PartialDate       `json:"date_of_birth,omitempty"`
	Address            Address            `json:"address"`
	Identification     *PSCIdentification `json:"identification,omitempty"`
}

// PSCList is a page of a company's persons with significant control.
type PSCList struct {
	Items        []PersonWithSignificantControl `json:"items"`
	ActiveCount  int                            `json:"active_count"`
	CeasedCount  int                            `json:"ceased_count"`
	TotalResults int                            `json:"total_results"`
	ItemsPerPage int                            `json:"items_per_page"`
	StartIndex   int                            `json:"start_index"`
}

// OfficerSearchItem is one hit from an officer search.
type OfficerSearchItem struct {
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	AddressSnippet   string       `json:"address_snippet,omitempty"`
	AppointmentCount int          `json:"appointment_count"`
	DateOfBirth      *PartialDate `json:"date_of_birth,omitempty"`
	Links            Links        `json:"links"`
}

// OfficerSearch is the result of an officer search.
type OfficerSearch struct {
	Items        []OfficerSearchItem `json:"items"`
	TotalResults int                 `json:"total_results"`
	ItemsPerPage int                 `json:"items_per_page"`
	StartIndex   int                 `json:"start_index"`
}

// Normalize replaces nil collections with empty ones so every payload has the
// same shape whether or not the registry omitted a field.
func (s *CompanySearch) Normalize() {
	if s.Items == nil {
		s.Items = []CompanySearchItem{}
	}
}

// Normalize replaces nil collections with empty ones.
func (p *CompanyProfile) Normalize() {
	if p.SICCodes == nil {
		p.SICCodes = []string{}
	}
	if p.PreviousCompanyNames == nil {
		p.PreviousCompanyNames = []PreviousName{}
	}
}

// Normalize replaces nil collections with empty ones.
func (l *OfficerList) Normalize() {
	if l.Items == nil {
		l.Items = []Officer{}
	}
}

// Normalize replaces nil collections with empty ones.
func (h *FilingHistory) Normalize() {
	if h.Items == nil {
		h.Items = []Filing{}
	}
}

// Normalize replaces nil collections with empty ones.
func (l *ChargeList) Normalize() {
	if l.Items == nil {
		l.Items = []Charge{}
	}
	for i := range l.Items {
		if l.Items[i].PersonsEntitled == nil {
			l.Items[i].PersonsEntitled = []PersonEntitled{}
		}
	}
}

// Normalize replaces nil collections with empty ones.
func (l *PSCList) Normalize() {
	if l.Items == nil {
		l.Items = []PersonWithSignificantControl{}
	}
	for i := range l.Items {
		if l.Items[i].NaturesOfControl == nil {
			l.Items[i].NaturesOfControl = []string{}
		}
	}
}

// Normalize replaces nil collections with empty ones.
func (s *OfficerSearch) Normalize() {
	if s.Items == nil {
		s.Items = []OfficerSearchItem{}
	}
}
