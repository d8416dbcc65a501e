package records

import (
	"encoding/json"
)

// Statement is a dated movement of a financial record.
type Statement struct {
	ID          ItemID  `json:"id"`
	Date        string  `json:"date" validate:"isodate"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status,omitempty"`
}

func (s *Statement) EntryID() ItemID      { return s.ID }
func (s *Statement) SetEntryID(id ItemID) { s.ID = id }

// AccidentalInsurance is stored at users/{id}/accidental-insurance/details.
type AccidentalInsurance struct {
	PolicyNumber   string      `json:"policyNumber"`
	Provider       string      `json:"provider,omitempty"`
	CoverageAmount float64     `json:"coverageAmount"`
	Premium        float64     `json:"premium"`
	StartDate      string      `json:"startDate" validate:"isodate"`
	EndDate        string      `json:"endDate" validate:"isodate"`
	Status         string      `json:"status,omitempty"`
	Nominee        string      `json:"nominee,omitempty"`
	Statements     []Statement `json:"statements" validate:"dive"`
}

func (r *AccidentalInsurance) Lists() []string { return []string{"statements"} }

func (r *AccidentalInsurance) AddEntry(list string, raw []byte) (ItemID, error) {
	if list != "statements" {
		return "", unknownList(list)
	}
	return addEntry(&r.Statements, raw)
}

func (r *AccidentalInsurance) RemoveEntry(list string, id ItemID) (bool, error) {
	if list != "statements" {
		return false, unknownList(list)
	}
	return removeEntry(&r.Statements, id), nil
}

// InterestFund is stored at users/{id}/interest-fund/details.
type InterestFund struct {
	AccountNumber string      `json:"accountNumber"`
	Principal     float64     `json:"principal"`
	InterestRate  float64     `json:"interestRate"`
	StartDate     string      `json:"startDate" validate:"isodate"`
	Status        string      `json:"status,omitempty"`
	Statements    []Statement `json:"statements" validate:"dive"`
}

func (r *InterestFund) Lists() []string { return []string{"statements"} }

func (r *InterestFund) AddEntry(list string, raw []byte) (ItemID, error) {
	if list != "statements" {
		return "", unknownList(list)
	}
	return addEntry(&r.Statements, raw)
}

func (r *InterestFund) RemoveEntry(list string, id ItemID) (bool, error) {
	if list != "statements" {
		return false, unknownList(list)
	}
	return removeEntry(&r.Statements, id), nil
}

// MaturityFund is stored at users/{id}/maturity-fund/details.
type MaturityFund struct {
	PlanName       string      `json:"planName"`
	InvestedAmount float64     `json:"investedAmount"`
	MaturityAmount float64     `json:"maturityAmount"`
	StartDate      string      `json:"startDate" validate:"isodate"`
	MaturityDate   string      `json:"maturityDate" validate:"isodate"`
	Status         string      `json:"status,omitempty"`
	Statements     []Statement `json:"statements" validate:"dive"`
}

func (r *MaturityFund) Lists() []string { return []string{"statements"} }

func (r *MaturityFund) AddEntry(list string, raw []byte) (ItemID, error) {
	if list != "statements" {
		return "", unknownList(list)
	}
	return addEntry(&r.Statements, raw)
}

func (r *MaturityFund) RemoveEntry(list string, id ItemID) (bool, error) {
	if list != "statements" {
		return false, unknownList(list)
	}
	return removeEntry(&r.Statements, id), nil
}

// ScholarshipChild is a child covered by the scholarship plan.
type ScholarshipChild struct {
	ID          ItemID `json:"id"`
	Name        string `json:"name" validate:"required"`
	DateOfBirth string `json:"dateOfBirth" validate:"isodate"`
	School      string `json:"school,omitempty"`
	Grade       string `json:"grade,omitempty"`
}

func (c *ScholarshipChild) EntryID() ItemID      { return c.ID }
func (c *ScholarshipChild) SetEntryID(id ItemID) { c.ID = id }

// Scholarship is stored at users/{id}/scholarship/details. The number of
// children is derived from the list and never read back from the store.
type Scholarship struct {
	ProgramName  string             `json:"programName"`
	AnnualAmount float64            `json:"annualAmount"`
	StartDate    string             `json:"startDate" validate:"isodate"`
	Status       string             `json:"status,omitempty"`
	Children     []ScholarshipChild `json:"children" validate:"dive"`
	Statements   []Statement        `json:"statements" validate:"dive"`
}

// ChildrenCount returns the number of children in the plan.
func (r *Scholarship) ChildrenCount() int { return len(r.Children) }

// scholarshipJSON avoids recursion in MarshalJSON.
type scholarshipJSON Scholarship

// MarshalJSON adds the derived childrenCount field.
func (r Scholarship) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		scholarshipJSON
		ChildrenCount int `json:"childrenCount"`
	}{scholarshipJSON(r), len(r.Children)})
}

func (r *Scholarship) Lists() []string { return []string{"children", "statements"} }

func (r *Scholarship) AddEntry(list string, raw []byte) (ItemID, error) {
	switch list {
	case "children":
		return addEntry(&r.Children, raw)
	case "statements":
		return addEntry(&r.Statements, raw)
	}
	return "", unknownList(list)
}

func (r *Scholarship) RemoveEntry(list string, id ItemID) (bool, error) {
	switch list {
	case "children":
		return removeEntry(&r.Children, id), nil
	case "statements":
		return removeEntry(&r.Statements, id), nil
	}
	return false, unknownList(list)
}

// GiftItem is one gift of the joining gift record.
type GiftItem struct {
	ID          ItemID  `json:"id"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description,omitempty"`
	Value       float64 `json:"value"`
	Status      string  `json:"status,omitempty"`
	DeliveredOn string  `json:"deliveredOn" validate:"isodate"`
}

func (g *GiftItem) EntryID() ItemID      { return g.ID }
func (g *GiftItem) SetEntryID(id ItemID) { g.ID = id }

// JoiningGift is stored at users/{id}/joining-gift/details.
type JoiningGift struct {
	Status string     `json:"status,omitempty"`
	Items  []GiftItem `json:"items" validate:"dive"`
}

func (r *JoiningGift) Lists() []string { return []string{"items"} }

func (r *JoiningGift) AddEntry(list string, raw []byte) (ItemID, error) {
	if list != "items" {
		return "", unknownList(list)
	}
	return addEntry(&r.Items, raw)
}

func (r *JoiningGift) RemoveEntry(list string, id ItemID) (bool, error) {
	if list != "items" {
		return false, unknownList(list)
	}
	return removeEntry(&r.Items, id), nil
}
