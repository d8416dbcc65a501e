package records

import (
	"encoding/json"
	"fmt"
)

// Role of a portal account.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// UserProfile is stored at users/{registrationId}.
type UserProfile struct {
	UID            string         `json:"uid"`
	RegistrationID string         `json:"registrationId" validate:"regid"`
	Email          string         `json:"email" validate:"required,email"`
	Mobile         string         `json:"mobile,omitempty" validate:"omitempty,phone"`
	Status         string         `json:"status,omitempty"`
	Role           Role           `json:"role,omitempty" validate:"omitempty,oneof=member admin"`
	CreatedAt      string         `json:"createdAt,omitempty" validate:"isodate"`
	PersonalInfo   PersonalInfo   `json:"personal_info"`
	Address        Address        `json:"address"`
	BankDetails    BankDetails    `json:"bank_details"`
	NomineeDetails NomineeDetails `json:"nominee_details"`
}

// IsAdmin reports whether the profile belongs to an administrator.
func (p *UserProfile) IsAdmin() bool { return p.Role == RoleAdmin }

// PersonalInfo groups the identity fields of a member.
type PersonalInfo struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth" validate:"isodate"`
	Gender      string `json:"gender,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
	PAN         string `json:"pan,omitempty"`
}

// Address is the postal address of a member.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// BankDetails is where payouts are sent.
type BankDetails struct {
	AccountHolder string `json:"accountHolder"`
	AccountNumber string `json:"accountNumber"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bankName"`
	Branch        string `json:"branch,omitempty"`
}

// NomineeDetails names the beneficiary of a member.
type NomineeDetails struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	DateOfBirth  string `json:"dateOfBirth" validate:"isodate"`
	Mobile       string `json:"mobile,omitempty" validate:"omitempty,phone"`
}

// Section names one of the editable groups of a profile.
type Section string

const (
	SectionPersonalInfo   Section = "personal_info"
	SectionAddress        Section = "address"
	SectionBankDetails    Section = "bank_details"
	SectionNomineeDetails Section = "nominee_details"
)

// ErrUnknownSection is returned for section names a profile does not have.
var ErrUnknownSection = fmt.Errorf("unknown profile section")

func (p *UserProfile) SetPersonalInfo(v PersonalInfo)     { p.PersonalInfo = v }
func (p *UserProfile) SetAddress(v Address)               { p.Address = v }
func (p *UserProfile) SetBankDetails(v BankDetails)       { p.BankDetails = v }
func (p *UserProfile) SetNomineeDetails(v NomineeDetails) { p.NomineeDetails = v }

// ApplySection decodes raw as the given section and replaces it. The section
// is validated before the profile is touched.
func (p *UserProfile) ApplySection(section Section, raw []byte) error {
	switch section {
	case SectionPersonalInfo:
		return applySection(raw, p.SetPersonalInfo)
	case SectionAddress:
		return applySection(raw, p.SetAddress)
	case SectionBankDetails:
		return applySection(raw, p.SetBankDetails)
	case SectionNomineeDetails:
		return applySection(raw, p.SetNomineeDetails)
	}
	return fmt.Errorf("%w %q", ErrUnknownSection, section)
}

func applySection[S any](raw []byte, set func(S)) error {
	var v S
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid section: %w", err)
	}
	if err := Validate(&v); err != nil {
		return err
	}
	set(v)
	return nil
}
