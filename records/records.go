// Package records defines the documents stored for every member: the
// profile, the financial records, uploaded document metadata, and the site
// settings singleton. It also knows where each of them lives in the store.
package records

import (
	"fmt"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/validator"
)

// Kind names a record type. The value is also the collection name under the
// member document.
type Kind string

const (
	KindProfile             Kind = "profile"
	KindAccidentalInsurance Kind = "accidental-insurance"
	KindScholarship         Kind = "scholarship"
	KindInterestFund        Kind = "interest-fund"
	KindMaturityFund        Kind = "maturity-fund"
	KindJoiningGift         Kind = "joining-gift"
	KindDocuments           Kind = "documents"
	KindSiteSettings        Kind = "site-settings"
)

// FinancialKinds are the kinds stored as a single details document per
// member.
var FinancialKinds = []Kind{
	KindAccidentalInsurance,
	KindScholarship,
	KindInterestFund,
	KindMaturityFund,
	KindJoiningGift,
}

// ParseKind returns the kind for s or an error if it is not a known one.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindProfile, KindAccidentalInsurance, KindScholarship, KindInterestFund,
		KindMaturityFund, KindJoiningGift, KindDocuments, KindSiteSettings:
		return k, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// IsFinancial reports whether the kind is stored at users/{id}/{kind}/details.
func (k Kind) IsFinancial() bool {
	for _, f := range FinancialKinds {
		if f == k {
			return true
		}
	}
	return false
}

// UsersCollection is the collection of member profiles.
var UsersCollection = docstore.MustCollection("users")

// SettingsRef is the site settings singleton.
var SettingsRef = docstore.MustDoc("settings/site")

// ProfileRef returns the profile document of a member.
func ProfileRef(regID string) (*docstore.DocRef, error) {
	return UsersCollection.Doc(regID)
}

// DetailsRef returns the document of a financial record of a member.
func DetailsRef(kind Kind, regID string) (*docstore.DocRef, error) {
	if !kind.IsFinancial() {
		return nil, fmt.Errorf("%s is not stored as a details document", kind)
	}
	return docstore.Doc("users/" + regID + "/" + string(kind) + "/details")
}

// DocumentsCollection returns the uploaded documents collection of a member.
func DocumentsCollection(regID string) (*docstore.CollectionRef, error) {
	return docstore.Collection("users/" + regID + "/" + string(KindDocuments))
}

// RefFor returns the document edited for a given kind. Documents are a
// collection and have no single reference.
func RefFor(kind Kind, regID string) (*docstore.DocRef, error) {
	switch {
	case kind == KindProfile:
		return ProfileRef(regID)
	case kind == KindSiteSettings:
		return SettingsRef, nil
	case kind.IsFinancial():
		return DetailsRef(kind, regID)
	}
	return nil, fmt.Errorf("%s has no single document", kind)
}

// New returns the empty record of the given kind, used when a member has no
// record stored yet.
func New(kind Kind) (any, error) {
	switch kind {
	case KindProfile:
		return &UserProfile{}, nil
	case KindAccidentalInsurance:
		return &AccidentalInsurance{Statements: []Statement{}}, nil
	case KindScholarship:
		return &Scholarship{Children: []ScholarshipChild{}, Statements: []Statement{}}, nil
	case KindInterestFund:
		return &InterestFund{Statements: []Statement{}}, nil
	case KindMaturityFund:
		return &MaturityFund{Statements: []Statement{}}, nil
	case KindJoiningGift:
		return &JoiningGift{Items: []GiftItem{}}, nil
	case KindDocuments:
		return &Document{}, nil
	case KindSiteSettings:
		return &SiteSettings{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// Validate checks the validation tags of a record.
func Validate(record any) error {
	return validator.Default().Validate(record)
}
