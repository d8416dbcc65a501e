package records

// SiteSettings is the singleton stored at settings/site.
type SiteSettings struct {
	HeroSlides []HeroSlide   `json:"heroSlides" validate:"dive"`
	AdSlots    []AdSlot      `json:"adSlots" validate:"dive"`
	SMTP       *SMTPSettings `json:"smtp,omitempty"`
	Features   []Feature     `json:"features" validate:"dive"`
}

type HeroSlide struct {
	ID       ItemID `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	ImageURL string `json:"imageUrl" validate:"omitempty,url"`
	Link     string `json:"link,omitempty"`
}

type AdSlot struct {
	ID        ItemID `json:"id"`
	Placement string `json:"placement"`
	ImageURL  string `json:"imageUrl" validate:"omitempty,url"`
	Link      string `json:"link,omitempty"`
	Active    bool   `json:"active"`
}

// SMTPSettings is the relay used by the contact form.
type SMTPSettings struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	From           string `json:"from" validate:"omitempty,email"`
	ContactAddress string `json:"contactAddress" validate:"omitempty,email"`
}

type Feature struct {
	ID          ItemID `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Public returns a copy without the SMTP configuration.
func (s *SiteSettings) Public() *SiteSettings {
	if s == nil {
		return nil
	}
	return &SiteSettings{
		HeroSlides: append([]HeroSlide(nil), s.HeroSlides...),
		AdSlots:    append([]AdSlot(nil), s.AdSlots...),
		Features:   append([]Feature(nil), s.Features...),
	}
}

func (s *SiteSettings) Lists() []string { return []string{"heroSlides", "adSlots", "features"} }

func (h *HeroSlide) EntryID() ItemID      { return h.ID }
func (h *HeroSlide) SetEntryID(id ItemID) { h.ID = id }
func (a *AdSlot) EntryID() ItemID         { return a.ID }
func (a *AdSlot) SetEntryID(id ItemID)    { a.ID = id }
func (f *Feature) EntryID() ItemID        { return f.ID }
func (f *Feature) SetEntryID(id ItemID)   { f.ID = id }

func (s *SiteSettings) AddEntry(list string, raw []byte) (ItemID, error) {
	switch list {
	case "heroSlides":
		return addEntry(&s.HeroSlides, raw)
	case "adSlots":
		return addEntry(&s.AdSlots, raw)
	case "features":
		return addEntry(&s.Features, raw)
	}
	return "", unknownList(list)
}

func (s *SiteSettings) RemoveEntry(list string, id ItemID) (bool, error) {
	switch list {
	case "heroSlides":
		return removeEntry(&s.HeroSlides, id), nil
	case "adSlots":
		return removeEntry(&s.AdSlots, id), nil
	case "features":
		return removeEntry(&s.Features, id), nil
	}
	return false, unknownList(list)
}
