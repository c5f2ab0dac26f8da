package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// BitwardenParser parses Bitwarden JSON export files.
type BitwardenParser struct {
	newID func() string
}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

type bitwardenExport struct {
	Encrypted bool            `json:"encrypted"`
	Items     []bitwardenItem `json:"items"`
}

type bitwardenItem struct {
	Type     int                    `json:"type"`
	Name     string                 `json:"name"`
	Notes    string                 `json:"notes"`
	Login    *bitwardenLogin        `json:"login"`
	Card     *bitwardenCard         `json:"card"`
	Identity *bitwardenIdentity     `json:"identity"`
	Fields   []bitwardenCustomField `json:"fields"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

type bitwardenCard struct {
	CardholderName string `json:"cardholderName"`
	Number         string `json:"number"`
	ExpMonth       string `json:"expMonth"`
	ExpYear        string `json:"expYear"`
	Code           string `json:"code"`
	Brand          string `json:"brand"`
}

type bitwardenIdentity struct {
	Title          string `json:"title"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	Username       string `json:"username"`
	Company        string `json:"company"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	Address3       string `json:"address3"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	SSN            string `json:"ssn"`
	PassportNumber string `json:"passportNumber"`
	LicenseNumber  string `json:"licenseNumber"`
}

type bitwardenCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse parses Bitwarden JSON data.
func (p *BitwardenParser) Parse(data []byte) (*Result, error) {
	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("importer: failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, ErrEncryptedExport
	}

	result := &Result{}
	counter := 1
	for i := range export.Items {
		item := &export.Items[i]
		draft, reason := p.parseItem(item)
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: item.Name, Reason: reason})
			continue
		}

		if IsEmptyOrWhitespace(draft.Label) {
			url := draft.Fields["url"]
			draft.Label = FallbackLabel(url, counter)
			counter++
			result.Warnings = append(result.Warnings, fmt.Sprintf("item %d has no name; imported as %q", i+1, draft.Label))
		}
		draft.Label = TruncateLabel(draft.Label)

		if err := vault.ValidateDraft(*draft); err != nil {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: item.Name, Reason: err.Error()})
			continue
		}
		result.Items = append(result.Items, *draft)
	}
	return result, nil
}

// parseItem maps one Bitwarden item. A non-empty reason means skip it.
func (p *BitwardenParser) parseItem(item *bitwardenItem) (*vault.Draft, string) {
	d := &vault.Draft{
		Label:  NormalizeValue(item.Name),
		Fields: make(map[string]string),
	}

	switch item.Type {
	case bitwardenTypeLogin:
		p.parseLogin(item, d)
	case bitwardenTypeSecureNote:
		d.Type = category.Note
		set(d.Fields, "content", item.Notes)
	case bitwardenTypeCard:
		p.parseCard(item, d)
	case bitwardenTypeIdentity:
		p.parseIdentity(item, d)
	default:
		return nil, fmt.Sprintf("unsupported item type: %d", item.Type)
	}

	if d.Type != category.Note {
		p.custom(d, "Notes", item.Notes)
	}
	for _, cf := range item.Fields {
		name := NormalizeValue(cf.Name)
		if name == "" {
			name = "Custom field"
		}
		p.custom(d, name, cf.Value)
	}

	if len(d.Fields) == 0 && len(d.CustomFields) == 0 {
		return nil, "no useful data"
	}
	return d, ""
}

func (p *BitwardenParser) parseLogin(item *bitwardenItem, d *vault.Draft) {
	d.Type = category.Credential
	login := item.Login
	if login == nil {
		return
	}
	set(d.Fields, "service", item.Name)
	set(d.Fields, "username", login.Username)
	set(d.Fields, "password", login.Password)
	set(d.Fields, "totp", login.TOTP)
	for i, u := range login.URIs {
		if i == 0 {
			set(d.Fields, "url", u.URI)
			continue
		}
		p.custom(d, fmt.Sprintf("URL %d", i+1), u.URI)
	}
}

func (p *BitwardenParser) parseCard(item *bitwardenItem, d *vault.Draft) {
	d.Type = category.Card
	card := item.Card
	if card == nil {
		return
	}
	set(d.Fields, "cardholderName", card.CardholderName)
	number := Digits(card.Number)
	set(d.Fields, "cardNumber", number)
	if len(number) >= 4 {
		d.Fields[vault.FieldLastFourDigits] = number[len(number)-4:]
	}
	set(d.Fields, "expiryDate", expiry(card.ExpMonth, card.ExpYear))
	set(d.Fields, "cvv", card.Code)
	if card.Brand != "" {
		d.Fields["network"] = network(card.Brand)
	}
}

// Identity items carry one primary document. Without any document number
// the item becomes a free-form "other" record.
func (p *BitwardenParser) parseIdentity(item *bitwardenItem, d *vault.Draft) {
	id := item.Identity
	if id == nil {
		d.Type = category.Other
		return
	}

	docs := []struct{ kind, number string }{
		{"Passport", id.PassportNumber},
		{"Driving Licence", id.LicenseNumber},
		{"National ID", id.SSN},
	}
	var primary bool
	for _, doc := range docs {
		if NormalizeValue(doc.number) == "" {
			continue
		}
		if !primary {
			d.Fields["documentType"] = doc.kind
			d.Fields["documentNumber"] = NormalizeValue(doc.number)
			primary = true
			continue
		}
		p.custom(d, doc.kind, doc.number)
	}

	name := joinNonEmpty(" ", id.Title, id.FirstName, id.MiddleName, id.LastName)
	if primary {
		d.Type = category.Identity
		set(d.Fields, "fullName", name)
	} else {
		d.Type = category.Other
		set(d.Fields, "details", name)
	}

	p.custom(d, "Username", id.Username)
	p.custom(d, "Company", id.Company)
	p.custom(d, "Email", id.Email)
	p.custom(d, "Phone", id.Phone)
	p.custom(d, "Address", joinNonEmpty(", ",
		id.Address1, id.Address2, id.Address3, id.City, id.State, id.PostalCode, id.Country))
}

func (p *BitwardenParser) custom(d *vault.Draft, label, value string) {
	value = NormalizeValue(value)
	if value == "" {
		return
	}
	newID := p.newID
	if newID == nil {
		newID = func() string { return fmt.Sprintf("cf-%d", len(d.CustomFields)+1) }
	}
	d.CustomFields = append(d.CustomFields, vault.CustomField{ID: newID(), Label: label, Value: value})
}

func set(fields map[string]string, key, value string) {
	if v := NormalizeValue(value); v != "" {
		fields[key] = v
	}
}

func expiry(month, year string) string {
	month, year = Digits(month), Digits(year)
	if month == "" || year == "" {
		return ""
	}
	if len(month) == 1 {
		month = "0" + month
	}
	if len(year) > 2 {
		year = year[len(year)-2:]
	}
	return month + "/" + year
}

func network(brand string) string {
	switch strings.ToLower(strings.TrimSpace(brand)) {
	case "visa":
		return "Visa"
	case "mastercard":
		return "Mastercard"
	case "amex", "american express":
		return "Amex"
	case "rupay":
		return "RuPay"
	default:
		return "Other"
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if v := NormalizeValue(p); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
